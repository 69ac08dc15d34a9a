package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const stagedFileName = "speech.wav"

// Stager hands out a scratch resource for one accumulation. Every Stage it
// returns must be released by the caller, on success and on failure alike.
type Stager interface {
	Stage() (Stage, error)
}

type Stage interface {
	Write(f Format, pcm []byte) error
	Close() error
	Release() error
}

func NewStager(mode, dir string) (Stager, error) {
	switch mode {
	case "tempdir", "":
		return &TempDirStager{Dir: dir}, nil
	case "memory":
		return MemoryStager{}, nil
	case "none":
		return NopStager{}, nil
	default:
		return nil, fmt.Errorf("audio: unknown staging mode %q (supported: tempdir, memory, none)", mode)
	}
}

type TempDirStager struct {
	Dir string
}

func (s *TempDirStager) Stage() (Stage, error) {
	dir, err := os.MkdirTemp(s.Dir, "parakeet-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &fileStage{dir: dir, path: filepath.Join(dir, stagedFileName)}, nil
}

type fileStage struct {
	dir     string
	path    string
	file    *os.File
	format  Format
	written uint32
	closed  bool
	mu      sync.Mutex
}

func (s *fileStage) Path() string {
	return s.path
}

func (s *fileStage) Write(f Format, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}

	if s.file == nil {
		file, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("create staged wav: %w", err)
		}
		if err := WriteWAVHeader(file, f, 0); err != nil {
			_ = file.Close()
			return err
		}
		s.file = file
		s.format = f
	}

	n, err := s.file.Write(pcm)
	s.written += uint32(n)
	return err
}

func (s *fileStage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *fileStage) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.file == nil {
		return nil
	}

	var errs []error
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		errs = append(errs, err)
	} else if err := WriteWAVHeader(s.file, s.format, s.written); err != nil {
		errs = append(errs, err)
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *fileStage) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closeErr := s.closeLocked()
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.Join(closeErr, fmt.Errorf("remove staging dir %s: %w", s.dir, err))
	}
	return closeErr
}

type MemoryStager struct{}

func (MemoryStager) Stage() (Stage, error) {
	return &MemoryStage{}, nil
}

type MemoryStage struct {
	buf    bytes.Buffer
	format Format
	mu     sync.Mutex
}

func (s *MemoryStage) Write(f Format, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
	_, err := s.buf.Write(pcm)
	return err
}

func (s *MemoryStage) Close() error {
	return nil
}

func (s *MemoryStage) Release() error {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStage) WAV() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EncodeWAV(Buffer{Format: s.format, Data: s.buf.Bytes()})
}

type NopStager struct{}

func (NopStager) Stage() (Stage, error) {
	return nopStage{}, nil
}

type nopStage struct{}

func (nopStage) Write(Format, []byte) error { return nil }
func (nopStage) Close() error               { return nil }
func (nopStage) Release() error             { return nil }
