package audio

import (
	"bytes"
	"errors"
	"os"
	"testing"
)

var mono16k = Format{Rate: 16000, Width: 2, Channels: 1}

func TestAssembler_ConcatenatesInOrder(t *testing.T) {
	a := NewAssembler(MemoryStager{})
	if err := a.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	chunks := [][]byte{{1, 2}, {3, 4, 5, 6}, {}, {7, 8}}
	var want []byte
	for _, c := range chunks {
		if err := a.Append(mono16k, c); err != nil {
			t.Fatalf("Append error: %v", err)
		}
		want = append(want, c...)
	}

	buf, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if !bytes.Equal(buf.Data, want) {
		t.Errorf("expected %v, got %v", want, buf.Data)
	}
	if buf.Format != mono16k {
		t.Errorf("expected format %s, got %s", mono16k, buf.Format)
	}
	if err := a.Discard(); err != nil {
		t.Errorf("Discard error: %v", err)
	}
}

func TestAssembler_OpenTwice(t *testing.T) {
	a := NewAssembler(nil)
	if err := a.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := a.Open(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestAssembler_NotOpen(t *testing.T) {
	a := NewAssembler(nil)
	if err := a.Append(mono16k, []byte{0, 0}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen from Append, got %v", err)
	}
	if _, err := a.Finalize(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen from Finalize, got %v", err)
	}
	if err := a.Discard(); err != nil {
		t.Errorf("Discard on idle assembler should succeed, got %v", err)
	}
}

func TestAssembler_FinalizeEmpty(t *testing.T) {
	a := NewAssembler(nil)
	_ = a.Open()
	if _, err := a.Finalize(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestAssembler_FormatMismatch(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		pcm    []byte
	}{
		{"rate", Format{Rate: 22050, Width: 2, Channels: 1}, []byte{0, 0}},
		{"width", Format{Rate: 16000, Width: 4, Channels: 1}, []byte{0, 0, 0, 0}},
		{"channels", Format{Rate: 16000, Width: 2, Channels: 2}, []byte{0, 0, 0, 0}},
		{"partial frame", mono16k, []byte{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(nil)
			_ = a.Open()
			if err := a.Append(mono16k, []byte{1, 1}); err != nil {
				t.Fatalf("Append error: %v", err)
			}
			if err := a.Append(tt.format, tt.pcm); !errors.Is(err, ErrFormatMismatch) {
				t.Errorf("expected ErrFormatMismatch, got %v", err)
			}
			if a.Len() != 2 {
				t.Errorf("rejected chunk should not be buffered, got %d bytes", a.Len())
			}
		})
	}
}

func TestAssembler_InvalidFirstFormat(t *testing.T) {
	a := NewAssembler(nil)
	_ = a.Open()
	if err := a.Append(Format{Rate: 16000, Width: 3, Channels: 1}, []byte{0, 0, 0}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestAssembler_ReopenStartsEmpty(t *testing.T) {
	a := NewAssembler(nil)
	_ = a.Open()
	_ = a.Append(mono16k, []byte{1, 2, 3, 4})
	if _, err := a.Finalize(); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	_ = a.Discard()

	if err := a.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if a.Len() != 0 {
		t.Errorf("expected empty accumulation, got %d bytes", a.Len())
	}
	if a.Format() != (Format{}) {
		t.Errorf("expected format to be cleared, got %s", a.Format())
	}
}

func TestAssembler_TempDirStagingReleased(t *testing.T) {
	base := t.TempDir()
	a := NewAssembler(&TempDirStager{Dir: base})
	if err := a.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	_ = a.Append(mono16k, []byte{1, 2, 3, 4})

	stage, ok := a.stage.(*fileStage)
	if !ok {
		t.Fatalf("expected *fileStage, got %T", a.stage)
	}

	if _, err := a.Finalize(); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	staged, err := os.ReadFile(stage.Path())
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	buf, err := DecodeWAV(staged)
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if !bytes.Equal(buf.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("expected staged data [1 2 3 4], got %v", buf.Data)
	}

	if err := a.Discard(); err != nil {
		t.Fatalf("Discard error: %v", err)
	}
	if _, err := os.Stat(stage.dir); !os.IsNotExist(err) {
		t.Errorf("expected staging dir to be removed, stat err: %v", err)
	}
}

func TestAssembler_DiscardWithoutFinalize(t *testing.T) {
	base := t.TempDir()
	a := NewAssembler(&TempDirStager{Dir: base})
	_ = a.Open()
	_ = a.Append(mono16k, []byte{9, 9})

	if err := a.Discard(); err != nil {
		t.Fatalf("Discard error: %v", err)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no staging dirs left, found %d", len(entries))
	}
}

type failingStager struct{}

func (failingStager) Stage() (Stage, error) {
	return nil, errors.New("disk full")
}

func TestAssembler_StagerFailure(t *testing.T) {
	a := NewAssembler(failingStager{})
	if err := a.Open(); err == nil {
		t.Fatal("expected error from failing stager")
	}
	if a.IsOpen() {
		t.Error("assembler should stay closed when staging fails")
	}
}

func TestNewStager(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"", false},
		{"tempdir", false},
		{"memory", false},
		{"none", false},
		{"s3", true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			_, err := NewStager(tt.mode, "")
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAssembler_MaxBytes(t *testing.T) {
	a := NewAssembler(nil)
	a.SetMaxBytes(640)
	if err := a.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if err := a.Append(mono16k, make([]byte, 640)); err != nil {
		t.Fatalf("Append at the limit error: %v", err)
	}
	if err := a.Append(mono16k, make([]byte, 2)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if a.Len() != 640 {
		t.Errorf("rejected chunk must not be buffered, len=%d", a.Len())
	}
}
