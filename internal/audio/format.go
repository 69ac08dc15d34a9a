package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	EngineSampleRate = 16000

	// Accepted PCM bounds. They keep FrameSize from overflowing and cap the
	// resampling blow-up at 2x.
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxChannels   = 8
)

var (
	ErrInvalidFormat  = errors.New("invalid audio format")
	ErrFormatMismatch = errors.New("audio format mismatch")
	ErrAlreadyOpen    = errors.New("accumulation already open")
	ErrNotOpen        = errors.New("no accumulation open")
	ErrEmpty          = errors.New("accumulation is empty")
	ErrStage          = errors.New("audio staging failed")
	ErrTooLarge       = errors.New("accumulation exceeds size limit")
)

type Format struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

func (f Format) Validate() error {
	if f.Rate < MinSampleRate || f.Rate > MaxSampleRate {
		return fmt.Errorf("%w: rate=%d outside %d-%d", ErrInvalidFormat, f.Rate, MinSampleRate, MaxSampleRate)
	}
	if f.Channels < 1 || f.Channels > MaxChannels {
		return fmt.Errorf("%w: channels=%d outside 1-%d", ErrInvalidFormat, f.Channels, MaxChannels)
	}
	switch f.Width {
	case 1, 2, 4:
		return nil
	default:
		return fmt.Errorf("%w: width=%d", ErrInvalidFormat, f.Width)
	}
}

func (f Format) FrameSize() int {
	return f.Width * f.Channels
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dB/%dch", f.Rate, f.Width, f.Channels)
}

type Buffer struct {
	Format Format
	Data   []byte
}

func (b Buffer) Frames() int {
	size := b.Format.FrameSize()
	if size <= 0 {
		return 0
	}
	return len(b.Data) / size
}

func (b Buffer) Duration() time.Duration {
	if b.Format.Rate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.Rate)
}
