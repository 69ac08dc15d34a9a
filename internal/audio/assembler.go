package audio

import (
	"fmt"
)

// Assembler collects the chunks of one accumulation in arrival order. It is
// owned by a single session and is not safe for concurrent use.
type Assembler struct {
	stager   Stager
	stage    Stage
	maxBytes int
	format   Format
	data     []byte
	open     bool
	primed   bool
}

func NewAssembler(stager Stager) *Assembler {
	if stager == nil {
		stager = NopStager{}
	}
	return &Assembler{stager: stager}
}

// SetMaxBytes caps the size of one accumulation; zero means unlimited.
func (a *Assembler) SetMaxBytes(n int) {
	a.maxBytes = n
}

func (a *Assembler) Open() error {
	if a.open {
		return ErrAlreadyOpen
	}

	if a.stage != nil {
		_ = a.Discard()
	}

	stage, err := a.stager.Stage()
	if err != nil {
		return err
	}

	a.stage = stage
	a.data = a.data[:0]
	a.format = Format{}
	a.primed = false
	a.open = true
	return nil
}

func (a *Assembler) Append(f Format, pcm []byte) error {
	if !a.open {
		return ErrNotOpen
	}

	if !a.primed {
		if err := f.Validate(); err != nil {
			return err
		}
		a.format = f
		a.primed = true
	} else if f != a.format {
		return fmt.Errorf("%w: got %s, accumulation is %s", ErrFormatMismatch, f, a.format)
	}

	if len(pcm)%f.FrameSize() != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %s frames", ErrFormatMismatch, len(pcm), f)
	}

	if a.maxBytes > 0 && len(a.data)+len(pcm) > a.maxBytes {
		return fmt.Errorf("%w: %d bytes buffered, limit %d", ErrTooLarge, len(a.data)+len(pcm), a.maxBytes)
	}

	a.data = append(a.data, pcm...)
	if err := a.stage.Write(f, pcm); err != nil {
		return fmt.Errorf("%w: %v", ErrStage, err)
	}
	return nil
}

// Finalize hands the accumulated buffer to the caller and closes the stage.
// The stage is released by Discard, which the caller must still invoke. An
// ErrStage error still comes with a usable buffer.
func (a *Assembler) Finalize() (Buffer, error) {
	if !a.open {
		return Buffer{}, ErrNotOpen
	}
	if !a.primed {
		return Buffer{}, ErrEmpty
	}

	data := make([]byte, len(a.data))
	copy(data, a.data)
	buf := Buffer{Format: a.format, Data: data}

	a.open = false
	if err := a.stage.Close(); err != nil {
		return buf, fmt.Errorf("%w: close: %v", ErrStage, err)
	}
	return buf, nil
}

func (a *Assembler) Discard() error {
	stage := a.stage
	a.stage = nil
	a.open = false
	a.primed = false
	a.format = Format{}
	a.data = a.data[:0]

	if stage == nil {
		return nil
	}
	return stage.Release()
}

func (a *Assembler) IsOpen() bool {
	return a.open
}

func (a *Assembler) Len() int {
	return len(a.data)
}

func (a *Assembler) Format() Format {
	return a.format
}
