package transcription

import (
	"context"
	"sync/atomic"
)

type StaticEngine struct {
	text   string
	calls  atomic.Int64
	closed atomic.Bool
}

func NewStaticEngine(text string) *StaticEngine {
	return &StaticEngine{text: text}
}

func (e *StaticEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	if e.closed.Load() {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.calls.Add(1)
	return e.text, nil
}

func (e *StaticEngine) Calls() int64 {
	return e.calls.Load()
}

func (e *StaticEngine) Name() string {
	return BackendStatic
}

func (e *StaticEngine) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (e *StaticEngine) Close() error {
	e.closed.Store(true)
	return nil
}
