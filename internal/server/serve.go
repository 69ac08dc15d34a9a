package server

import (
	"context"
	"errors"
	"io"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/wyoming"
)

// serveEvents feeds inbound events to the session in arrival order and writes
// each reply before reading the next event. It returns nil when the peer
// closes the stream cleanly.
func serveEvents(ctx context.Context, sess *asr.Session, next func() (*wyoming.Event, error), write func(*wyoming.Event) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, wyoming.ErrMalformedEvent) || errors.Is(err, wyoming.ErrEventTooLarge) {
				_ = write(wyoming.Error{Text: err.Error(), Code: asr.CodeProtocolViolation}.ToEvent())
			}
			return err
		}

		replies, herr := sess.Handle(ctx, ev)
		for _, reply := range replies {
			if err := write(reply); err != nil {
				return err
			}
		}
		if herr != nil {
			return herr
		}
	}
}
