package asr

import (
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/history"
)

type Observer interface {
	SessionOpened(transport string)
	SessionClosed(transport string)
	EventHandled(kind string)
	TranscriptionFinished(status history.Status, audio, latency time.Duration)
	ProtocolViolation()
}

type NopObserver struct{}

func (NopObserver) SessionOpened(string)                                               {}
func (NopObserver) SessionClosed(string)                                               {}
func (NopObserver) EventHandled(string)                                                {}
func (NopObserver) TranscriptionFinished(history.Status, time.Duration, time.Duration) {}
func (NopObserver) ProtocolViolation()                                                 {}
