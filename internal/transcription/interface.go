package transcription

import "context"

// Engine converts mono float32 samples at audio.EngineSampleRate to text.
// Implementations are not assumed to be safe for concurrent use; callers go
// through a Gate.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) (string, error)
	Name() string
	Close() error
}

type Pinger interface {
	Ping(ctx context.Context) error
}
