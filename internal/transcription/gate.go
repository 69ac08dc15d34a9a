package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
)

type GateObserver interface {
	GateAcquired(wait time.Duration)
	GateReleased(held time.Duration, err error)
}

type GateConfig struct {
	AcquireTimeout time.Duration
	CallTimeout    time.Duration
	SampleRate     int
	Observer       GateObserver
	Log            *slog.Logger
}

// Gate owns the single engine handle. Decoding and inference run while the
// slot is held; everything else a session does stays concurrent.
type Gate struct {
	engine  Engine
	slot    chan struct{}
	cfg     GateConfig
	log     *slog.Logger
	waiting atomic.Int64
	busy    atomic.Int64
}

func NewGate(engine Engine, cfg GateConfig) *Gate {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.EngineSampleRate
	}

	return &Gate{
		engine: engine,
		slot:   make(chan struct{}, 1),
		cfg:    cfg,
		log:    cfg.Log.With("component", "transcription_gate", "engine", engine.Name()),
	}
}

func (g *Gate) Transcribe(ctx context.Context, buf audio.Buffer, opts Options) (text string, err error) {
	if err := g.acquire(ctx); err != nil {
		return "", err
	}
	held := time.Now()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: engine panic: %v", ErrInference, r)
		}
		g.release(time.Since(held), err)
	}()

	signal, err := audio.Decode(buf, g.cfg.SampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	callCtx := ctx
	if g.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()
	}

	text, err = g.engine.Transcribe(callCtx, signal, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	return text, nil
}

func (g *Gate) acquire(ctx context.Context) error {
	start := time.Now()
	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	var timeout <-chan time.Time
	if g.cfg.AcquireTimeout > 0 {
		timer := time.NewTimer(g.cfg.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case g.slot <- struct{}{}:
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrGateTimeout, g.cfg.AcquireTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrGateTimeout, ctx.Err())
	}

	g.busy.Store(1)
	wait := time.Since(start)
	if g.cfg.Observer != nil {
		g.cfg.Observer.GateAcquired(wait)
	}
	g.log.Debug("gate acquired", "wait_ms", wait.Milliseconds())
	return nil
}

func (g *Gate) release(held time.Duration, err error) {
	g.busy.Store(0)
	<-g.slot
	if g.cfg.Observer != nil {
		g.cfg.Observer.GateReleased(held, err)
	}
	if err != nil {
		g.log.Warn("transcription failed", "error", err, "held_ms", held.Milliseconds())
	}
}

func (g *Gate) InFlight() int {
	return int(g.busy.Load())
}

func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}

func (g *Gate) Engine() Engine {
	return g.engine
}
