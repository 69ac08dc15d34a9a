package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBuffer(frames int) audio.Buffer {
	return audio.Buffer{
		Format: audio.Format{Rate: 16000, Width: 2, Channels: 1},
		Data:   make([]byte, frames*2),
	}
}

type countingEngine struct {
	current  atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
	delay    time.Duration
	text     string
	err      error
	panicMsg string
}

func (e *countingEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	n := e.current.Add(1)
	defer e.current.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	e.calls.Add(1)
	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	time.Sleep(e.delay)
	return e.text, e.err
}

func (e *countingEngine) Name() string { return "counting" }
func (e *countingEngine) Close() error { return nil }

type blockingEngine struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	close(e.started)
	<-e.release
	return "", nil
}

func (e *blockingEngine) Name() string { return "blocking" }
func (e *blockingEngine) Close() error { return nil }

type observerStub struct {
	acquired atomic.Int64
	released atomic.Int64
	failures atomic.Int64
}

func (o *observerStub) GateAcquired(time.Duration) { o.acquired.Add(1) }
func (o *observerStub) GateReleased(_ time.Duration, err error) {
	o.released.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func TestGate_MutualExclusion(t *testing.T) {
	engine := &countingEngine{delay: 5 * time.Millisecond, text: "ok"}
	gate := NewGate(engine, GateConfig{Log: testLogger()})

	const sessions = 16
	var wg sync.WaitGroup
	wg.Add(sessions)
	for i := 0; i < sessions; i++ {
		go func() {
			defer wg.Done()
			if _, err := gate.Transcribe(context.Background(), testBuffer(160), Options{}); err != nil {
				t.Errorf("Transcribe error: %v", err)
			}
		}()
	}
	wg.Wait()

	if engine.peak.Load() != 1 {
		t.Errorf("expected at most 1 concurrent engine call, observed %d", engine.peak.Load())
	}
	if engine.calls.Load() != sessions {
		t.Errorf("expected %d calls, got %d", sessions, engine.calls.Load())
	}
	if gate.InFlight() != 0 {
		t.Errorf("expected gate to be free, in flight %d", gate.InFlight())
	}
}

func TestGate_ReleasesOnEngineError(t *testing.T) {
	obs := &observerStub{}
	engine := &countingEngine{err: errors.New("boom")}
	gate := NewGate(engine, GateConfig{Observer: obs, Log: testLogger()})

	_, err := gate.Transcribe(context.Background(), testBuffer(10), Options{})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}

	engine.err = nil
	if _, err := gate.Transcribe(context.Background(), testBuffer(10), Options{}); err != nil {
		t.Fatalf("gate should be reusable after failure, got %v", err)
	}
	if obs.acquired.Load() != 2 || obs.released.Load() != 2 || obs.failures.Load() != 1 {
		t.Errorf("unexpected observer counts: acquired=%d released=%d failures=%d",
			obs.acquired.Load(), obs.released.Load(), obs.failures.Load())
	}
}

func TestGate_ReleasesOnPanic(t *testing.T) {
	engine := &countingEngine{panicMsg: "segfault in decoder"}
	gate := NewGate(engine, GateConfig{Log: testLogger()})

	_, err := gate.Transcribe(context.Background(), testBuffer(10), Options{})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}

	engine.panicMsg = ""
	if _, err := gate.Transcribe(context.Background(), testBuffer(10), Options{}); err != nil {
		t.Errorf("gate should be reusable after panic, got %v", err)
	}
}

func TestGate_DecodeFailure(t *testing.T) {
	engine := &countingEngine{}
	gate := NewGate(engine, GateConfig{Log: testLogger()})

	bad := audio.Buffer{Format: audio.Format{Rate: 16000, Width: 2, Channels: 1}, Data: []byte{1, 2, 3}}
	_, err := gate.Transcribe(context.Background(), bad, Options{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if engine.calls.Load() != 0 {
		t.Errorf("engine should not be called for undecodable audio")
	}
	if gate.InFlight() != 0 {
		t.Error("gate should be released after decode failure")
	}
}

func TestGate_AcquireTimeout(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	gate := NewGate(engine, GateConfig{AcquireTimeout: 20 * time.Millisecond, Log: testLogger()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = gate.Transcribe(context.Background(), testBuffer(10), Options{})
	}()
	<-engine.started

	_, err := gate.Transcribe(context.Background(), testBuffer(10), Options{})
	if !errors.Is(err, ErrGateTimeout) {
		t.Errorf("expected ErrGateTimeout, got %v", err)
	}

	close(engine.release)
	<-done
	if gate.Waiting() != 0 {
		t.Errorf("expected no waiters, got %d", gate.Waiting())
	}
}

func TestGate_ContextCancelledWhileWaiting(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	gate := NewGate(engine, GateConfig{Log: testLogger()})

	go func() {
		_, _ = gate.Transcribe(context.Background(), testBuffer(10), Options{})
	}()
	<-engine.started
	defer close(engine.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gate.Transcribe(ctx, testBuffer(10), Options{}); !errors.Is(err, ErrGateTimeout) {
		t.Errorf("expected ErrGateTimeout, got %v", err)
	}
}

func TestGate_PassesLanguage(t *testing.T) {
	engine := &recordingEngine{text: "bonjour"}
	gate := NewGate(engine, GateConfig{Log: testLogger()})

	buf := audio.Buffer{Format: audio.Format{Rate: 8000, Width: 2, Channels: 1}, Data: make([]byte, 1600)}
	text, err := gate.Transcribe(context.Background(), buf, Options{Language: "fr"})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "bonjour" {
		t.Errorf("expected bonjour, got %q", text)
	}
	if engine.language != "fr" {
		t.Errorf("expected language fr, got %q", engine.language)
	}
	if len(engine.samples) != 1600 {
		t.Errorf("expected 800 frames resampled to 1600, got %d", len(engine.samples))
	}
}
