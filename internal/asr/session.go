package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/eleven-am/parakeet-wyoming/internal/info"
	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"github.com/eleven-am/parakeet-wyoming/internal/wyoming"
	"github.com/google/uuid"
)

const (
	CodeProtocolViolation   = "protocol-violation"
	CodeTranscriptionFailed = "transcription-failed"
)

// ErrProtocolViolation is returned by Handle when the client broke the event
// order. The transport closes the connection; the session has already reset.
var ErrProtocolViolation = errors.New("protocol violation")

type State int32

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	default:
		return "idle"
	}
}

type SessionConfig struct {
	ID              string
	Remote          string
	Transport       string
	DefaultLanguage string
	MaxAudioBytes   int
	Stager          audio.Stager
	Gate            *transcription.Gate
	Info            *info.Descriptor
	Recorder        history.Recorder
	Observer        Observer
	Log             *slog.Logger
}

// Session is the per-connection state machine. Handle must be called from a
// single goroutine; the introspection accessors are safe from any goroutine.
type Session struct {
	id              string
	remote          string
	transport       string
	defaultLanguage string
	createdAt       time.Time

	gate      *transcription.Gate
	info      *info.Descriptor
	recorder  history.Recorder
	observer  Observer
	assembler *audio.Assembler
	log       *slog.Logger

	handleMu sync.Mutex
	closed   bool

	mu       sync.RWMutex
	language string

	state    atomic.Int32
	buffered atomic.Int64
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = history.NopRecorder{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	assembler := audio.NewAssembler(cfg.Stager)
	assembler.SetMaxBytes(cfg.MaxAudioBytes)

	return &Session{
		id:              cfg.ID,
		remote:          cfg.Remote,
		transport:       cfg.Transport,
		defaultLanguage: cfg.DefaultLanguage,
		createdAt:       time.Now(),
		gate:            cfg.Gate,
		info:            cfg.Info,
		recorder:        cfg.Recorder,
		observer:        cfg.Observer,
		assembler:       assembler,
		language:        cfg.DefaultLanguage,
		log:             cfg.Log.With("session_id", cfg.ID, "transport", cfg.Transport),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Remote() string {
	return s.remote
}

func (s *Session) Transport() string {
	return s.transport
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *Session) BufferedBytes() int {
	return int(s.buffered.Load())
}

// Handle applies one inbound event and returns the replies to send, in order.
func (s *Session) Handle(ctx context.Context, ev *wyoming.Event) ([]*wyoming.Event, error) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	kind := wyoming.Classify(ev)
	s.observer.EventHandled(kind.String())

	switch kind {
	case wyoming.KindDescribe:
		return []*wyoming.Event{s.info.Event()}, nil
	case wyoming.KindConfigure:
		s.configure(wyoming.TranscribeFromEvent(ev))
		return nil, nil
	case wyoming.KindAudioChunk:
		return s.appendChunk(ev)
	case wyoming.KindAudioStop:
		return s.finish(ctx)
	case wyoming.KindUnrecognized:
		s.log.Debug("ignoring event", "type", ev.Type)
		return nil, nil
	default:
		return nil, nil
	}
}

func (s *Session) configure(t wyoming.Transcribe) {
	if t.Language == "" {
		return
	}
	s.mu.Lock()
	s.language = t.Language
	s.mu.Unlock()
	s.log.Debug("language configured", "language", t.Language)
}

func (s *Session) appendChunk(ev *wyoming.Event) ([]*wyoming.Event, error) {
	chunk, err := wyoming.AudioChunkFromEvent(ev)
	if err != nil {
		return s.violation(err)
	}

	if s.State() == StateIdle {
		if err := s.assembler.Open(); err != nil {
			s.reset()
			return nil, fmt.Errorf("open accumulation: %w", err)
		}
		s.state.Store(int32(StateAccumulating))
	}

	f := audio.Format{Rate: chunk.Rate, Width: chunk.Width, Channels: chunk.Channels}
	err = s.assembler.Append(f, chunk.Audio)
	s.buffered.Store(int64(s.assembler.Len()))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, audio.ErrStage):
		s.log.Warn("audio staging failed", "error", err)
		return nil, nil
	default:
		return s.violation(err)
	}
}

func (s *Session) finish(ctx context.Context) ([]*wyoming.Event, error) {
	if s.State() != StateAccumulating {
		return s.violation(errors.New("audio-stop without audio"))
	}
	defer s.reset()

	language := s.Language()
	buf, err := s.assembler.Finalize()
	if errors.Is(err, audio.ErrStage) {
		s.log.Warn("audio staging failed", "error", err)
	} else if err != nil {
		return s.failed(buf, language, 0, err), nil
	}

	start := time.Now()
	text, err := s.gate.Transcribe(ctx, buf, transcription.Options{Language: language})
	latency := time.Since(start)
	if err != nil {
		s.log.Error("transcription failed", "error", err, "audio_duration", buf.Duration())
		return s.failed(buf, language, latency, err), nil
	}

	s.log.Info("transcribed", "chars", len(text), "audio_duration", buf.Duration(), "latency", latency)
	s.observer.TranscriptionFinished(history.StatusSuccess, buf.Duration(), latency)
	s.record(ctx, &history.Record{
		Language:  language,
		Text:      text,
		Format:    buf.Format.String(),
		AudioMs:   buf.Duration().Milliseconds(),
		LatencyMs: latency.Milliseconds(),
		Status:    history.StatusSuccess,
	})

	return []*wyoming.Event{wyoming.Transcript{Text: text}.ToEvent()}, nil
}

func (s *Session) failed(buf audio.Buffer, language string, latency time.Duration, err error) []*wyoming.Event {
	s.observer.TranscriptionFinished(history.StatusFailed, buf.Duration(), latency)
	s.record(context.Background(), &history.Record{
		Language:  language,
		Format:    buf.Format.String(),
		AudioMs:   buf.Duration().Milliseconds(),
		LatencyMs: latency.Milliseconds(),
		Status:    history.StatusFailed,
		Error:     err.Error(),
	})
	return []*wyoming.Event{wyoming.Error{Text: err.Error(), Code: CodeTranscriptionFailed}.ToEvent()}
}

func (s *Session) violation(cause error) ([]*wyoming.Event, error) {
	s.reset()
	s.observer.ProtocolViolation()
	s.log.Warn("protocol violation", "error", cause)
	reply := wyoming.Error{Text: cause.Error(), Code: CodeProtocolViolation}.ToEvent()
	return []*wyoming.Event{reply}, fmt.Errorf("%w: %v", ErrProtocolViolation, cause)
}

func (s *Session) record(ctx context.Context, r *history.Record) {
	r.ID = shared.NewID("tr_")
	r.SessionID = s.id
	r.Transport = s.transport
	r.CreatedAt = time.Now()
	if err := s.recorder.Record(context.WithoutCancel(ctx), r); err != nil {
		s.log.Warn("failed to record transcription", "error", err)
	}
}

func (s *Session) reset() {
	if err := s.assembler.Discard(); err != nil {
		s.log.Warn("failed to release staged audio", "error", err)
	}
	s.buffered.Store(0)
	s.state.Store(int32(StateIdle))
	s.mu.Lock()
	s.language = s.defaultLanguage
	s.mu.Unlock()
}

func (s *Session) Close() {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reset()
}
