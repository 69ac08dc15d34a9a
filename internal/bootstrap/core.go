package bootstrap

import (
	"context"
	"crypto/tls"
	"log/slog"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/eleven-am/parakeet-wyoming/internal/info"
	"github.com/eleven-am/parakeet-wyoming/internal/metrics"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"go.uber.org/fx"
	"google.golang.org/grpc/credentials"
)

func ProvideEngine(lc fx.Lifecycle, cfg *Config, log *slog.Logger) (transcription.Engine, error) {
	tc := cfg.TranscriptionConfig()
	if cfg.Engine.TLS {
		tc.TLSCreds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	engine, err := transcription.New(tc, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pinger, ok := engine.(transcription.Pinger)
			if !ok {
				return nil
			}
			if err := pinger.Ping(ctx); err != nil {
				log.Warn("engine not ready yet", "backend", engine.Name(), "error", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return engine.Close()
		},
	})

	log.Info("engine configured", "backend", engine.Name(), "model", tc.Model, "device", tc.Device, "precision", tc.Precision)
	return engine, nil
}

func ProvideMetrics() *metrics.Metrics {
	m := metrics.New()
	m.RegisterRuntime()
	return m
}

func ProvideGate(engine transcription.Engine, cfg *Config, m *metrics.Metrics, log *slog.Logger) *transcription.Gate {
	return transcription.NewGate(engine, transcription.GateConfig{
		AcquireTimeout: cfg.Gate.AcquireTimeout,
		CallTimeout:    cfg.Gate.CallTimeout,
		Observer:       m,
		Log:            log,
	})
}

func ProvideDescriptor(cfg *Config) (*info.Descriptor, error) {
	return info.New(cfg.InfoConfig())
}

func ProvideStager(cfg *Config) (audio.Stager, error) {
	return audio.NewStager(cfg.Staging.Mode, cfg.Staging.Dir)
}

func ProvideManager(
	lc fx.Lifecycle,
	cfg *Config,
	gate *transcription.Gate,
	descriptor *info.Descriptor,
	stager audio.Stager,
	recorder history.Recorder,
	m *metrics.Metrics,
	log *slog.Logger,
) *asr.Manager {
	manager := asr.NewManager(asr.ManagerConfig{
		Gate:            gate,
		Info:            descriptor,
		Stager:          stager,
		Recorder:        recorder,
		Observer:        m,
		DefaultLanguage: cfg.Language,
		MaxAudioBytes:   cfg.MaxAudioBytes,
		Log:             log,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return manager.Close()
		},
	})
	return manager
}

var CoreModule = fx.Options(
	fx.Provide(
		ProvideEngine,
		ProvideMetrics,
		ProvideGate,
		ProvideDescriptor,
		ProvideStager,
		ProvideManager,
	),
)
