package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/server"
	"go.uber.org/fx"
)

func ProvideListener(cfg *Config, manager *asr.Manager, log *slog.Logger) (*server.Listener, error) {
	return server.NewListener(server.ListenerConfig{
		URI:                  cfg.URI,
		ConnectionsPerSecond: cfg.RateLimit.ConnectionsPerSecond,
		ConnectionBurst:      cfg.RateLimit.Burst,
		Log:                  log,
	}, manager)
}

func StartListener(lc fx.Lifecycle, listener *server.Listener, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := listener.Listen(); err != nil {
				return err
			}
			go func() {
				if err := listener.Serve(context.Background()); err != nil {
					log.Error("wyoming listener error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return listener.Shutdown(ctx)
		},
	})
}

var WyomingModule = fx.Options(
	fx.Provide(ProvideListener),
	fx.Invoke(StartListener),
)
