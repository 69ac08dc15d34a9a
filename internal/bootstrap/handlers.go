package bootstrap

import (
	"io"
	"log/slog"
	"os"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/eleven-am/parakeet-wyoming/internal/metrics"
	"github.com/eleven-am/parakeet-wyoming/internal/server"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	HistoryHandler       *history.Handler
	TranscriptionHandler *transcription.Handler
	WSHandler            *server.WSHandler
	Metrics              *metrics.Metrics
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	e.Use(params.Metrics.Middleware())
	params.Metrics.RegisterRoutes(e)
	params.WSHandler.RegisterRoutes(e)

	v1 := e.Group("/v1")
	params.HistoryHandler.RegisterRoutes(v1)
	params.TranscriptionHandler.RegisterRoutes(v1)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandlerV3())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

func ProvideHistoryHandler(journal *history.SQLStore, cache *history.RedisStore, logger *slog.Logger) *history.Handler {
	return history.NewHandler(journal, cache, logger.With("handler", "history"))
}

func ProvideTranscriptionHandler(gate *transcription.Gate, recorder history.Recorder, cfg *Config, logger *slog.Logger) *transcription.Handler {
	return transcription.NewHandler(gate, recorder, cfg.Language, logger)
}

func ProvideWSHandler(manager *asr.Manager, logger *slog.Logger) *server.WSHandler {
	return server.NewWSHandler(manager, logger)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideHistoryHandler,
		ProvideTranscriptionHandler,
		ProvideWSHandler,
	),
	fx.Invoke(RegisterRoutes),
)
