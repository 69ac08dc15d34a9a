package bootstrap

import (
	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/health"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideHealthHandler(
	db *gorm.DB,
	redis *redis.Client,
	gate *transcription.Gate,
	manager *asr.Manager,
) *health.Handler {
	return health.NewHandler(
		db,
		redis,
		gate,
		manager,
		Version,
	)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
