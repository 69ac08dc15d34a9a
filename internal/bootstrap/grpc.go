package bootstrap

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	wyomingServiceName = "wyoming.asr"
	healthInterval     = 30 * time.Second
)

func NewGRPCServer() *grpc.Server {
	return grpc.NewServer()
}

func ProvideHealthServer() *health.Server {
	return health.NewServer()
}

func RegisterHealthService(server *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(server, hs)
}

func engineStatus(ctx context.Context, engine transcription.Engine) healthpb.HealthCheckResponse_ServingStatus {
	pinger, ok := engine.(transcription.Pinger)
	if !ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func setStatus(hs *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus("", status)
	hs.SetServingStatus(wyomingServiceName, status)
}

// StartGRPCServer serves the gRPC health protocol so orchestrators can health-check
// the service. The serving status follows the engine.
func StartGRPCServer(lc fx.Lifecycle, server *grpc.Server, hs *health.Server, engine transcription.Engine, cfg *Config, logger *slog.Logger) {
	if cfg.GRPCAddr == "" {
		return
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			setStatus(hs, engineStatus(ctx, engine))

			go func() {
				ticker := time.NewTicker(healthInterval)
				defer ticker.Stop()
				for {
					select {
					case <-watchCtx.Done():
						return
					case <-ticker.C:
						setStatus(hs, engineStatus(watchCtx, engine))
					}
				}
			}()

			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
				if err := server.Serve(lis); err != nil {
					logger.Error("gRPC server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopWatch()
			hs.Shutdown()
			server.GracefulStop()
			return nil
		},
	})
}

var GRPCModule = fx.Options(
	fx.Provide(NewGRPCServer, ProvideHealthServer),
	fx.Invoke(RegisterHealthService),
	fx.Invoke(StartGRPCServer),
)
