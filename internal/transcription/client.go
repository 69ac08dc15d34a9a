package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const defaultMaxMessageSize = 512 * 1024 * 1024

type GRPCEngine struct {
	addr    string
	conn    *grpc.ClientConn
	mu      sync.RWMutex
	token   string
	hints   map[string]string
	timeout time.Duration
	backoff shared.BackoffConfig
	closed  bool
	log     *slog.Logger
}

func NewGRPCEngine(cfg Config, log *slog.Logger, opts ...grpc.DialOption) (*GRPCEngine, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("transcription: grpc backend requires an address: %w", shared.ErrNotConfigured)
	}
	if log == nil {
		log = slog.Default()
	}

	var creds grpc.DialOption
	if cfg.TLSCreds != nil {
		creds = grpc.WithTransportCredentials(cfg.TLSCreds)
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	maxMsgSize := cfg.MaxMessageSize
	if maxMsgSize <= 0 {
		maxMsgSize = defaultMaxMessageSize
	}

	dialOpts := append([]grpc.DialOption{
		creds,
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMsgSize),
			grpc.MaxCallSendMsgSize(maxMsgSize),
		),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial engine sidecar: %w", err)
	}

	log.Info("engine sidecar configured", "address", cfg.Address, "model", cfg.Model, "device", cfg.Device, "precision", cfg.Precision)

	return &GRPCEngine{
		addr:    cfg.Address,
		conn:    conn,
		token:   cfg.Token,
		hints:   modelHints(cfg),
		timeout: cfg.Timeout,
		backoff: normalizeBackoff(cfg.Backoff),
		log:     log.With("component", "grpc_engine"),
	}, nil
}

func (e *GRPCEngine) Name() string {
	return BackendGRPC
}

func (e *GRPCEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	e.mu.RLock()
	conn, closed := e.conn, e.closed
	e.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}

	req := wrapperspb.Bytes(audio.Float32ToBytes(samples))
	backoff := e.backoff.Initial

	var lastErr error
	for attempt := 0; attempt < e.backoff.MaxAttempts; attempt++ {
		callCtx, cancel := e.callContext(ctx, opts)
		resp := new(wrapperspb.StringValue)
		err := conn.Invoke(callCtx, EngineTranscribeMethod, req, resp)
		cancel()
		if err == nil {
			return resp.GetValue(), nil
		}

		lastErr = err
		if status.Code(err) != codes.Unavailable {
			return "", err
		}

		e.log.Warn("engine unavailable, retrying", "attempt", attempt+1, "max_attempts", e.backoff.MaxAttempts, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = minDuration(backoff*2, e.backoff.MaxDelay)
	}

	return "", fmt.Errorf("engine call failed after %d attempts: %w", e.backoff.MaxAttempts, lastErr)
}

func (e *GRPCEngine) callContext(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	md := metadata.MD{}
	if e.token != "" {
		md.Set("authorization", fmt.Sprintf("Bearer %s", e.token))
	}
	if opts.Language != "" {
		md.Set(mdLanguage, opts.Language)
	}
	for k, v := range e.hints {
		md.Set(mdPrefix+strings.ReplaceAll(k, "_", "-"), v)
	}

	ctx = metadata.NewOutgoingContext(ctx, md)
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

func (e *GRPCEngine) IsConnected() bool {
	e.mu.RLock()
	conn := e.conn
	e.mu.RUnlock()
	if conn == nil {
		return false
	}
	s := conn.GetState()
	return s == connectivity.Ready || s == connectivity.Idle
}

func (e *GRPCEngine) Ping(ctx context.Context) error {
	e.mu.RLock()
	conn, closed := e.conn, e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: EngineServiceName})
	if err != nil {
		return fmt.Errorf("engine health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("engine %s: %w", resp.GetStatus(), shared.ErrUnavailable)
	}
	return nil
}

func (e *GRPCEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}
