package transcription

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"google.golang.org/grpc/credentials"
)

const (
	BackendGRPC   = "grpc"
	BackendHTTP   = "http"
	BackendStatic = "static"
)

var (
	ErrGateTimeout = errors.New("timed out waiting for transcription gate")
	ErrDecode      = errors.New("audio decode failed")
	ErrInference   = errors.New("inference failed")
	ErrClosed      = errors.New("engine closed")
)

type Options struct {
	Language string
}

type Config struct {
	Backend        string
	Address        string
	Token          string
	TLSCreds       credentials.TransportCredentials
	Backoff        shared.BackoffConfig
	MaxMessageSize int
	Timeout        time.Duration

	Model          string
	Device         string
	Precision      string
	DataDirs       []string
	DownloadDir    string
	LocalFilesOnly bool

	StaticText string
}

func New(cfg Config, log *slog.Logger) (Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Backend {
	case BackendGRPC, "":
		return NewGRPCEngine(cfg, log)
	case BackendHTTP:
		return NewHTTPEngine(cfg, log)
	case BackendStatic:
		return NewStaticEngine(cfg.StaticText), nil
	default:
		return nil, fmt.Errorf("transcription: unknown backend %q (supported: grpc, http, static)", cfg.Backend)
	}
}

// modelHints are forwarded with every call so the sidecar loads the model
// this service advertises.
func modelHints(cfg Config) map[string]string {
	hints := make(map[string]string)
	if cfg.Model != "" {
		hints["model"] = cfg.Model
	}
	if cfg.Device != "" {
		hints["device"] = cfg.Device
	}
	if cfg.Precision != "" {
		hints["precision"] = cfg.Precision
	}
	if len(cfg.DataDirs) > 0 {
		hints["data_dirs"] = strings.Join(cfg.DataDirs, ",")
	}
	if cfg.DownloadDir != "" {
		hints["download_dir"] = cfg.DownloadDir
	}
	if cfg.LocalFilesOnly {
		hints["local_files_only"] = "true"
	}
	return hints
}

func normalizeBackoff(cfg shared.BackoffConfig) shared.BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = 100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	return cfg
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
