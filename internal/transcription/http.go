package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/shared"
)

const defaultHTTPTimeout = 60 * time.Second

type transcribeResponse struct {
	Text string `json:"text"`
}

// HTTPEngine posts a 16 kHz mono WAV to a transcription endpoint.
type HTTPEngine struct {
	endpoint *url.URL
	client   *http.Client
	token    string
	hints    map[string]string
	backoff  shared.BackoffConfig
	log      *slog.Logger
}

func NewHTTPEngine(cfg Config, log *slog.Logger) (*HTTPEngine, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("transcription: http backend requires an address: %w", shared.ErrNotConfigured)
	}
	if log == nil {
		log = slog.Default()
	}

	base, err := url.Parse(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("parse engine url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("engine url %q must be http or https", cfg.Address)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/transcribe"

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPEngine{
		endpoint: base,
		client:   &http.Client{Timeout: timeout},
		token:    cfg.Token,
		hints:    modelHints(cfg),
		backoff:  normalizeBackoff(cfg.Backoff),
		log:      log.With("component", "http_engine"),
	}, nil
}

func (e *HTTPEngine) Name() string {
	return BackendHTTP
}

func (e *HTTPEngine) Transcribe(ctx context.Context, samples []float32, opts Options) (string, error) {
	wav, err := audio.EncodeMonoWAV(samples, audio.EngineSampleRate)
	if err != nil {
		return "", err
	}

	target := e.requestURL(opts)
	backoff := e.backoff.Initial

	var lastErr error
	for attempt := 0; attempt < e.backoff.MaxAttempts; attempt++ {
		text, retry, err := e.post(ctx, target, wav)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry {
			return "", err
		}

		e.log.Warn("engine request failed, retrying", "attempt", attempt+1, "max_attempts", e.backoff.MaxAttempts, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = minDuration(backoff*2, e.backoff.MaxDelay)
	}

	return "", fmt.Errorf("engine request failed after %d attempts: %w", e.backoff.MaxAttempts, lastErr)
}

func (e *HTTPEngine) requestURL(opts Options) string {
	u := *e.endpoint
	q := u.Query()
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	for k, v := range e.hints {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (e *HTTPEngine) post(ctx context.Context, target string, wav []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(wav))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "audio/wav")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("engine server error status=%d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("engine rejected request status=%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode engine response: %w", err)
	}
	return out.Text, false, nil
}

func (e *HTTPEngine) Ping(ctx context.Context) error {
	u := *e.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/transcribe") + "/health"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health status=%d: %w", resp.StatusCode, shared.ErrUnavailable)
	}
	return nil
}

func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
