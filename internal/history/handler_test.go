package history

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *SQLStore, *RedisStore) {
	journal := NewSQLStore(setupTestDB(t))
	if err := journal.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	cache, _ := setupTestRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(journal, cache, logger), journal, cache
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()
	h.RegisterRoutes(e.Group("/v1"))

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Path] = true
	}
	for _, path := range []string{"/v1/transcripts", "/v1/transcripts/:id", "/v1/sessions/:id/last", "/v1/metrics/hourly"} {
		if !routePaths[path] {
			t.Errorf("expected route %s to be registered", path)
		}
	}
}

func TestHandler_ListAndGet(t *testing.T) {
	h, journal, _ := newTestHandler(t)
	r := &Record{SessionID: "s1", Text: "turn on the lights", Status: StatusSuccess}
	if err := journal.Record(context.Background(), r); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/transcripts?limit=10", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("List error: %v", err)
	}

	var body struct {
		Total       int      `json:"total"`
		Transcripts []Record `json:"transcripts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Total != 1 || body.Transcripts[0].Text != "turn on the lights" {
		t.Errorf("unexpected body %+v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/transcripts/"+r.ID, nil)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID)
	if err := h.Get(c); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Errors(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()

	tests := []struct {
		name   string
		target string
		param  string
		call   func(echo.Context) error
		status int
	}{
		{"invalid limit", "/v1/transcripts?limit=abc", "", h.List, http.StatusBadRequest},
		{"missing transcript", "/v1/transcripts/tr_missing", "tr_missing", h.Get, http.StatusNotFound},
		{"missing last", "/v1/sessions/nobody/last", "nobody", h.Last, http.StatusNotFound},
		{"hours out of range", "/v1/metrics/hourly?hours=1000", "", h.Hourly, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			if tt.param != "" {
				c.SetParamNames("id")
				c.SetParamValues(tt.param)
			}
			err := tt.call(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if httpErr.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, httpErr.Code)
			}
		})
	}
}

func TestHandler_Disabled(t *testing.T) {
	h := NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/hourly", nil)
	err := h.Hourly(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", err)
	}
}

func TestHandler_Hourly(t *testing.T) {
	h, _, cache := newTestHandler(t)
	_ = cache.Record(context.Background(), &Record{SessionID: "s1", Status: StatusSuccess, AudioMs: 250})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/hourly?hours=1", nil)
	rec := httptest.NewRecorder()
	if err := h.Hourly(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Hourly error: %v", err)
	}

	var metrics []Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(metrics) != 1 || metrics[0].Transcriptions != 1 || metrics[0].AudioMs != 250 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
}
