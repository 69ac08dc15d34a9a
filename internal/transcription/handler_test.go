package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/labstack/echo/v4"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []*history.Record
}

func (r *memoryRecorder) Record(_ context.Context, rec *history.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func uploadRequest(t *testing.T, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if file != nil {
		part, err := w.CreateFormFile("file", "speech.wav")
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		_, _ = part.Write(file)
	}
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(testBuffer(16000))
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	return data
}

func newTestHandler(engine Engine, recorder history.Recorder) (*echo.Echo, *Handler) {
	e := echo.New()
	h := NewHandler(NewGate(engine, GateConfig{Log: testLogger()}), recorder, "en", testLogger())
	h.RegisterRoutes(e.Group("/v1"))
	return e, h
}

func TestHandler_Transcriptions(t *testing.T) {
	recorder := &memoryRecorder{}
	e, _ := newTestHandler(NewStaticEngine("turn on the lights"), recorder)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, testWAV(t), map[string]string{"language": "de", "response_format": "verbose_json"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TranscriptionVerboseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "turn on the lights" || resp.Language != "de" || resp.Duration != 1 {
		t.Errorf("unexpected response %+v", resp)
	}

	if len(recorder.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recorder.records))
	}
	r := recorder.records[0]
	if r.Transport != "http" || r.Status != history.StatusSuccess || r.AudioMs != 1000 || r.ID != resp.ID {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestHandler_TextFormat(t *testing.T) {
	e, _ := newTestHandler(NewStaticEngine("hello"), nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, uploadRequest(t, testWAV(t), map[string]string{"response_format": "text"}))

	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "hello" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		engine Engine
		file   []byte
		status int
	}{
		{"missing file", NewStaticEngine("x"), nil, http.StatusBadRequest},
		{"not a wav", NewStaticEngine("x"), []byte("definitely not audio"), http.StatusBadRequest},
		{"engine failure", &countingEngine{err: errors.New("cuda oom")}, []byte{}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &memoryRecorder{}
			_, h := newTestHandler(tt.engine, recorder)

			file := tt.file
			if file != nil && len(file) == 0 {
				file = testWAV(t)
			}
			c := echo.New().NewContext(uploadRequest(t, file, nil), httptest.NewRecorder())

			err := h.HandleTranscriptions(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected HTTPError, got %v", err)
			}
			if he.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, he.Code)
			}
		})
	}
}

func TestTranscriptionError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrDecode, http.StatusBadRequest},
		{ErrGateTimeout, http.StatusServiceUnavailable},
		{ErrInference, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		if !errors.As(transcriptionError(tt.err), &he) || he.Code != tt.status {
			t.Errorf("transcriptionError(%v) = %v, want %d", tt.err, he, tt.status)
		}
	}
}
