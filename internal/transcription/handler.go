package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"github.com/labstack/echo/v4"
)

const (
	maxUploadSize = 100 * 1024 * 1024
	httpTransport = "http"
)

type TranscriptionResponse struct {
	Text string `json:"text"`
}

type TranscriptionVerboseResponse struct {
	ID        string  `json:"id"`
	Language  string  `json:"language"`
	Duration  float64 `json:"duration"`
	LatencyMs int64   `json:"latency_ms"`
	Text      string  `json:"text"`
}

// Handler transcribes uploaded WAV files through the same gate the wyoming
// sessions use.
type Handler struct {
	gate            *Gate
	recorder        history.Recorder
	defaultLanguage string
	logger          *slog.Logger
}

func NewHandler(gate *Gate, recorder history.Recorder, defaultLanguage string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = history.NopRecorder{}
	}
	return &Handler{
		gate:            gate,
		recorder:        recorder,
		defaultLanguage: defaultLanguage,
		logger:          logger.With("handler", "transcription"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/transcriptions", h.HandleTranscriptions)
}

// HandleTranscriptions transcribes one uploaded file
// @Summary      Transcribe a file
// @Tags         transcription
// @Accept       multipart/form-data
// @Produce      json
// @Param        file             formData  file    true   "PCM WAV audio"
// @Param        language         formData  string  false  "Language code"
// @Param        response_format  formData  string  false  "json, text or verbose_json"
// @Success      200 {object} TranscriptionVerboseResponse
// @Failure      400 {object} shared.APIError
// @Failure      503 {object} shared.APIError "Engine busy"
// @Router       /v1/transcriptions [post]
func (h *Handler) HandleTranscriptions(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.BadRequest("missing_file", "File is required")
	}
	if file.Size > maxUploadSize {
		return shared.NewAPIError("file_too_large", "File too large (max 100MB)").ToHTTP(http.StatusRequestEntityTooLarge)
	}

	src, err := file.Open()
	if err != nil {
		return shared.InternalError("file_error", "Failed to open file")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return shared.InternalError("file_error", "Failed to read file")
	}

	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return shared.BadRequest("invalid_audio", "File must be a PCM WAV")
	}

	language := c.FormValue("language")
	if language == "" {
		language = h.defaultLanguage
	}
	responseFormat := c.FormValue("response_format")
	if responseFormat == "" {
		responseFormat = "json"
	}

	rec := &history.Record{
		ID:        shared.NewID("tr_"),
		SessionID: shared.NewID("http_"),
		Transport: httpTransport,
		Language:  language,
		Format:    buf.Format.String(),
		AudioMs:   buf.Duration().Milliseconds(),
		CreatedAt: time.Now(),
	}

	start := time.Now()
	text, err := h.gate.Transcribe(c.Request().Context(), buf, Options{Language: language})
	rec.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		rec.Status = history.StatusFailed
		rec.Error = err.Error()
		h.record(c.Request().Context(), rec)
		h.logger.Error("transcription failed", "error", err)
		return transcriptionError(err)
	}

	rec.Status = history.StatusSuccess
	rec.Text = text
	h.record(c.Request().Context(), rec)

	switch responseFormat {
	case "text":
		return c.String(http.StatusOK, text)
	case "verbose_json":
		return c.JSON(http.StatusOK, TranscriptionVerboseResponse{
			ID:        rec.ID,
			Language:  language,
			Duration:  buf.Duration().Seconds(),
			LatencyMs: rec.LatencyMs,
			Text:      text,
		})
	default:
		return c.JSON(http.StatusOK, TranscriptionResponse{Text: text})
	}
}

func (h *Handler) record(ctx context.Context, rec *history.Record) {
	if err := h.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Warn("failed to record transcription", "error", err)
	}
}

func transcriptionError(err error) error {
	switch {
	case errors.Is(err, ErrDecode):
		return shared.BadRequest("invalid_audio", "Audio could not be decoded")
	case errors.Is(err, ErrGateTimeout):
		return shared.ServiceUnavailable("engine_busy", "Engine is busy, try again")
	default:
		return shared.InternalError("transcription_failed", "Transcription failed")
	}
}
