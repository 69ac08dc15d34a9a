package history

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"github.com/labstack/echo/v4"
)

const (
	defaultListLimit    = 50
	defaultMetricsHours = 24
	maxMetricsHours     = 7 * 24
)

type Handler struct {
	journal *SQLStore
	cache   *RedisStore
	logger  *slog.Logger
}

func NewHandler(journal *SQLStore, cache *RedisStore, logger *slog.Logger) *Handler {
	return &Handler{
		journal: journal,
		cache:   cache,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/transcripts", h.List)
	g.GET("/transcripts/:id", h.Get)
	g.GET("/sessions/:id/last", h.Last)
	g.GET("/metrics/hourly", h.Hourly)
}

// List returns the most recent transcripts
// @Summary      List recent transcripts
// @Tags         history
// @Produce      json
// @Param        limit       query  int     false  "Maximum records (1-500)"
// @Param        session_id  query  string  false  "Filter by session"
// @Success      200 {array}  Record
// @Failure      400 {object} shared.APIError
// @Failure      503 {object} shared.APIError "Journal disabled"
// @Router       /v1/transcripts [get]
func (h *Handler) List(c echo.Context) error {
	if h.journal == nil {
		return shared.ServiceUnavailable("journal_disabled", "transcript journal is not configured")
	}

	limit := defaultListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return shared.BadRequest("invalid_limit", "limit must be a positive integer")
		}
		limit = n
	}

	var (
		records []Record
		err     error
	)
	if sessionID := c.QueryParam("session_id"); sessionID != "" {
		records, err = h.journal.ListBySession(c.Request().Context(), sessionID)
	} else {
		records, err = h.journal.ListRecent(c.Request().Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to list transcripts", "error", err)
		return shared.InternalError("list_failed", "failed to list transcripts")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":       len(records),
		"transcripts": records,
	})
}

// @Summary      Get a transcript
// @Tags         history
// @Produce      json
// @Param        id  path  string  true  "Transcript ID"
// @Success      200 {object} Record
// @Failure      404 {object} shared.APIError
// @Router       /v1/transcripts/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	if h.journal == nil {
		return shared.ServiceUnavailable("journal_disabled", "transcript journal is not configured")
	}

	r, err := h.journal.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("transcript_not_found", "transcript not found")
	}
	if err != nil {
		h.logger.Error("failed to get transcript", "error", err)
		return shared.InternalError("get_failed", "failed to get transcript")
	}
	return c.JSON(http.StatusOK, r)
}

// @Summary      Last transcript of a session
// @Tags         history
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200 {object} Record
// @Failure      404 {object} shared.APIError
// @Router       /v1/sessions/{id}/last [get]
func (h *Handler) Last(c echo.Context) error {
	if h.cache == nil {
		return shared.ServiceUnavailable("cache_disabled", "transcript cache is not configured")
	}

	r, err := h.cache.GetLast(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("transcript_not_found", "no transcript for session")
	}
	if err != nil {
		h.logger.Error("failed to get last transcript", "error", err)
		return shared.InternalError("get_failed", "failed to get last transcript")
	}
	return c.JSON(http.StatusOK, r)
}

// @Summary      Hourly transcription counters
// @Tags         history
// @Produce      json
// @Param        hours  query  int  false  "Hours to look back (1-168)"
// @Success      200 {array}  Metrics
// @Router       /v1/metrics/hourly [get]
func (h *Handler) Hourly(c echo.Context) error {
	if h.cache == nil {
		return shared.ServiceUnavailable("cache_disabled", "metrics cache is not configured")
	}

	hours := defaultMetricsHours
	if v := c.QueryParam("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxMetricsHours {
			return shared.BadRequest("invalid_hours", "hours must be between 1 and 168")
		}
		hours = n
	}

	metrics, err := h.cache.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err)
		return shared.InternalError("metrics_failed", "failed to get metrics")
	}
	if metrics == nil {
		metrics = []*Metrics{}
	}
	return c.JSON(http.StatusOK, metrics)
}
