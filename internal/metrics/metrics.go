package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parakeet"

// Metrics holds the service collectors. It observes the asr sessions and the
// transcription gate.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive        prometheus.Gauge
	SessionsTotal         *prometheus.CounterVec
	EventsTotal           *prometheus.CounterVec
	TranscriptionsTotal   *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	GateWait              prometheus.Histogram
	GateInFlight          prometheus.Gauge
	GateFailures          *prometheus.CounterVec
	AudioSeconds          prometheus.Counter
	ProtocolViolations    prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Current number of open client sessions",
		}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of client sessions opened",
		}, []string{"transport"}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of inbound events by kind",
		}, []string{"kind"}),
		TranscriptionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of transcription attempts by outcome",
		}, []string{"status"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Time from audio-stop to transcript, including the gate wait",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		GateWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the engine",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
		GateInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_in_flight",
			Help:      "Whether the engine is currently transcribing",
		}),
		GateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_failures_total",
			Help:      "Total number of failed engine calls by reason",
		}, []string{"reason"}),
		AudioSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_total",
			Help:      "Total seconds of audio transcribed",
		}),
		ProtocolViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Total number of connections closed for protocol violations",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RegisterRuntime adds the Go runtime and process collectors.
func (m *Metrics) RegisterRuntime() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			m.HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) SessionOpened(transport string) {
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionClosed(string) {
	m.SessionsActive.Dec()
}

func (m *Metrics) EventHandled(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) TranscriptionFinished(status history.Status, audio, latency time.Duration) {
	m.TranscriptionsTotal.WithLabelValues(string(status)).Inc()
	if status == history.StatusSuccess {
		m.AudioSeconds.Add(audio.Seconds())
		m.TranscriptionDuration.Observe(latency.Seconds())
	}
}

func (m *Metrics) ProtocolViolation() {
	m.ProtocolViolations.Inc()
}

func (m *Metrics) GateAcquired(wait time.Duration) {
	m.GateWait.Observe(wait.Seconds())
	m.GateInFlight.Set(1)
}

func (m *Metrics) GateReleased(_ time.Duration, err error) {
	m.GateInFlight.Set(0)
	switch {
	case err == nil:
	case errors.Is(err, transcription.ErrDecode):
		m.GateFailures.WithLabelValues("decode").Inc()
	default:
		m.GateFailures.WithLabelValues("inference").Inc()
	}
}
