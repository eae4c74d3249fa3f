package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Query-Tools Metrics - using explicit registration
var (
	// HTTP request counters
	RequestsTotal *prometheus.CounterVec

	// Tool call counters
	ToolCallsTotal *prometheus.CounterVec

	// Tool duration histogram
	ToolDuration *prometheus.HistogramVec

	// Open transport sessions
	SessionsActive *prometheus.GaugeVec

	// Posted envelopes rejected because a session queue was full
	SessionRejectsTotal *prometheus.CounterVec

	// Backing store reachability as seen by health checks (1 up, 0 down)
	BackingStoreUp prometheus.Gauge
)

// init creates and registers all metrics with the default registry
func init() {
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "query_tools",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "query_tools",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by outcome",
		},
		[]string{"tool_name", "status"},
	)

	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "query_tools",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	SessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "jan",
			Subsystem: "query_tools",
			Name:      "sessions_active",
			Help:      "Currently open transport sessions",
		},
		[]string{"transport"},
	)

	SessionRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "query_tools",
			Name:      "session_rejects_total",
			Help:      "Envelopes rejected because the session queue was full",
		},
		[]string{"transport"},
	)

	BackingStoreUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jan",
			Subsystem: "query_tools",
			Name:      "backing_store_up",
			Help:      "Whether the last health check reached the backing store",
		},
	)

	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(ToolCallsTotal)
	prometheus.MustRegister(ToolDuration)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionRejectsTotal)
	prometheus.MustRegister(BackingStoreUp)
	log.Debug().Msg("query-tools metrics registered with Prometheus")
}

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string) {
	if route == "" {
		route = "unmatched"
	}
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordToolCall records a tool invocation
func RecordToolCall(toolName, status string, durationSec float64) {
	if status == "" {
		status = "unknown"
	}
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	ToolDuration.WithLabelValues(toolName).Observe(durationSec)
}

// SessionOpened increments the open session gauge for transport.
func SessionOpened(transport string) {
	SessionsActive.WithLabelValues(transport).Inc()
}

// SessionClosed decrements the open session gauge for transport.
func SessionClosed(transport string) {
	SessionsActive.WithLabelValues(transport).Dec()
}

// RecordSessionReject counts an envelope turned away by a full queue.
func RecordSessionReject(transport string) {
	SessionRejectsTotal.WithLabelValues(transport).Inc()
}

// SetBackingStoreUp records the outcome of a health round-trip.
func SetBackingStoreUp(up bool) {
	if up {
		BackingStoreUp.Set(1)
		return
	}
	BackingStoreUp.Set(0)
}

// ToolCallObserver feeds registry dispatch outcomes into Prometheus.
type ToolCallObserver struct{}

func NewToolCallObserver() *ToolCallObserver {
	return &ToolCallObserver{}
}

func (ToolCallObserver) ObserveToolCall(tool, status string, d time.Duration) {
	RecordToolCall(tool, status, d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
