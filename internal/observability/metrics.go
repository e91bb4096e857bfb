package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valerka1292/conclave/pkg/models"
)

// Metrics is the kernel's Prometheus instrument set. Every instrument here
// is wired: the oracle pair via oracle.Instrument, the tool pair via the
// instrumented tool backends, the bus counter via BusObserver, and the HTTP
// pair via Middleware. Each Metrics owns its registry so tests can build as
// many as they like without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// OracleRequests counts reasoning-oracle calls.
	// Labels: provider (anthropic|openai|gemini), model, status (success|error)
	OracleRequests *prometheus.CounterVec

	// OracleRequestDuration measures oracle call latency in seconds.
	// Labels: provider, model
	OracleRequestDuration *prometheus.HistogramVec

	// ToolExecutions counts tool-backend invocations.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool-backend latency in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// BusMessages counts every envelope published on the event bus.
	// Labels: type (the Message discriminator)
	BusMessages *prometheus.CounterVec

	// HTTPRequests counts transport requests.
	// Labels: method, path, code
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration measures transport request latency in seconds.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics builds and registers the instrument set on a fresh registry,
// alongside the standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OracleRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_oracle_requests_total",
			Help: "Reasoning-oracle calls by provider, model, and outcome.",
		}, []string{"provider", "model", "status"}),
		OracleRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conclave_oracle_request_duration_seconds",
			Help:    "Reasoning-oracle call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_tool_executions_total",
			Help: "Tool-backend invocations by tool and outcome.",
		}, []string{"tool", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conclave_tool_execution_duration_seconds",
			Help:    "Tool-backend latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		BusMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_bus_messages_total",
			Help: "Envelopes published on the event bus, by discriminator.",
		}, []string{"type"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conclave_http_requests_total",
			Help: "Transport requests by method, path, and status code.",
		}, []string{"method", "path", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conclave_http_request_duration_seconds",
			Help:    "Transport request latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"method", "path"}),
	}
}

// Handler serves this instrument set's registry (mounted at /metrics).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOracleRequest records one reasoning-oracle call.
func (m *Metrics) RecordOracleRequest(provider, model, status string, duration time.Duration) {
	m.OracleRequests.WithLabelValues(provider, model, status).Inc()
	m.OracleRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordToolExecution records one tool-backend invocation.
func (m *Metrics) RecordToolExecution(tool, status string, duration time.Duration) {
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// BusObserver returns a global bus subscriber that counts every published
// envelope by discriminator. Intended for bus.SubscribeGlobal.
func (m *Metrics) BusObserver() func(models.Message) {
	return func(msg models.Message) {
		m.BusMessages.WithLabelValues(string(msg.Type)).Inc()
	}
}

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware instruments an http.Handler with the HTTP request pair. The
// path label is the raw request path (r.URL.Path), so every distinct path
// requested becomes its own label value.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		m.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.code)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
