package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/pkg/models"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info("oracle configured", "key", "api_key=sk_live_very_secret_value")

	line := logLine(t, &buf)
	assert.Contains(t, line["key"], redactedPlaceholder)
	assert.NotContains(t, buf.String(), "sk_live_very_secret_value")
}

func TestLoggerRedactsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	logger.With("auth", "Bearer abc123def456").Info("request sent")

	assert.NotContains(t, buf.String(), "abc123def456")
}

func TestLoggerCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	ctx := WithCorrelationID(context.Background(), "corr-42")
	logger.InfoContext(ctx, "work submitted")

	line := logLine(t, &buf)
	assert.Equal(t, "corr-42", line["correlation_id"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMetricsRecordOracleRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordOracleRequest("anthropic", "claude-sonnet", "success", 250*time.Millisecond)
	m.RecordOracleRequest("anthropic", "claude-sonnet", "error", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleRequests.WithLabelValues("anthropic", "claude-sonnet", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleRequests.WithLabelValues("anthropic", "claude-sonnet", "error")))
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/v1/chat", "418")))
}

func TestMetricsBusObserver(t *testing.T) {
	m := NewMetrics()
	observe := m.BusObserver()

	observe(models.Message{Type: models.MsgToolUse})
	observe(models.Message{Type: models.MsgToolUse})
	observe(models.Message{Type: models.MsgInterrupt})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("tool-use")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusMessages.WithLabelValues("interrupt")))
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics()
	m.RecordToolExecution("web_search", "success", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Contains(t, rec.Body.String(), "conclave_tool_executions_total")
}

func TestTracerDisabledIsNoop(t *testing.T) {
	tracer, shutdown, err := NewTracer(context.Background(), TraceConfig{ServiceName: "conclave"})
	require.NoError(t, err)

	ctx, span := tracer.Start(context.Background(), "oracle.complete", "provider", "anthropic")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerNilReceiverIsSafe(t *testing.T) {
	var tracer *Tracer
	_, span := tracer.Start(context.Background(), "noop")
	tracer.RecordError(span, assert.AnError)
}
