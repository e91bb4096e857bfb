// Package observability provides the ambient logging, metrics, and tracing
// stack for the collaboration kernel: a redacting slog handler with
// correlation-id injection, a Prometheus metric set covering the oracle,
// tool, bus, and HTTP surfaces, and an OpenTelemetry tracer for the
// reasoning-oracle call path.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// Format selects the handler: "json" or "text".
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	// AddSource includes file:line in each record.
	AddSource bool

	// RedactPatterns are extra regexes applied on top of the built-in
	// secret patterns. Invalid patterns are skipped.
	RedactPatterns []string
}

// Built-in patterns covering the secrets that realistically reach log
// attributes here: provider API keys, bearer headers, and key=value pairs.
var defaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|password|secret)\s*[=:]\s*\S+`),
}

const redactedPlaceholder = "[REDACTED]"

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation id; the
// redacting handler attaches it to every record logged under that context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom extracts the correlation id, or "".
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ParseLevel maps a config string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger: a JSON or text slog.Logger whose
// handler redacts secret-shaped attribute values and stamps each record
// with the context's correlation id.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}
	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		inner = slog.NewTextHandler(out, opts)
	} else {
		inner = slog.NewJSONHandler(out, opts)
	}

	patterns := append([]*regexp.Regexp(nil), defaultRedactPatterns...)
	for _, p := range cfg.RedactPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}

	return slog.New(&redactHandler{inner: inner, patterns: patterns})
}

// redactHandler wraps another slog.Handler, rewriting string attribute
// values that match a secret pattern and injecting correlation_id from the
// record's context.
type redactHandler struct {
	inner    slog.Handler
	patterns []*regexp.Regexp
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactString(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	if id := CorrelationIDFrom(ctx); id != "" {
		out.AddAttrs(slog.String("correlation_id", id))
	}
	return h.inner.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &redactHandler{inner: h.inner.WithAttrs(redacted), patterns: h.patterns}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{inner: h.inner.WithGroup(name), patterns: h.patterns}
}

func (h *redactHandler) redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactString(a.Value.String()))
	case slog.KindGroup:
		members := a.Value.Group()
		out := make([]any, 0, len(members))
		for _, m := range members {
			out = append(out, h.redactAttr(m))
		}
		return slog.Group(a.Key, out...)
	default:
		return a
	}
}

func (h *redactHandler) redactString(s string) string {
	for _, re := range h.patterns {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}
