package oracle

import (
	"context"
	"strconv"
	"time"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/internal/observability"
)

// instrumented decorates an Oracle with the observability stack: one span
// and one metric observation per Complete call.
type instrumented struct {
	inner    agentcore.Oracle
	provider string
	model    string
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// Instrument wraps inner so every Complete call is traced and measured.
// A nil metrics or tracer disables that half of the instrumentation.
func Instrument(inner agentcore.Oracle, provider, model string, metrics *observability.Metrics, tracer *observability.Tracer) agentcore.Oracle {
	if metrics == nil && tracer == nil {
		return inner
	}
	return &instrumented{inner: inner, provider: provider, model: model, metrics: metrics, tracer: tracer}
}

func (o *instrumented) Complete(ctx context.Context, req agentcore.Request) (agentcore.Response, error) {
	ctx, span := o.tracer.Start(ctx, "oracle.complete",
		"oracle.provider", o.provider,
		"oracle.model", o.model,
		"oracle.history_len", strconv.Itoa(len(req.History)),
	)
	defer span.End()

	start := time.Now()
	resp, err := o.inner.Complete(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
		o.tracer.RecordError(span, err)
	}
	if o.metrics != nil {
		o.metrics.RecordOracleRequest(o.provider, o.model, status, time.Since(start))
	}
	return resp, err
}
