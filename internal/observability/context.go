package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// DetachTraceContext returns a fresh background context carrying the
// span context of ctx. Session commits run under it: once a reply is
// complete it belongs in the history even when the request that asked
// for it has been cancelled, and the trace link survives the handoff.
func DetachTraceContext(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return context.Background()
	}
	return trace.ContextWithRemoteSpanContext(context.Background(), sc)
}

// DetachTraceContextFrom grafts the span context of src onto baseCtx.
// Queued generations answer to the process lifecycle through baseCtx
// while their spans stay parented to the request that submitted them.
func DetachTraceContextFrom(src, baseCtx context.Context) context.Context {
	sc := trace.SpanContextFromContext(src)
	if !sc.IsValid() {
		return baseCtx
	}
	return trace.ContextWithRemoteSpanContext(baseCtx, sc)
}
