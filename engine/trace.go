package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope every engine span is reported
// under.
const tracerName = "github.com/synchlab/pcomb/engine"

// startApplySpan opens a span covering one ApplyOp call — announce
// through return, whether the caller ends up serving as combiner or
// piggybacking off someone else's publication. Kept separate from the
// combine-round span so a trace backend can distinguish "I waited" from
// "I combined".
func startApplySpan(ctx context.Context, engineID, kind string, pid int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, kind+".ApplyOp",
		trace.WithAttributes(
			attribute.String("engine_id", engineID),
			attribute.Int("pid", pid),
		))
}

// startCombineSpan opens a child span for the combiner's collect-compute-
// persist-publish cycle.
func startCombineSpan(ctx context.Context, engineID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, kind+".Combine",
		trace.WithAttributes(attribute.String("engine_id", engineID)))
}
