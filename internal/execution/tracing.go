package execution

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"neo4j-graphql/internal/planner"
)

const tracerName = "neo4j-graphql/execution"

// startFragmentSpan opens a child span for one statement. parents is the number of parent
// identities bound into it, zero for root statements.
func startFragmentSpan(ctx context.Context, f *planner.Fragment, parents int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "graph.fragment", trace.WithAttributes(
		attribute.Int("graph.fragment.id", f.ID),
		attribute.String("graph.fragment.kind", f.Kind.String()),
		attribute.String("graph.fragment.field", f.Owner+"."+f.Field.Name),
		attribute.Int("graph.fragment.parent_count", parents),
	))
}

func finishFragmentSpan(span trace.Span, rows int, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("graph.fragment.outcome", "error"))
		return
	}
	span.SetAttributes(
		attribute.Int("graph.fragment.rows", rows),
		attribute.String("graph.fragment.outcome", "success"),
	)
}
