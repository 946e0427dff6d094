package observability

import (
	"context"
	"log/slog"

	"neo4j-graphql/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// requestField is one fact about an analyzed request. Every field becomes a span attribute;
// those with a logKey are also added to the request logger.
type requestField struct {
	spanKey attribute.Key
	logKey  string
	str     string
	num     int
	isNum   bool
}

func describeRequest(a *gqlrequest.Analysis) []requestField {
	if a == nil {
		return nil
	}
	var fields []requestField
	text := func(spanKey attribute.Key, logKey, v string) {
		if v != "" {
			fields = append(fields, requestField{spanKey: spanKey, logKey: logKey, str: v})
		}
	}
	count := func(spanKey attribute.Key, logKey string, v int) {
		fields = append(fields, requestField{spanKey: spanKey, logKey: logKey, num: v, isNum: true})
	}

	text("graphql.operation.requested_name", "", a.Envelope.OperationName)
	text("graphql.operation.name", "operation_name", a.OperationName)
	text("graphql.operation.type", "operation_type", a.OperationType)
	text("graphql.operation.hash", "operation_hash", a.OperationHash)
	if a.Envelope.DocumentSizeBytes > 0 {
		count("graphql.document.size_bytes", "", a.Envelope.DocumentSizeBytes)
	}
	if a.Operation != nil {
		count("graphql.query.field_count", "", a.FieldCount)
		count("graphql.query.depth", "selection_depth", a.SelectionDepth)
		count("graphql.query.variable_count", "", a.VariableCount)
	}
	return fields
}

// GraphQLSpanAttributes describes an analyzed request as span attributes.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis) []attribute.KeyValue {
	fields := describeRequest(analysis)
	if fields == nil {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		if f.isNum {
			attrs = append(attrs, f.spanKey.Int(f.num))
		} else {
			attrs = append(attrs, f.spanKey.String(f.str))
		}
	}
	return attrs
}

// GraphQLLogFields describes an analyzed request as slog attributes, plus the trace ID when
// ctx carries a valid span.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis) []any {
	var out []any
	for _, f := range describeRequest(analysis) {
		switch {
		case f.logKey == "":
		case f.isNum:
			out = append(out, slog.Int(f.logKey, f.num))
		default:
			out = append(out, slog.String(f.logKey, f.str))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out, slog.String("trace_id", sc.TraceID().String()))
	}
	return out
}
