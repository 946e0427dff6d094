package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"neo4j-graphql/internal/gqlrequest"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the request span.
const TracerName = "neo4j-graphql/graphql"

// GraphQLRequestAnalysisMiddleware decodes and analyzes the request body once. The result is
// stored in the context and its identifying fields are added to the request logger.
func GraphQLRequestAnalysisMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalyzeRequest(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)
			if fields := observability.GraphQLLogFields(ctx, analysis); len(fields) > 0 {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GraphQLTracingMiddleware opens the graphql.execute span that fragment spans nest under.
// Requests without a query document pass through untraced.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer(TracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil || strings.TrimSpace(analysis.Envelope.Query) == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := tracer.Start(r.Context(), "graphql.execute",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(observability.GraphQLSpanAttributes(analysis)...),
			)
			defer span.End()

			if err := analysis.Err(); err != nil {
				span.AddEvent("graphql.invalid_request", trace.WithAttributes(attribute.String("error", err.Error())))
			}
			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
