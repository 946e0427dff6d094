package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"neo4j-graphql/internal/gqlrequest"
	"neo4j-graphql/internal/observability"

	jsoniter "github.com/json-iterator/go"
)

// GraphQLMetricsMiddleware records request counts, latency, depth and error kinds. The
// metrics are also placed in the context so the engine can record plan and result sizes.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)

			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			operationType := "unknown"
			if analysis := gqlrequest.ForRequest(r); analysis.Err() == nil && strings.TrimSpace(analysis.OperationType) != "" {
				operationType = analysis.OperationType
				metrics.RecordQueryDepth(ctx, int64(analysis.SelectionDepth), operationType)
			}

			rec := record(w, true)
			next.ServeHTTP(rec, r)

			errorKind := responseErrorKind(rec.capture.Bytes())
			if errorKind == "" && rec.Status() >= http.StatusBadRequest {
				errorKind = http.StatusText(rec.Status())
			}
			metrics.RecordRequest(ctx, time.Since(start), errorKind, operationType)
		})
	}
}

// responseErrorKind returns the kind of the first GraphQL error in body, "unknown" when the
// error is unclassified, or empty when there are no errors.
func responseErrorKind(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload struct {
		Errors []struct {
			Extensions struct {
				Kind string `json:"kind"`
			} `json:"extensions"`
		} `json:"errors"`
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(trimmed, &payload); err != nil {
		return ""
	}
	if len(payload.Errors) == 0 {
		return ""
	}
	if kind := payload.Errors[0].Extensions.Kind; kind != "" {
		return kind
	}
	return "unknown"
}
