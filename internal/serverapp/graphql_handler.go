package serverapp

import (
	"errors"
	"log/slog"
	"net/http"

	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/gqlrequest"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/selection"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type graphQLResponse struct {
	Data   any             `json:"data,omitempty"`
	Errors []responseError `json:"errors,omitempty"`
}

type responseError struct {
	Message    string             `json:"message"`
	Extensions responseExtensions `json:"extensions"`
}

type responseExtensions struct {
	Kind gqlerr.Kind `json:"kind"`
}

// graphQLHandler lowers the analyzed request and runs it through the engine. Engine failures
// are reported as a 200 with an errors body; malformed transport is a 4xx.
type graphQLHandler struct {
	engine *engine.Engine
}

func newGraphQLHandler(eng *engine.Engine) http.Handler {
	return &graphQLHandler{engine: eng}
}

func (h *graphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeErrors(w, http.StatusMethodNotAllowed, gqlerr.New(gqlerr.KindParse, "method %s not allowed", r.Method))
		return
	}

	analysis := gqlrequest.ForRequest(r)
	if analysis.DecodeError != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(analysis.DecodeError, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Warn("rejected graphql request", slog.String("error", analysis.DecodeError.Error()))
		writeErrors(w, status, gqlerr.Wrap(gqlerr.KindParse, analysis.DecodeError, "malformed request body"))
		return
	}

	nodes, err := selection.FromAnalysis(analysis)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.engine.Execute(ctx, engine.Request{Selections: nodes})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
		metrics.RecordResultsCount(ctx, int64(resp.Data.Len()), analysis.OperationType)
	}
	writeJSON(w, http.StatusOK, graphQLResponse{Data: resp.Data})
}

func (h *graphQLHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind, _ := gqlerr.Public(err)
	level := slog.LevelWarn
	switch kind {
	case gqlerr.KindDatabase, gqlerr.KindTranslation, gqlerr.KindConsistency, gqlerr.KindTimeout:
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "graphql request failed",
		slog.String("error_kind", string(kind)),
		slog.String("error", err.Error()),
	)

	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
	}
	writeErrors(w, http.StatusOK, err)
}

func writeErrors(w http.ResponseWriter, status int, err error) {
	kind, message := gqlerr.Public(err)
	writeJSON(w, status, graphQLResponse{Errors: []responseError{{
		Message:    message,
		Extensions: responseExtensions{Kind: kind},
	}}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, `{"errors":[{"message":"internal error"}]}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// limitBody caps POST bodies before the request is analyzed. A zero limit disables the cap.
func limitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
