package serverapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/middleware"
	"neo4j-graphql/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	graphqlPath = "/graphql"
	healthPath  = "/health"
	metricsPath = "/metrics"
)

// buildGraphQLHandler assembles the /graphql chain:
//
//	request -> logging -> body limit -> analysis -> metrics -> tracing -> graphql
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, eng *engine.Engine, metrics *observability.GraphQLMetrics) http.Handler {
	chain := []func(http.Handler) http.Handler{
		middleware.LoggingMiddleware(logger),
		limitBody(cfg.Server.MaxBodyBytes),
		middleware.GraphQLRequestAnalysisMiddleware(),
		middleware.GraphQLMetricsMiddleware(metrics),
		middleware.GraphQLTracingMiddleware(),
	}
	var h http.Handler = newGraphQLHandler(eng)
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func buildRouter(cfg *config.Config, logger *logging.Logger, pool dbexec.Pool, graphql http.Handler, mp *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphql)
	mux.HandleFunc(healthPath, healthHandler(pool, cfg.Server.HealthCheckTimeout))
	if mp != nil {
		mux.Handle(metricsPath, mp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, graphqlPath, http.StatusFound)
	})
	return mux
}

// wrapHTTPHandler adds otelhttp server instrumentation when metrics or tracing is on.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		return handler
	}
	logger.Debug("HTTP instrumentation enabled")
	return otelhttp.NewHandler(handler, "http.server",
		otelhttp.WithSpanNameFormatter(spanName),
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)
}

// spanName is "METHOD route". Paths outside the served routes collapse into "/*" to keep
// span names low-cardinality.
func spanName(_ string, r *http.Request) string {
	method := r.Method
	if method == "" {
		method = "HTTP"
	}
	switch r.URL.Path {
	case "/", graphqlPath, healthPath, metricsPath:
		return method + " " + r.URL.Path
	default:
		return method + " /*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// startServer serves srv in the background. The returned channel receives the error that
// ended ListenAndServe, unless the server was shut down.
func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	failed := make(chan error, 1)
	attrs := []any{
		slog.String("address", srv.Addr),
		slog.String("graphql_endpoint", graphqlPath),
		slog.Duration("request_deadline", cfg.Server.RequestDeadline),
		slog.Int("max_depth", cfg.Server.MaxDepth),
		slog.Int("max_fragments", cfg.Server.MaxFragments),
	}
	if cfg.Observability.MetricsEnabled {
		attrs = append(attrs, slog.String("metrics_endpoint", metricsPath))
	}
	go func() {
		logger.Info("server starting", attrs...)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()
	return failed
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler reports whether the graph store is reachable. Failure details are logged,
// never returned.
func healthHandler(pool dbexec.Pool, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if pool == nil {
			writeJSON(w, http.StatusServiceUnavailable, healthStatus{"unhealthy", "unconfigured"})
			return
		}
		if err := pool.VerifyConnectivity(ctx); err != nil {
			logging.FromContext(ctx).Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusServiceUnavailable, healthStatus{"unhealthy", "failed"})
			return
		}
		writeJSON(w, http.StatusOK, healthStatus{"healthy", "ok"})
	}
}
