package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"neo4j-graphql/internal/catalog"
	"neo4j-graphql/internal/engine"
)

// Init builds the schema, connects to the database and prepares the HTTP server. It is
// idempotent. On failure everything acquired so far is released again.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.rt != nil
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup cleanupStack
	if a.loggerProvider != nil {
		lp := a.loggerProvider
		cleanup.push("logger provider", func(ctx context.Context) error {
			return lp.Shutdown(ctx, a.logger.Logger)
		})
	}

	rt := &runtime{}
	for _, step := range []func(context.Context, *runtime, *cleanupStack) error{
		a.initTelemetry,
		a.initGraph,
		a.initHTTP,
	} {
		if err := step(ctx, rt, &cleanup); err != nil {
			_ = cleanup.run(context.Background(), a.logger)
			return err
		}
	}

	a.stateMu.Lock()
	a.rt = rt
	a.cleanup = cleanup
	a.stateMu.Unlock()
	return nil
}

func (a *App) initTelemetry(_ context.Context, rt *runtime, cleanup *cleanupStack) error {
	mp, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if mp != nil {
		cleanup.push("meter provider", func(ctx context.Context) error { return mp.Shutdown(ctx, a.logger.Logger) })
	}
	rt.meterProvider, rt.metrics = mp, metrics

	tp, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tp != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error { return tp.Shutdown(ctx, a.logger.Logger) })
	}
	return nil
}

func (a *App) initGraph(ctx context.Context, rt *runtime, cleanup *cleanupStack) error {
	model, err := catalog.Build(a.cfg.Naming, a.logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}
	a.logger.Info("schema built",
		slog.Int("entity_types", len(model.Types())),
		slog.Int("root_fields", len(model.QueryFields())),
	)

	db := a.cfg.Database
	a.logger.Info("connecting to Neo4j",
		slog.String("uri", db.URI),
		slog.String("database", db.Database),
		slog.Int("pool_max_size", db.Pool.MaxSize),
	)
	pool, err := a.openPool(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open database pool: %w", err)
	}
	cleanup.push("database", pool.Close)

	if err := waitForDatabase(ctx, a.cfg, a.logger, pool); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	a.logger.Info("connected to database")

	rt.pool = pool
	rt.engine = engine.New(model, pool, engineConfig(a.cfg), engine.WithStateHook(stateLogger(a.logger)))
	return nil
}

func (a *App) initHTTP(_ context.Context, rt *runtime, cleanup *cleanupStack) error {
	graphql := buildGraphQLHandler(a.cfg, a.logger, rt.engine, rt.metrics)
	mux := buildRouter(a.cfg, a.logger, rt.pool, graphql, rt.meterProvider)
	rt.handler = wrapHTTPHandler(a.cfg, a.logger, mux)

	srv := buildServer(a.cfg, rt.handler, fmt.Sprintf(":%d", a.cfg.Server.Port))
	cleanup.push("HTTP server", srv.Shutdown)
	rt.srv = srv
	return nil
}
