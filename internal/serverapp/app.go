// Package serverapp wires configuration, the graph store pool, the engine and the HTTP
// server into one lifecycle: New, Init, Start, WaitForStop, Shutdown.
package serverapp

import (
	"fmt"
	"net/http"
	"sync"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
)

// App owns runtime resources for the neo4j-graphql server lifecycle.
type App struct {
	cfg            *config.Config
	logger         *logging.Logger
	loggerProvider *observability.LoggerProvider

	// openPool creates the graph store pool during Init.
	openPool func(*config.Config) (dbexec.Pool, error)

	stateMu      sync.Mutex
	rt           *runtime
	cleanup      cleanupStack
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// runtime is everything Init builds. An App is initialized once it has one.
type runtime struct {
	meterProvider *observability.MeterProvider
	metrics       *observability.GraphQLMetrics

	pool   dbexec.Pool
	engine *engine.Engine

	handler http.Handler
	srv     *http.Server
}

// Option customizes an App.
type Option func(*App)

// WithPool serves requests from pool instead of dialing the configured database.
// The app takes ownership and closes it on shutdown.
func WithPool(pool dbexec.Pool) Option {
	return func(a *App) {
		a.openPool = func(*config.Config) (dbexec.Pool, error) { return pool, nil }
	}
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	a := &App{cfg: cfg, logger: logger, openPool: openPool}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler. It is nil until Init succeeds.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.rt == nil {
		return nil
	}
	return a.rt.handler
}
