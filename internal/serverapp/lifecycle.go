package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"neo4j-graphql/internal/logging"
)

// Start launches the HTTP server goroutine. It requires Init to have completed and returns
// the same error channel on repeated calls.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case a.rt == nil:
		return nil, fmt.Errorf("app is not initialized")
	case a.serverErrors != nil:
		return a.serverErrors, nil
	}
	a.serverErrors = startServer(a.cfg, a.logger, a.rt.srv)
	return a.serverErrors, nil
}

// Stop reasons reported by WaitForStop.
const (
	StopSignal      = "signal"
	StopServerError = "server_error"
)

// WaitForStop blocks until an OS signal or a server error arrives and reports which one won.
// A nil serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel never becomes ready, so a missing source never wins.
	select {
	case err := <-serverErrors:
		if err == nil {
			return StopServerError, fmt.Errorf("server stopped unexpectedly")
		}
		return StopServerError, fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return StopSignal, nil
	}
}

// Shutdown releases all acquired resources. Only the first call does any work; later calls
// return its result. When ctx has no deadline the configured shutdown timeout applies.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = cleanupStack{}
		a.serverErrors = nil
		a.stateMu.Unlock()

		if _, ok := ctx.Deadline(); !ok && a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
			defer cancel()
		}
		a.shutdownErr = cleanup.run(ctx, a.logger)
	})
	return a.shutdownErr
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack []cleanupItem

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	*s = append(*s, cleanupItem{name: name, fn: fn})
}

// run calls every cleanup even when earlier ones fail and returns the joined failures.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		item := s[i]
		logger.Debug("releasing " + item.name)
		if err := item.fn(ctx); err != nil {
			logger.Warn("cleanup error", slog.String("component", item.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
	}
	return errors.Join(errs...)
}
