// Command server serves the catalog schema over GraphQL, translating each query into Cypher
// run against Neo4j.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("neo4j-graphql %s (%s)", Version, Commit)
}

// reportValidation logs every warning and error and fails when any error was found.
func reportValidation(logger *slog.Logger, result *config.ValidationResult) error {
	for _, warn := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, err := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", err.Field),
			slog.String("message", err.Message),
			slog.String("hint", err.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed: %d error(s)", len(result.Errors))
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if v, _ := pflag.CommandLine.GetBool("version"); v {
		fmt.Println(versionString())
		return nil
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	if err := reportValidation(slog.Default(), cfg.Validate()); err != nil {
		return err
	}

	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)
	return serve(app, logger)
}

// serve runs app until SIGINT or SIGTERM arrives or the server fails, then shuts it down.
// A signal during Init aborts startup.
func serve(app *serverapp.App, logger *logging.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	initCtx, cancelInit := context.WithCancel(context.Background())
	go func() {
		select {
		case sig := <-stop:
			cancelInit()
			select {
			case stop <- sig:
			default:
			}
		case <-initCtx.Done():
		}
	}()
	err := app.Init(initCtx)
	cancelInit()
	if err != nil {
		return err
	}

	serverErrors, err := app.Start()
	if err == nil {
		var reason string
		reason, err = app.WaitForStop(stop, serverErrors)
		logger.Info("shutting down", slog.String("reason", reason))
	}
	return errors.Join(err, app.Shutdown(context.Background()))
}
