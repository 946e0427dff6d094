// Package logging provides structured logging helpers for the server.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/log"
)

// DefaultScope names the OTLP instrumentation scope when Config.ServiceName is empty.
const DefaultScope = "neo4j-graphql"

// Logger wraps slog.Logger with convenience methods
type Logger struct {
	*slog.Logger
}

// Config selects the level and format of the process logger and, optionally, an OTLP
// logger provider every record is also exported to.
type Config struct {
	Level          string
	Format         string
	ServiceName    string
	Output         io.Writer
	LoggerProvider *log.LoggerProvider
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a config level name onto a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level
	}
	return slog.LevelInfo
}

// NewLogger writes text or JSON records to cfg.Output, stdout by default. Source locations
// are only recorded when the level is error.
func NewLogger(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level >= slog.LevelError}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	var local slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.Format == "json" {
		local = slog.NewJSONHandler(out, opts)
	}
	if cfg.LoggerProvider == nil {
		return &Logger{Logger: slog.New(local)}
	}

	scope := cfg.ServiceName
	if scope == "" {
		scope = DefaultScope
	}
	exported := otelslog.NewHandler(scope, otelslog.WithLoggerProvider(cfg.LoggerProvider))
	return &Logger{Logger: slog.New(newMultiHandler(local, exported))}
}

// WithRequestID returns a logger that tags every record with request_id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.WithFields(slog.String("request_id", requestID))
}

// WithFields returns a logger carrying the given slog attributes or key/value pairs.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{Logger: l.With(fields...)}
}
