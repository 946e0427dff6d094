package serverapp

import (
	"context"
	"log/slog"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
)

// telemetryConfig describes this service to one OTLP signal pipeline. The zero Signal
// yields a config without exporter settings.
func telemetryConfig(cfg *config.Config, sig config.Signal) observability.Config {
	obs := cfg.Observability
	out := observability.Config{
		ServiceName:      obs.ServiceName,
		ServiceVersion:   obs.ServiceVersion,
		Environment:      obs.Environment,
		TraceSampleRatio: obs.TraceSampleRatio,
	}
	if sig == "" {
		return out
	}
	c := obs.Exporter(sig)
	out.OTLPConfig = observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
	return out
}

// InitLogger builds the process logger and installs it as the slog default. When log export
// is enabled it also returns the OTLP logger provider the logger writes to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	lc := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}

	var provider *observability.LoggerProvider
	if cfg.Observability.Logging.ExportsEnabled {
		var err error
		if provider, err = observability.InitLoggerProvider(telemetryConfig(cfg, config.SignalLogs)); err != nil {
			return nil, nil, err
		}
		lc.LoggerProvider = provider.Provider()
	}

	logger := logging.NewLogger(lc)
	slog.SetDefault(logger.Logger)
	if provider != nil {
		exp := cfg.Observability.Exporter(config.SignalLogs)
		logger.Info("exporting logs over OTLP",
			slog.String("otlp_endpoint", exp.Endpoint),
			slog.String("otlp_protocol", exp.Protocol),
			slog.Bool("insecure", exp.Insecure),
		)
	}
	return logger, provider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.GraphQLMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}
	mp, err := observability.InitMeterProvider(telemetryConfig(cfg, ""))
	if err != nil {
		return nil, nil, err
	}
	metrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		_ = mp.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}
	return mp, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}
	tc := telemetryConfig(cfg, config.SignalTraces)
	logger.Info("exporting traces over OTLP",
		slog.String("otlp_endpoint", tc.OTLPConfig.Endpoint),
		slog.String("otlp_protocol", tc.OTLPConfig.Protocol),
		slog.Float64("sample_ratio", tc.TraceSampleRatio),
	)
	return observability.InitTracerProvider(tc)
}
