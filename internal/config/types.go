package config

import (
	"maps"
	"time"

	"neo4j-graphql/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// PoolConfig holds driver connection pool parameters.
type PoolConfig struct {
	MaxSize            int           `mapstructure:"max_size"`
	AcquisitionTimeout time.Duration `mapstructure:"acquisition_timeout"`
	MaxLifetime        time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds Neo4j connection parameters.
type DatabaseConfig struct {
	// URI is the bolt or neo4j scheme URI, e.g. neo4j://localhost:7687.
	URI string `mapstructure:"uri"`
	// URIFile points to a file holding the URI (for secrets management). "@-" reads stdin.
	URIFile        string `mapstructure:"uri_file"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	// Database selects the target database; empty uses the server's home database.
	Database string `mapstructure:"database"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the server on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// ServerConfig holds HTTP server and per-request engine parameters.
type ServerConfig struct {
	Port int `mapstructure:"port"`

	// RequestDeadline bounds planning, execution and assembly of one request.
	RequestDeadline time.Duration `mapstructure:"request_deadline"`
	DefaultLimit    int           `mapstructure:"default_limit"`
	MaxLimit        int           `mapstructure:"max_limit"`
	MaxDepth        int           `mapstructure:"max_depth"`
	MaxFragments    int           `mapstructure:"max_fragments"`
	BatchMaxParents int           `mapstructure:"batch_max_parents"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	// FragmentConcurrency caps fragments of one plan level in flight at once.
	FragmentConcurrency int `mapstructure:"fragment_concurrency"`
	// MaxBodyBytes caps the size of a POST body; 0 disables the cap.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// OTLP applies to every signal; Traces, Logs and Metrics override it per signal.
	OTLP    OTLPConfig  `mapstructure:"otlp"`
	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig configures one OTLP exporter.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// Signal names an OTLP telemetry signal.
type Signal string

const (
	SignalTraces  Signal = "traces"
	SignalLogs    Signal = "logs"
	SignalMetrics Signal = "metrics"
)

// Exporter returns the OTLP settings in effect for sig: the global block with the signal's
// override, if any, laid over it.
func (c *ObservabilityConfig) Exporter(sig Signal) OTLPConfig {
	var override *OTLPConfig
	switch sig {
	case SignalTraces:
		override = c.Traces
	case SignalLogs:
		override = c.Logs
	case SignalMetrics:
		override = c.Metrics
	}
	if override == nil {
		return c.OTLP
	}
	return c.OTLP.overlay(*override)
}

// overlay applies the non-zero fields of o. Insecure always comes from o since an explicit
// false cannot be told apart from unset; retry settings travel together.
func (base OTLPConfig) overlay(o OTLPConfig) OTLPConfig {
	out := base
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Endpoint, o.Endpoint)
	pick(&out.Protocol, o.Protocol)
	pick(&out.TLSCertFile, o.TLSCertFile)
	pick(&out.TLSClientCertFile, o.TLSClientCertFile)
	pick(&out.TLSClientKeyFile, o.TLSClientKeyFile)
	pick(&out.Compression, o.Compression)
	out.Insecure = o.Insecure

	if o.Headers != nil {
		out.Headers = maps.Clone(base.Headers)
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(o.Headers))
		}
		maps.Copy(out.Headers, o.Headers)
	}
	if o.Timeout != 0 {
		out.Timeout = o.Timeout
	}
	if o.RetryMaxAttempts != 0 {
		out.RetryEnabled, out.RetryMaxAttempts = o.RetryEnabled, o.RetryMaxAttempts
	}
	return out
}
