package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const (
	// EnvPrefix prefixes every environment override, e.g. NEOGQL_DATABASE_URI.
	EnvPrefix = "NEOGQL"
	// FileName is the config file name searched for when --config is not given.
	FileName = "neo4j-graphql"

	stdinSource = "@-"
)

// setting is one configuration key. def is registered as the viper default; usage, when
// set, also exposes the key as a command line flag of def's type.
type setting struct {
	key   string
	def   any
	usage string
}

// flagOnly marks a setting that has a flag but no default of its own.
type flagOnly struct{ zero any }

var settings = []setting{
	{"database.uri", "neo4j://localhost:7687", "Neo4j URI (e.g. neo4j://localhost:7687)"},
	{"database.uri_file", "", "File holding the Neo4j URI (@- reads stdin)"},
	{"database.user", "neo4j", "Database user"},
	{"database.password", "", "Database password"},
	{"database.password_file", "", "File holding the database password (@- reads stdin)"},
	{"database.password_prompt", false, "Prompt for the database password on the terminal"},
	{"database.database", "", "Database name (empty uses the home database)"},
	{"database.pool.max_size", 100, "Maximum pooled connections"},
	{"database.pool.acquisition_timeout", 60 * time.Second, "Max wait for a pooled connection"},
	{"database.pool.max_lifetime", time.Hour, "Maximum lifetime of a pooled connection"},
	{"database.connection_timeout", 60 * time.Second, "Max wait for the database on startup (0 tries once)"},
	{"database.connection_retry_interval", 2 * time.Second, "Initial interval between startup connection attempts"},

	{"server.port", 8080, "HTTP server port"},
	{"server.request_deadline", 30 * time.Second, "Deadline for planning and executing one request"},
	{"server.default_limit", 100, "Limit applied to root lists that do not set options.limit"},
	{"server.max_limit", 1000, "Largest limit a client may request (0 = unlimited)"},
	{"server.max_depth", 8, "Maximum selection depth (0 = unlimited)"},
	{"server.max_fragments", 64, "Maximum planned statements per request (0 = unlimited)"},
	{"server.batch_max_parents", 500, "Maximum parent identities bound into one dependent statement"},
	{"server.retry_delay", 50 * time.Millisecond, "Delay before retrying a transiently failed statement"},
	{"server.fragment_concurrency", 4, "Statements of one plan level executed concurrently"},
	{"server.max_body_bytes", int64(1 << 20), "Maximum request body size in bytes (0 = unlimited)"},
	{"server.read_timeout", 15 * time.Second, "HTTP read timeout"},
	{"server.write_timeout", 35 * time.Second, "HTTP write timeout"},
	{"server.idle_timeout", 60 * time.Second, "HTTP idle timeout"},
	{"server.shutdown_timeout", 30 * time.Second, "Graceful shutdown timeout"},
	{"server.health_check_timeout", 2 * time.Second, "Database ping timeout of /health"},

	{"observability.service_name", FileName, "Service name reported to telemetry backends"},
	{"observability.service_version", "", "Service version reported to telemetry backends"},
	{"observability.environment", "development", "Deployment environment (dev, staging, prod)"},
	{"observability.metrics_enabled", true, "Serve Prometheus metrics on /metrics"},
	{"observability.tracing_enabled", false, "Export traces over OTLP"},
	{"observability.trace_sample_ratio", 1.0, "Trace sampling ratio from 0.0 to 1.0"},
	{"observability.logging.level", "info", "Log level (debug, info, warn, error)"},
	{"observability.logging.format", "json", "Log format (json, text)"},
	{"observability.logging.exports_enabled", false, "Export logs over OTLP"},

	{"observability.otlp.endpoint", "localhost:4317", "OTLP endpoint for all signals"},
	{"observability.otlp.protocol", "grpc", "OTLP protocol for all signals (grpc, http/protobuf)"},
	{"observability.otlp.insecure", false, "Disable TLS for OTLP"},
	{"observability.otlp.tls_cert_file", "", "CA certificate used to verify the collector"},
	{"observability.otlp.tls_client_cert_file", "", "Client certificate for mTLS"},
	{"observability.otlp.tls_client_key_file", "", "Client key for mTLS"},
	{"observability.otlp.timeout", 10 * time.Second, "OTLP export timeout"},
	{"observability.otlp.compression", "gzip", "OTLP compression (none, gzip)"},
	{"observability.otlp.retry_enabled", true, "Retry OTLP exports on transient errors"},
	{"observability.otlp.retry_max_attempts", 3, "Maximum OTLP export attempts"},

	{"observability.traces.endpoint", flagOnly{""}, "OTLP endpoint for traces"},
	{"observability.traces.protocol", flagOnly{""}, "OTLP protocol for traces"},
	{"observability.traces.insecure", flagOnly{false}, "Disable TLS for trace export"},
	{"observability.traces.timeout", flagOnly{time.Duration(0)}, "Trace export timeout"},
	{"observability.logs.endpoint", flagOnly{""}, "OTLP endpoint for logs"},
	{"observability.logs.protocol", flagOnly{""}, "OTLP protocol for logs"},
	{"observability.logs.insecure", flagOnly{false}, "Disable TLS for log export"},
	{"observability.logs.timeout", flagOnly{time.Duration(0)}, "Log export timeout"},
	{"observability.metrics.endpoint", flagOnly{""}, "OTLP endpoint for metrics"},
	{"observability.metrics.insecure", flagOnly{false}, "Disable TLS for metric export"},
	{"observability.metrics.timeout", flagOnly{time.Duration(0)}, "Metric export timeout"},

	{"naming.plural_overrides", map[string]string{}, ""},
}

var defineFlagsOnce sync.Once

// Load reads the configuration. Later sources override earlier ones: defaults, the config
// file, NEOGQL_* environment variables, explicitly set flags, then secrets read from files
// or the terminal.
func Load() (*Config, error) {
	defineFlags(pflag.CommandLine)
	if !pflag.Parsed() {
		pflag.Parse()
	}
	cfgPath, _ := pflag.CommandLine.GetString("config")
	return load(cfgPath, promptPassword)
}

func load(cfgPath string, prompt func() (string, error)) (*Config, error) {
	v := viper.New()
	for _, s := range settings {
		if _, ok := s.def.(flagOnly); !ok {
			v.SetDefault(s.key, s.def)
		}
	}

	if err := readConfigFile(v, cfgPath); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name != "config" && f.Name != "version" {
			v.Set(f.Name, f.Value.String())
		}
	})

	if err := resolveSecrets(v, prompt); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalExact(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, cfgPath string) error {
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		return nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, dir := range []string{"/etc/" + FileName + "/", "$HOME/." + FileName, "."} {
		v.AddConfigPath(dir)
	}
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// resolveSecrets replaces the URI and password with values read from their *_file settings
// or the terminal prompt. An inline password wins over both.
func resolveSecrets(v *viper.Viper, prompt func() (string, error)) error {
	if err := checkStdinSources(v); err != nil {
		return err
	}

	if path := v.GetString("database.uri_file"); path != "" {
		uri, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read database URI file: %w", err)
		}
		v.Set("database.uri", uri)
	}

	if v.GetString("database.password") != "" {
		return nil
	}
	switch {
	case v.GetString("database.password_file") != "":
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	case v.GetBool("database.password_prompt"):
		pwd, err := prompt()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}
	return nil
}

// checkStdinSources rejects configurations where more than one secret is read from stdin.
func checkStdinSources(v *viper.Viper) error {
	var fromStdin []string
	for _, key := range []string{"database.uri_file", "database.password_file"} {
		if strings.TrimSpace(v.GetString(key)) == stdinSource {
			fromStdin = append(fromStdin, key)
		}
	}
	if len(fromStdin) > 1 {
		return fmt.Errorf("only one setting may read from stdin, but %s all use %s",
			strings.Join(fromStdin, ", "), stdinSource)
	}
	return nil
}

// defineFlags registers one flag per setting that has a usage string. Flags default to the
// zero value; only flags the user sets are copied into viper.
func defineFlags(fs *pflag.FlagSet) {
	defineFlagsOnce.Do(func() {
		for _, s := range settings {
			if s.usage == "" {
				continue
			}
			def := s.def
			if fo, ok := def.(flagOnly); ok {
				def = fo.zero
			}
			switch def.(type) {
			case string:
				fs.String(s.key, "", s.usage)
			case bool:
				fs.Bool(s.key, false, s.usage)
			case int:
				fs.Int(s.key, 0, s.usage)
			case int64:
				fs.Int64(s.key, 0, s.usage)
			case float64:
				fs.Float64(s.key, 0, s.usage)
			case time.Duration:
				fs.Duration(s.key, 0, s.usage)
			}
		}
		fs.StringP("config", "c", "", "Config file path")
	})
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// readSecretFile reads a single-value secret, trimming surrounding whitespace.
func readSecretFile(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == stdinSource {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
