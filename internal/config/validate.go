package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"neo4j-graphql/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message string, hint ...string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: strings.Join(hint, "; ")})
}

func (r *ValidationResult) warn(field, message string, hint ...string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: strings.Join(hint, "; ")})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func nonNegative[T int | int64 | time.Duration](result *ValidationResult, field string, v T) {
	if v < 0 {
		result.fail(field, field[strings.LastIndex(field, ".")+1:]+" cannot be negative")
	}
}

var neo4jSchemes = map[string]bool{
	"neo4j": true, "neo4j+s": true, "neo4j+ssc": true,
	"bolt": true, "bolt+s": true, "bolt+ssc": true,
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	uri := strings.TrimSpace(d.URI)
	if uri == "" {
		result.fail("database.uri", "uri is required", "e.g. neo4j://localhost:7687")
	} else if parsed, err := url.Parse(uri); err != nil || !neo4jSchemes[parsed.Scheme] || parsed.Host == "" {
		result.fail("database.uri", fmt.Sprintf("invalid Neo4j URI %q", d.URI), "use a neo4j://, neo4j+s://, bolt:// or bolt+s:// URI with a host")
	} else if parsed.User != nil {
		result.warn("database.uri", "credentials embedded in the URI are ignored", "set database.user and database.password instead")
	}

	if strings.TrimSpace(d.User) == "" {
		result.fail("database.user", "user is required")
	}

	if d.Password != "" && d.PasswordFile != "" {
		result.warn("database.password_file", "password_file is ignored because password is set")
	}

	if d.Password == "" && d.PasswordFile == "" && !d.PasswordPrompt {
		result.warn("database.password", "no password configured", "set database.password_file or database.password_prompt for authenticated servers")
	}

	nonNegative(result, "database.pool.max_size", d.Pool.MaxSize)
	nonNegative(result, "database.pool.acquisition_timeout", d.Pool.AcquisitionTimeout)
	nonNegative(result, "database.pool.max_lifetime", d.Pool.MaxLifetime)

	nonNegative(result, "database.connection_timeout", d.ConnectionTimeout)
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval <= 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval must be positive when connection_timeout is set")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval", "connection_retry_interval exceeds connection_timeout; only one attempt will be made")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port))
	}

	if s.RequestDeadline <= 0 {
		result.fail("server.request_deadline", "request_deadline must be positive")
	}

	for field, v := range map[string]int{
		"server.default_limit":        s.DefaultLimit,
		"server.max_limit":            s.MaxLimit,
		"server.max_depth":            s.MaxDepth,
		"server.max_fragments":        s.MaxFragments,
		"server.batch_max_parents":    s.BatchMaxParents,
		"server.fragment_concurrency": s.FragmentConcurrency,
	} {
		nonNegative(result, field, v)
	}
	nonNegative(result, "server.max_body_bytes", s.MaxBodyBytes)
	nonNegative(result, "server.retry_delay", s.RetryDelay)

	if s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit {
		result.fail("server.default_limit", fmt.Sprintf("default_limit %d exceeds max_limit %d", s.DefaultLimit, s.MaxLimit))
	}
	if s.DefaultLimit == 0 {
		result.warn("server.default_limit", "root lists without options.limit are unbounded", "set server.default_limit to cap unbounded root lists")
	}

	if s.WriteTimeout > 0 && s.RequestDeadline > 0 && s.WriteTimeout < s.RequestDeadline {
		result.warn("server.write_timeout", "write_timeout is shorter than request_deadline; slow requests may be cut off before their timeout error is written")
	}

	for field, v := range map[string]time.Duration{
		"server.read_timeout":         s.ReadTimeout,
		"server.write_timeout":        s.WriteTimeout,
		"server.idle_timeout":         s.IdleTimeout,
		"server.shutdown_timeout":     s.ShutdownTimeout,
		"server.health_check_timeout": s.HealthCheckTimeout,
	} {
		nonNegative(result, field, v)
	}
}

var typeNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	seen := make(map[string]string, len(cfg.PluralOverrides))
	for typeName, plural := range cfg.PluralOverrides {
		if !typeNamePattern.MatchString(typeName) {
			result.fail("naming.plural_overrides", fmt.Sprintf("%q is not a valid type name", typeName))
			continue
		}
		if strings.TrimSpace(plural) == "" {
			result.fail("naming.plural_overrides", fmt.Sprintf("plural override for type %q cannot be empty", typeName))
			continue
		}
		folded := strings.ToLower(typeName)
		if other, dup := seen[folded]; dup {
			result.fail("naming.plural_overrides", fmt.Sprintf("type names %q and %q differ only in case", other, typeName))
		}
		seen[folded] = typeName
	}
}

// oneOf fails field unless v is one of allowed. The empty string is listed explicitly when
// it is accepted.
func oneOf(result *ValidationResult, field, what, v string, allowed ...string) {
	if slices.Contains(allowed, v) {
		return
	}
	var shown []string
	for _, a := range allowed {
		if a != "" {
			shown = append(shown, a)
		}
	}
	result.fail(field, fmt.Sprintf("invalid %s %q", what, v), "valid values are: "+strings.Join(shown, ", "))
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	oneOf(result, "observability.logging.level", "log level", o.Logging.Level, "debug", "info", "warn", "error")
	oneOf(result, "observability.logging.format", "log format", o.Logging.Format, "json", "text")

	o.OTLP.validate("observability.otlp", result)
	for sig, override := range map[Signal]*OTLPConfig{SignalTraces: o.Traces, SignalLogs: o.Logs, SignalMetrics: o.Metrics} {
		if override != nil {
			override.validate("observability."+string(sig), result)
		}
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	oneOf(result, prefix+".protocol", "OTLP protocol", o.Protocol, "", "grpc", "http/protobuf")
	oneOf(result, prefix+".compression", "OTLP compression", o.Compression, "", "none", "gzip")
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	nonNegative(result, prefix+".retry_max_attempts", o.RetryMaxAttempts)
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
