package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMeterProvider_HandlerExposesEngineMetrics(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "test-service", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.provider)
	t.Cleanup(func() { assert.NoError(t, mp.Shutdown(context.Background(), quiet)) })

	metrics, err := InitMetrics(quiet)
	require.NoError(t, err)
	ctx := context.Background()
	metrics.RecordRequest(ctx, 12*time.Millisecond, "DatabaseError", "query")
	metrics.RecordFragment(ctx, "traversal", 3*time.Millisecond, 4, false)
	metrics.RecordBatchSkipped(ctx, "Tournament.champion", "template_unbatchable")

	rec := httptest.NewRecorder()
	mp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		"graphql_requests_total",
		`error_kind="DatabaseError"`,
		"graph_fragment_rows",
		`reason="template_unbatchable"`,
		"go_goroutines",
	} {
		assert.Contains(t, body, want)
	}
}

func TestNewGraphQLMetrics_RecordsOnGivenMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewGraphQLMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.IncrementActiveRequests(ctx)
	metrics.RecordFragmentRetry(ctx, "root")
	metrics.RecordBatchQueriesSaved(ctx, 0, "traversal")
	metrics.RecordBatchQueriesSaved(ctx, 3, "traversal")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, map[string]int64{
		"graphql.requests.active":     1,
		"graph.fragment.retries":      1,
		"graphql.batch.queries_saved": 3,
	}, sums)
}

func TestGraphQLMetricsContext(t *testing.T) {
	assert.Nil(t, GraphQLMetricsFromContext(context.Background()))
	m := &GraphQLMetrics{}
	assert.Same(t, m, GraphQLMetricsFromContext(ContextWithGraphQLMetrics(context.Background(), m)))
}

func TestNewExporterSettings(t *testing.T) {
	s, err := newExporterSettings(OTLPExporterConfig{
		Endpoint:         "https://collector.example.com:4318",
		Protocol:         "http",
		Insecure:         true,
		Compression:      "gzip",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, s.protocol)
	assert.True(t, s.endpointURL)
	assert.True(t, s.gzip)
	assert.True(t, s.retry)
	assert.Nil(t, s.tls)
	assert.NotEmpty(t, s.traceHTTPOptions())
	assert.NotEmpty(t, s.logHTTPOptions())

	s, err = newExporterSettings(OTLPExporterConfig{Endpoint: "localhost:4317"})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, s.protocol)
	assert.NotNil(t, s.tls)
	assert.False(t, s.retry)
	assert.Len(t, s.traceGRPCOptions(), 2)
	assert.Len(t, s.logGRPCOptions(), 2)

	_, err = newExporterSettings(OTLPExporterConfig{Protocol: "thrift"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestInitTracerProvider_RejectsUnknownProtocol(t *testing.T) {
	_, err := InitTracerProvider(Config{ServiceName: "svc", OTLPConfig: OTLPExporterConfig{Protocol: "zipkin"}})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
	_, err = InitLoggerProvider(Config{ServiceName: "svc", OTLPConfig: OTLPExporterConfig{Protocol: "zipkin"}})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name string
		cfg  OTLPExporterConfig
		want string
	}{
		{"missing ca", OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "missing.pem")}, "failed to read OTLP TLS CA file"},
		{"unparsable ca", OTLPExporterConfig{TLSCertFile: garbage}, "failed to parse OTLP TLS CA file"},
		{"cert without key", OTLPExporterConfig{TLSClientCertFile: garbage}, "OTLP TLS client cert and key must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTLSConfig(tt.cfg)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSamplerFor(t *testing.T) {
	parent := func(sampled bool) context.Context {
		cfg := trace.SpanContextConfig{TraceID: trace.TraceID{9}, SpanID: trace.SpanID{1}, Remote: true}
		if sampled {
			cfg.TraceFlags = trace.FlagsSampled
		}
		return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(cfg))
	}

	tests := []struct {
		name  string
		ratio float64
		ctx   context.Context
		want  sdktrace.SamplingDecision
	}{
		{"zero drops", 0, context.Background(), sdktrace.Drop},
		{"one samples", 1, context.Background(), sdktrace.RecordAndSample},
		{"mid follows sampled parent", 0.5, parent(true), sdktrace.RecordAndSample},
		{"mid follows unsampled parent", 0.5, parent(false), sdktrace.Drop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := samplerFor(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.ctx,
				TraceID:       trace.TraceID{2},
				Name:          "graphql.execute",
			}).Decision
			assert.Equal(t, tt.want, got)
		})
	}
}
