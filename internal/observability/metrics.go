package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics holds custom metrics for GraphQL requests and the graph queries they fan out to.
type GraphQLMetrics struct {
	requestDuration   metric.Float64Histogram
	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	activeRequests    metric.Int64UpDownCounter
	queryDepth        metric.Int64Histogram
	planFragments     metric.Int64Histogram
	resultsCount      metric.Int64Histogram
	fragmentDuration  metric.Float64Histogram
	fragmentRows      metric.Int64Histogram
	fragmentRetries   metric.Int64Counter
	batchParentCount  metric.Int64Histogram
	batchQueriesSaved metric.Int64Counter
	batchSkipped      metric.Int64Counter
}

// MeterName is the instrumentation scope of the GraphQL metrics.
const MeterName = "neo4j-graphql"

// instrumentSet creates instruments on one meter and remembers the first failure.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) note(name string, err error) {
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("create %s: %w", name, err)
	}
}

func (s *instrumentSet) duration(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	s.note(name, err)
	return h
}

func (s *instrumentSet) histogram(name, desc string) metric.Int64Histogram {
	h, err := s.meter.Int64Histogram(name, metric.WithDescription(desc))
	s.note(name, err)
	return h
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	s.note(name, err)
	return c
}

// NewGraphQLMetrics creates the request, plan and fragment instruments on meter.
func NewGraphQLMetrics(meter metric.Meter) (*GraphQLMetrics, error) {
	s := &instrumentSet{meter: meter}
	m := &GraphQLMetrics{
		requestDuration:   s.duration("graphql.request.duration", "Duration of GraphQL requests in milliseconds"),
		requestCounter:    s.counter("graphql.requests.total", "GraphQL requests served"),
		errorCounter:      s.counter("graphql.errors.total", "GraphQL requests that failed, by error kind"),
		queryDepth:        s.histogram("graphql.query.depth", "Selection depth of GraphQL operations"),
		planFragments:     s.histogram("graphql.plan.fragments", "Graph statements planned for one request"),
		resultsCount:      s.histogram("graphql.results.count", "Root values returned by one request"),
		fragmentDuration:  s.duration("graph.fragment.duration", "Duration of graph statements in milliseconds"),
		fragmentRows:      s.histogram("graph.fragment.rows", "Records returned by one graph statement"),
		fragmentRetries:   s.counter("graph.fragment.retries", "Graph statements retried after a transient failure"),
		batchParentCount:  s.histogram("graphql.batch.parent_count", "Parent identities bound into one batched statement"),
		batchQueriesSaved: s.counter("graphql.batch.queries_saved", "Statements avoided by batching"),
		batchSkipped:      s.counter("graphql.batch.skipped", "Dependent fields that could not be batched"),
	}
	active, err := meter.Int64UpDownCounter("graphql.requests.active", metric.WithDescription("GraphQL requests in flight"))
	s.note("graphql.requests.active", err)
	m.activeRequests = active
	if s.err != nil {
		return nil, s.err
	}
	return m, nil
}

// RecordRequest records a GraphQL request with its duration and outcome. errorKind is the
// classified kind of the first reported error, empty on success.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, errorKind string, operationType string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", errorKind != ""),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if errorKind != "" {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
			attribute.String("error_kind", errorKind),
		))
	}
}

func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(
		attribute.String("operation_type", operationType),
	))
}

// RecordPlanFragments records how many fragments a request was planned into.
func (m *GraphQLMetrics) RecordPlanFragments(ctx context.Context, count int64) {
	m.planFragments.Record(ctx, count)
}

// RecordResultsCount records how many root values a request returned.
func (m *GraphQLMetrics) RecordResultsCount(ctx context.Context, count int64, operationType string) {
	m.resultsCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("operation_type", operationType),
	))
}

// RecordFragment records one executed graph statement.
func (m *GraphQLMetrics) RecordFragment(ctx context.Context, kind string, duration time.Duration, rows int, failed bool) {
	attrs := metric.WithAttributes(
		attribute.String("fragment_kind", kind),
		attribute.Bool("has_errors", failed),
	)
	m.fragmentDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if !failed {
		m.fragmentRows.Record(ctx, int64(rows), metric.WithAttributes(
			attribute.String("fragment_kind", kind),
		))
	}
}

// RecordFragmentRetry counts a retried graph statement.
func (m *GraphQLMetrics) RecordFragmentRetry(ctx context.Context, kind string) {
	m.fragmentRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("fragment_kind", kind),
	))
}

func (m *GraphQLMetrics) RecordBatchParentCount(ctx context.Context, count int64, kind string) {
	m.batchParentCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("fragment_kind", kind),
	))
}

func (m *GraphQLMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, kind string) {
	if count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, count, metric.WithAttributes(
		attribute.String("fragment_kind", kind),
	))
}

func (m *GraphQLMetrics) RecordBatchSkipped(ctx context.Context, field, reason string) {
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("reason", reason),
	))
}

func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics creates the GraphQL metrics on the global meter provider.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := NewGraphQLMetrics(otel.Meter(MeterName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Debug("graphql metrics initialized")
	return metrics, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores metrics in ctx for the engine and coordinator.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
