// Package engine is the request entry point: it plans a selection tree, executes the plan
// against the graph store, and assembles the response data.
package engine

import (
	"context"
	"time"

	"neo4j-graphql/internal/assembler"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/execution"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/planner"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
)

// Config holds per-request planning and execution limits.
type Config struct {
	DefaultListLimit int
	MaxListLimit     int
	BatchMaxParents  int
	MaxDepth         int
	MaxFragments     int
	RequestDeadline  time.Duration
	RetryDelay       time.Duration
	Concurrency      int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		DefaultListLimit: planner.DefaultListLimit,
		BatchMaxParents:  planner.DefaultBatchMaxParents,
		RequestDeadline:  30 * time.Second,
		RetryDelay:       execution.DefaultRetryDelay,
		Concurrency:      execution.DefaultConcurrency,
	}
}

// Request is one validated client operation.
type Request struct {
	Selections []*selection.Node
}

// Response is the assembled data of a successful request.
type Response struct {
	Data *assembler.OrderedMap
}

// Engine is safe for concurrent use; the schema model is shared read-only by every request.
type Engine struct {
	model       *schema.Model
	coordinator *execution.Coordinator
	assembler   *assembler.Assembler
	cfg         Config
	onState     execution.StateFunc
}

// Option customizes an Engine.
type Option func(*Engine)

// WithStateHook observes every request's lifecycle transitions.
func WithStateHook(fn execution.StateFunc) Option {
	return func(e *Engine) {
		e.onState = fn
	}
}

// New wires the pipeline for model over pool.
func New(model *schema.Model, pool dbexec.Pool, cfg Config, opts ...Option) *Engine {
	e := &Engine{model: model, assembler: assembler.New(model), cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.coordinator = execution.New(pool, model,
		execution.WithRetryDelay(cfg.RetryDelay),
		execution.WithConcurrency(cfg.Concurrency),
		execution.WithStateHook(e.onState),
	)
	return e
}

// Model returns the schema the engine serves.
func (e *Engine) Model() *schema.Model {
	return e.model
}

// Execute runs one request. Any failure fails the whole request; no partial data is returned.
func (e *Engine) Execute(ctx context.Context, req Request) (*Response, error) {
	if e.cfg.RequestDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestDeadline)
		defer cancel()
	}
	logger := logging.FromContext(ctx)

	e.state(execution.Planning)
	plan, err := planner.PlanQuery(e.model, req.Selections, e.planOptions()...)
	if err != nil {
		e.state(execution.Failed)
		return nil, err
	}
	if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
		metrics.RecordPlanFragments(ctx, int64(len(plan.Fragments)))
	}
	logger.Debug("query planned", "fragments", len(plan.Fragments), "depth", plan.Cost.Depth)

	res, err := e.coordinator.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	e.state(execution.Merging)
	data, err := e.assembler.Assemble(res)
	if err != nil {
		e.state(execution.Failed)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		e.state(execution.Failed)
		return nil, gqlerr.Wrap(gqlerr.KindTimeout, err, "request aborted")
	}
	e.state(execution.Done)
	return &Response{Data: data}, nil
}

func (e *Engine) planOptions() []planner.PlanOption {
	opts := []planner.PlanOption{
		planner.WithDefaultListLimit(e.cfg.DefaultListLimit),
		planner.WithMaxListLimit(e.cfg.MaxListLimit),
	}
	if e.cfg.BatchMaxParents > 0 {
		opts = append(opts, planner.WithBatchMaxParents(e.cfg.BatchMaxParents))
	}
	if e.cfg.MaxDepth > 0 || e.cfg.MaxFragments > 0 {
		opts = append(opts, planner.WithLimits(planner.PlanLimits{MaxDepth: e.cfg.MaxDepth, MaxFragments: e.cfg.MaxFragments}))
	}
	return opts
}

func (e *Engine) state(s execution.State) {
	if e.onState != nil {
		e.onState(s, nil)
	}
}
