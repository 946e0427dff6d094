// Package execution runs a plan's fragments against the graph store inside one read
// transaction and collects their rows keyed by parent identity.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"neo4j-graphql/internal/cypher"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/observability"
	"neo4j-graphql/internal/planner"
	"neo4j-graphql/internal/schema"
)

// DefaultRetryDelay is the pause before a request that failed transiently is run again.
const DefaultRetryDelay = 50 * time.Millisecond

// DefaultConcurrency caps the fragments of one dependency level run at once.
const DefaultConcurrency = 4

// Coordinator schedules fragments level by level. Fragments of a level run concurrently
// after every fragment of the previous level has finished.
type Coordinator struct {
	pool        dbexec.Pool
	model       *schema.Model
	translator  *cypher.Translator
	retryDelay  time.Duration
	concurrency int
	onState     StateFunc
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithRetryDelay sets the pause before a transiently failed request is run again.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.retryDelay = d
	}
}

// WithConcurrency caps how many fragments of one level run at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithStateHook registers an observer for lifecycle transitions.
func WithStateHook(fn StateFunc) Option {
	return func(c *Coordinator) {
		c.onState = fn
	}
}

// New returns a coordinator for plans built against model.
func New(pool dbexec.Pool, model *schema.Model, opts ...Option) *Coordinator {
	c := &Coordinator{
		pool:        pool,
		model:       model,
		translator:  cypher.New(model),
		retryDelay:  DefaultRetryDelay,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs plan in one read transaction. The transaction is committed when every fragment
// succeeds and rolled back otherwise. A transient store failure rolls the transaction back and
// runs the whole plan once more in a fresh one, so every value still comes from one snapshot.
// Executing is reported per statement and Failed on the final error; the caller reports the
// remaining states. Deadline and cancellation surface as TimeoutError, store failures as
// DatabaseError.
func (c *Coordinator) Execute(ctx context.Context, plan *planner.Plan) (*Result, error) {
	if len(plan.Fragments) == 0 {
		return newResult(plan), nil
	}

	attempts := 0
	res, err := backoff.Retry(ctx, func() (*Result, error) {
		attempts++
		res, err := c.attempt(ctx, plan)
		if err == nil {
			return res, nil
		}
		if attempts == 1 && dbexec.IsTransient(err) && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) { c.notifyRetry(ctx, err, wait) }),
	)
	if err != nil {
		c.state(Failed, nil)
		return nil, classify(ctx, err, "graph query failed")
	}
	return res, nil
}

func (c *Coordinator) notifyRetry(ctx context.Context, err error, wait time.Duration) {
	kind := "transaction"
	var stmtErr *statementError
	if errors.As(err, &stmtErr) {
		kind = stmtErr.fragment.Kind.String()
	}
	logging.FromContext(ctx).Warn("retrying request in a new transaction after transient failure",
		"fragment_kind", kind,
		"wait", wait,
		"error", err,
	)
	if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
		metrics.RecordFragmentRetry(ctx, kind)
	}
}

// attempt runs every level of plan in its own read transaction.
func (c *Coordinator) attempt(ctx context.Context, plan *planner.Plan) (res *Result, err error) {
	tx, err := c.pool.BeginRead(ctx)
	if err != nil {
		return nil, classify(ctx, err, "failed to begin read transaction")
	}
	defer func() {
		release := context.WithoutCancel(ctx)
		if err != nil {
			if rbErr := tx.Rollback(release); rbErr != nil {
				logging.FromContext(ctx).Warn("failed to roll back read transaction", "error", rbErr)
			}
			return
		}
		if commitErr := tx.Commit(release); commitErr != nil {
			res, err = nil, gqlerr.Wrap(gqlerr.KindDatabase, commitErr, "failed to commit read transaction")
		}
	}()

	res = newResult(plan)
	for _, level := range plan.Levels() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for _, f := range level {
			g.Go(func() error {
				return c.runFragment(gctx, tx, res, f)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, classify(ctx, err, "graph query failed")
		}
	}
	return res, nil
}

// statementError ties a store failure to the fragment whose statement failed.
type statementError struct {
	fragment *planner.Fragment
	err      error
}

func (e *statementError) Error() string { return e.err.Error() }

func (e *statementError) Unwrap() error { return e.err }

func (c *Coordinator) runFragment(ctx context.Context, tx dbexec.Tx, res *Result, f *planner.Fragment) error {
	if f.IsRoot() {
		res.begin(f.ID, []string{""})
		return c.runStatement(ctx, tx, res, f, nil)
	}

	parents := c.parentIDs(res, f)
	if len(parents) == 0 {
		return nil
	}
	res.begin(f.ID, parents)
	metrics := observability.GraphQLMetricsFromContext(ctx)

	if f.PerParent {
		logging.FromContext(ctx).Warn("nested cypher field cannot be batched; running once per parent",
			"field", f.Owner+"."+f.Field.Name,
			"parents", len(parents),
		)
		if metrics != nil {
			metrics.RecordBatchSkipped(ctx, f.Owner+"."+f.Field.Name, "template_unbatchable")
		}
		for _, parent := range parents {
			if err := c.runStatement(ctx, tx, res, f, []string{parent}); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := f.Chunk
	if chunk <= 0 {
		chunk = len(parents)
	}
	statements := 0
	for start := 0; start < len(parents); start += chunk {
		end := min(start+chunk, len(parents))
		if metrics != nil {
			metrics.RecordBatchParentCount(ctx, int64(end-start), f.Kind.String())
		}
		if err := c.runStatement(ctx, tx, res, f, parents[start:end]); err != nil {
			return err
		}
		statements++
	}
	if metrics != nil {
		metrics.RecordBatchQueriesSaved(ctx, int64(len(parents)-statements), f.Kind.String())
	}
	return nil
}

func (c *Coordinator) runStatement(ctx context.Context, tx dbexec.Tx, res *Result, f *planner.Fragment, parents []string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	q, err := c.translator.Translate(f, parents)
	if err != nil {
		return err
	}

	ctx, span := startFragmentSpan(ctx, f, len(parents))
	start := time.Now()
	rows := 0
	defer func() {
		finishFragmentSpan(span, rows, err)
		if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
			metrics.RecordFragment(ctx, f.Kind.String(), time.Since(start), rows, err != nil)
		}
	}()

	c.state(Executing, f)
	records, err := tx.Run(ctx, q.Text, q.Params)
	if err != nil {
		return &statementError{fragment: f, err: err}
	}
	rows = len(records)

	parent := ""
	if f.PerParent {
		parent = parents[0]
	}
	items, err := decode(f, records, parent)
	if err != nil {
		return err
	}
	res.store(f, items)
	return nil
}

// parentIDs returns the distinct parent nodes whose concrete type satisfies f's parent type.
func (c *Coordinator) parentIDs(res *Result, f *planner.Fragment) []string {
	parentFrag := res.Plan.Fragments[f.ParentID]
	var ids []string
	for _, it := range res.nodes(f.ParentID) {
		concrete, ok := c.model.ResolveConcrete(parentFrag.Target, it.Labels)
		if !ok || !c.model.Conforms(concrete.Name, f.ParentType) {
			continue
		}
		ids = append(ids, it.ID)
	}
	return ids
}

func (c *Coordinator) state(s State, f *planner.Fragment) {
	if c.onState != nil {
		c.onState(s, f)
	}
}

func classify(ctx context.Context, err error, msg string) error {
	if _, ok := gqlerr.KindOf(err); ok {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return gqlerr.Wrap(gqlerr.KindTimeout, err, "request aborted")
	}
	return gqlerr.Wrap(gqlerr.KindDatabase, err, "%s", msg)
}

func decode(f *planner.Fragment, records []dbexec.Record, parent string) ([]Item, error) {
	var items []Item
	for _, rec := range records {
		switch f.Kind {
		case planner.RootList, planner.Traversal:
			it, err := nodeRow(f, rec)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		case planner.NestedCypher:
			if f.PerParent {
				v, _ := rec.First()
				expanded, err := expand(f, parent, v)
				if err != nil {
					return nil, err
				}
				items = append(items, expanded...)
				continue
			}
			p, ok := stringColumn(rec, cypher.ColParent)
			if !ok {
				return nil, gqlerr.New(gqlerr.KindConsistency, "fragment %d row has no parent identity", f.ID)
			}
			v, _ := rec.Get(cypher.ColValue)
			expanded, err := expand(f, p, v)
			if err != nil {
				return nil, err
			}
			items = append(items, expanded...)
		case planner.RootCypher:
			v, _ := rec.First()
			expanded, err := expand(f, "", v)
			if err != nil {
				return nil, err
			}
			items = append(items, expanded...)
		}
	}
	return items, nil
}

func nodeRow(f *planner.Fragment, rec dbexec.Record) (Item, error) {
	id, ok := stringColumn(rec, cypher.ColID)
	if !ok {
		return Item{}, gqlerr.New(gqlerr.KindConsistency, "fragment %d row has no node identity", f.ID)
	}
	it := Item{ID: id}
	if f.Kind == planner.Traversal {
		if it.Parent, ok = stringColumn(rec, cypher.ColParent); !ok {
			return Item{}, gqlerr.New(gqlerr.KindConsistency, "fragment %d row has no parent identity", f.ID)
		}
	}
	if raw, ok := rec.Get(cypher.ColLabels); ok {
		it.Labels = toStrings(raw)
	}
	if raw, ok := rec.Get(cypher.ColProps); ok {
		it.Props, _ = raw.(map[string]any)
	}
	return it, nil
}

// expand turns one template value into items. A list value for a list field contributes
// each element.
func expand(f *planner.Fragment, parent string, v any) ([]Item, error) {
	if list, ok := v.([]any); ok && f.Field.IsList() {
		items := make([]Item, 0, len(list))
		for _, elem := range list {
			it, err := valueItem(f, parent, elem)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
		return items, nil
	}
	it, err := valueItem(f, parent, v)
	if err != nil {
		return nil, err
	}
	return []Item{it}, nil
}

func valueItem(f *planner.Fragment, parent string, v any) (Item, error) {
	if !f.Field.IsEntity() {
		return Item{Parent: parent, Value: v}, nil
	}
	switch node := v.(type) {
	case nil:
		return Item{Parent: parent}, nil
	case dbexec.NodeValue:
		return Item{Parent: parent, ID: node.ID, Labels: node.Labels, Props: node.Props}, nil
	}
	return Item{}, gqlerr.New(gqlerr.KindConsistency, "field %q expected a node but the template returned %T", f.Field.Name, v)
}

func stringColumn(rec dbexec.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, x := range vals {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
