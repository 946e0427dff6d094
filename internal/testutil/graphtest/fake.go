// Package graphtest provides graph store doubles for tests: a scripted in-memory pool and a
// helper that connects to a live Neo4j server when one is configured.
package graphtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"neo4j-graphql/internal/cypher"
	"neo4j-graphql/internal/dbexec"
)

// Handler answers one statement.
type Handler func(ctx context.Context, query string, params map[string]any) ([]dbexec.Record, error)

// Call is one statement observed by a FakePool.
type Call struct {
	Query  string
	Params map[string]any
}

type route struct {
	contains string
	handler  Handler
}

// FakePool routes statements to handlers by substring, in registration order.
type FakePool struct {
	mu       sync.Mutex
	routes   []route
	calls    []Call
	txs      []*FakeTx
	beginErr error
	closed   bool
}

// NewFakePool returns an empty pool. Statements that match no route fail.
func NewFakePool() *FakePool {
	return &FakePool{}
}

// On routes statements containing substr to h.
func (p *FakePool) On(substr string, h Handler) *FakePool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, route{contains: substr, handler: h})
	return p
}

// OnRecords answers statements containing substr with fixed records.
func (p *FakePool) OnRecords(substr string, records ...dbexec.Record) *FakePool {
	return p.On(substr, func(context.Context, string, map[string]any) ([]dbexec.Record, error) {
		return records, nil
	})
}

// FailBegin makes BeginRead return err.
func (p *FakePool) FailBegin(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beginErr = err
}

// BeginRead opens a recorded transaction.
func (p *FakePool) BeginRead(ctx context.Context) (dbexec.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	tx := &FakeTx{pool: p}
	p.txs = append(p.txs, tx)
	return tx, nil
}

func (p *FakePool) VerifyConnectivity(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("pool closed")
	}
	return ctx.Err()
}

func (p *FakePool) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Calls returns every statement run so far, in arrival order.
func (p *FakePool) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsMatching returns the statements containing substr.
func (p *FakePool) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if strings.Contains(c.Query, substr) {
			out = append(out, c)
		}
	}
	return out
}

// Transactions returns the transactions opened so far.
func (p *FakePool) Transactions() []*FakeTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeTx(nil), p.txs...)
}

func (p *FakePool) dispatch(ctx context.Context, query string, params map[string]any) ([]dbexec.Record, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Query: query, Params: params})
	var h Handler
	for _, r := range p.routes {
		if strings.Contains(query, r.contains) {
			h = r.handler
			break
		}
	}
	p.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("no scripted response for statement:\n%s", query)
	}
	return h(ctx, query, params)
}

// ErrTxFailed is returned by every statement and commit of a transaction after one of its
// statements failed. Like a Neo4j explicit transaction, it can only be rolled back.
var ErrTxFailed = errors.New("transaction failed earlier and must be rolled back")

// FakeTx records how the transaction ended.
type FakeTx struct {
	pool       *FakePool
	mu         sync.Mutex
	failed     error
	committed  bool
	rolledBack bool
}

func (t *FakeTx) Run(ctx context.Context, query string, params map[string]any) ([]dbexec.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	done, failed := t.committed || t.rolledBack, t.failed
	t.mu.Unlock()
	switch {
	case done:
		return nil, errors.New("transaction already closed")
	case failed != nil:
		return nil, fmt.Errorf("%w: %v", ErrTxFailed, failed)
	}
	records, err := t.pool.dispatch(ctx, query, params)
	if err != nil {
		t.mu.Lock()
		if t.failed == nil {
			t.failed = err
		}
		t.mu.Unlock()
	}
	return records, err
}

func (t *FakeTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed != nil {
		return fmt.Errorf("%w: %v", ErrTxFailed, t.failed)
	}
	t.committed = true
	return nil
}

func (t *FakeTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolledBack = true
	return nil
}

// Committed reports whether Commit was called.
func (t *FakeTx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// RolledBack reports whether Rollback was called.
func (t *FakeTx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

// Fail returns a handler that always fails with err.
func Fail(err error) Handler {
	return func(context.Context, string, map[string]any) ([]dbexec.Record, error) {
		return nil, err
	}
}

// FailTimes fails the first n calls with err and then answers with records.
func FailTimes(n int, err error, records ...dbexec.Record) Handler {
	var mu sync.Mutex
	calls := 0
	return func(context.Context, string, map[string]any) ([]dbexec.Record, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= n {
			return nil, err
		}
		return records, nil
	}
}

// Block waits for ctx to end and returns its error.
func Block() Handler {
	return func(ctx context.Context, _ string, _ map[string]any) ([]dbexec.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Delay answers with records after d, or fails when ctx ends first.
func Delay(d time.Duration, records ...dbexec.Record) Handler {
	return func(ctx context.Context, _ string, _ map[string]any) ([]dbexec.Record, error) {
		select {
		case <-time.After(d):
			return records, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Node is a node row as produced by root list and traversal statements.
type Node struct {
	Parent string
	ID     string
	Labels []string
	Props  map[string]any
}

// Record renders the node in root list shape, or in traversal shape when Parent is set.
func (n Node) Record() dbexec.Record {
	labels := make([]any, len(n.Labels))
	for i, l := range n.Labels {
		labels[i] = l
	}
	props := n.Props
	if props == nil {
		props = map[string]any{}
	}
	if n.Parent == "" {
		return dbexec.Record{
			Keys:   []string{cypher.ColID, cypher.ColLabels, cypher.ColProps},
			Values: []any{n.ID, labels, props},
		}
	}
	return dbexec.Record{
		Keys:   []string{cypher.ColParent, cypher.ColID, cypher.ColLabels, cypher.ColProps},
		Values: []any{n.Parent, n.ID, labels, props},
	}
}

// Nodes renders each node with Record.
func Nodes(nodes ...Node) []dbexec.Record {
	out := make([]dbexec.Record, len(nodes))
	for i, n := range nodes {
		out[i] = n.Record()
	}
	return out
}

// Neighbours answers a batched traversal with the nodes whose Parent is among the statement's
// parents.
func Neighbours(nodes ...Node) Handler {
	return func(_ context.Context, _ string, params map[string]any) ([]dbexec.Record, error) {
		parents, _ := params[cypher.ParamParents].([]string)
		var out []dbexec.Record
		for _, n := range nodes {
			if slices.Contains(parents, n.Parent) {
				out = append(out, n.Record())
			}
		}
		return out, nil
	}
}

// Value is a single-column row.
func Value(column string, v any) dbexec.Record {
	return dbexec.Record{Keys: []string{column}, Values: []any{v}}
}

// ParentValue is a batched nested cypher row.
func ParentValue(parent string, v any) dbexec.Record {
	return dbexec.Record{Keys: []string{cypher.ColParent, cypher.ColValue}, Values: []any{parent, v}}
}
