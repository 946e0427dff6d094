// Package dbexec is the engine's only contact with the graph store: a pool that opens
// read transactions and a transaction that runs parameterized Cypher and returns records.
package dbexec

import "context"

// Record is one result row.
type Record struct {
	Keys   []string
	Values []any
}

// Get returns the value of the named column.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// First returns the value of the first column.
func (r Record) First() (any, bool) {
	if len(r.Values) == 0 {
		return nil, false
	}
	return r.Values[0], true
}

// NodeValue is a graph node returned as a column value.
type NodeValue struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Tx is a read transaction scoped to one request. Implementations must tolerate Run being
// called from several goroutines.
type Tx interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool hands out read transactions from a shared set of connections. BeginRead blocks until
// a connection is available or ctx is done.
type Pool interface {
	BeginRead(ctx context.Context) (Tx, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}
