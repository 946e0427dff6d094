package dbexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig configures the driver pool.
type Neo4jConfig struct {
	URI                   string
	User                  string
	Password              string
	Database              string
	MaxPoolSize           int
	AcquisitionTimeout    time.Duration
	MaxConnectionLifetime time.Duration
}

// Neo4jPool opens read transactions on a shared driver.
type Neo4jPool struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jPool creates the driver. Connections are opened lazily.
func NewNeo4jPool(cfg Neo4jConfig) (*Neo4jPool, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.AcquisitionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.AcquisitionTimeout
		}
		if cfg.MaxConnectionLifetime > 0 {
			c.MaxConnectionLifetime = cfg.MaxConnectionLifetime
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Neo4jPool{driver: driver, database: cfg.Database}, nil
}

// BeginRead opens a session and an explicit read transaction. The session is closed when the
// transaction is committed or rolled back.
func (p *Neo4jPool) BeginRead(ctx context.Context) (Tx, error) {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: p.database,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(context.WithoutCancel(ctx))
		return nil, classify(err)
	}
	return &neo4jTx{session: session, tx: tx}, nil
}

// VerifyConnectivity checks that the server is reachable with the configured credentials.
func (p *Neo4jPool) VerifyConnectivity(ctx context.Context) error {
	return p.driver.VerifyConnectivity(ctx)
}

// Close releases every pooled connection.
func (p *Neo4jPool) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

// neo4jTx serializes Run calls; a driver transaction is bound to one connection and is not
// safe for concurrent use.
type neo4jTx struct {
	mu      sync.Mutex
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

func (t *neo4jTx) Run(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.done {
		return nil, errors.New("transaction already closed")
	}

	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, classify(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Record, len(records))
	for i, rec := range records {
		values := make([]any, len(rec.Values))
		for j, v := range rec.Values {
			values[j] = convertValue(v)
		}
		out[i] = Record{Keys: rec.Keys, Values: values}
	}
	return out, nil
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	return t.finish(ctx, t.tx.Commit)
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	return t.finish(ctx, t.tx.Rollback)
}

func (t *neo4jTx) finish(ctx context.Context, end func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	err := end(ctx)
	if closeErr := t.session.Close(ctx); err == nil {
		err = closeErr
	}
	return err
}

func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) {
		return Transient(err)
	}
	return err
}
