package graphtest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"neo4j-graphql/internal/dbexec"
)

// FixtureProperty tags nodes created by Seed so they can be removed after the test.
const FixtureProperty = "__fixture"

// LiveConfig holds connection information for integration tests.
type LiveConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// LiveDB is a live server connection with a per-test fixture tag.
type LiveDB struct {
	Pool   *dbexec.Neo4jPool
	RunID  string
	driver neo4j.DriverWithContext
	config LiveConfig
}

// NewLiveDB connects to the server named by NEOGQL_TEST_NEO4J_URI. The test is skipped when
// the variable is unset. Seeded nodes are deleted on cleanup.
func NewLiveDB(t *testing.T) *LiveDB {
	t.Helper()

	cfg := getLiveConfig(t)
	pool, err := dbexec.NewNeo4jPool(dbexec.Neo4jConfig{
		URI:         cfg.URI,
		User:        cfg.User,
		Password:    cfg.Password,
		Database:    cfg.Database,
		MaxPoolSize: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create neo4j pool: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.VerifyConnectivity(ctx); err != nil {
		_ = pool.Close(ctx)
		t.Fatalf("Failed to reach neo4j at %s: %v", cfg.URI, err)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		_ = pool.Close(ctx)
		t.Fatalf("Failed to create seeding driver: %v", err)
	}

	db := &LiveDB{Pool: pool, RunID: uuid.NewString(), driver: driver, config: cfg}
	t.Cleanup(func() {
		db.Teardown(t)
	})
	return db
}

// Seed runs write statements with $run bound to the fixture tag. Statements must set
// FixtureProperty to $run on every node they create.
func (db *LiveDB) Seed(t *testing.T, statements ...string) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range statements {
		_, err := neo4j.ExecuteQuery(ctx, db.driver, stmt, map[string]any{"run": db.RunID},
			neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(db.config.Database))
		if err != nil {
			t.Fatalf("Failed to seed fixture: %v\n%s", err, stmt)
		}
	}
}

// Teardown deletes the fixture nodes and closes both connections.
func (db *LiveDB) Teardown(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	cleanup := fmt.Sprintf("MATCH (n {%s: $run}) DETACH DELETE n", FixtureProperty)
	if _, err := neo4j.ExecuteQuery(ctx, db.driver, cleanup, map[string]any{"run": db.RunID},
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(db.config.Database)); err != nil {
		t.Logf("Warning: failed to delete fixture nodes: %v", err)
	}
	if err := db.driver.Close(ctx); err != nil {
		t.Logf("Warning: failed to close seeding driver: %v", err)
	}
	if err := db.Pool.Close(ctx); err != nil {
		t.Logf("Warning: failed to close pool: %v", err)
	}
}

func getLiveConfig(t *testing.T) LiveConfig {
	t.Helper()
	uri := os.Getenv("NEOGQL_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("NEOGQL_TEST_NEO4J_URI not set, skipping integration test")
	}
	cfg := LiveConfig{
		URI:      uri,
		User:     os.Getenv("NEOGQL_TEST_NEO4J_USER"),
		Password: os.Getenv("NEOGQL_TEST_NEO4J_PASSWORD"),
		Database: os.Getenv("NEOGQL_TEST_NEO4J_DATABASE"),
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	return cfg
}
