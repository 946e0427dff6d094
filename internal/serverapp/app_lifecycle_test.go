package serverapp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/testutil/graphtest"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "info", Format: "text", Output: io.Discard})
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			URI:                     "neo4j://127.0.0.1:1",
			User:                    "neo4j",
			ConnectionRetryInterval: time.Millisecond,
		},
		Server: config.ServerConfig{
			Port:                0,
			RequestDeadline:     5 * time.Second,
			DefaultLimit:        100,
			MaxLimit:            1000,
			MaxDepth:            8,
			MaxFragments:        64,
			BatchMaxParents:     500,
			RetryDelay:          time.Millisecond,
			FragmentConcurrency: 2,
			MaxBodyBytes:        1 << 20,
			ReadTimeout:         time.Second,
			WriteTimeout:        time.Second,
			IdleTimeout:         time.Second,
			ShutdownTimeout:     time.Second,
			HealthCheckTimeout:  time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "neo4j-graphql",
			Logging:     config.LoggingConfig{Level: "info", Format: "text"},
		},
		Naming: naming.DefaultConfig(),
	}
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	require.NoError(t, err)
	assert.Equal(t, StopSignal, reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(stop, serverErrors)
	assert.EqualError(t, err, "server failed: boom")
	assert.Equal(t, StopServerError, reason)
}

func TestWaitForStop_NoSources(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	assert.Error(t, err)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("close failed")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first := app.Shutdown(ctx)
	second := app.Shutdown(ctx)
	assert.EqualError(t, first, "test: close failed")
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestShutdown_RunsInReverseOrder(t *testing.T) {
	app := &App{logger: testLogger()}
	var order []string
	for _, name := range []string{"database", "HTTP server"} {
		app.cleanup.push(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, []string{"HTTP server", "database"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	assert.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
	app := &App{cfg: testConfig(), logger: testLogger(), rt: &runtime{srv: srv}}
	app.cleanup.push("HTTP server", srv.Shutdown)

	first, err := app.Start()
	require.NoError(t, err)
	again, err := app.Start()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	pool := graphtest.NewFakePool()
	require.NoError(t, pool.Close(context.Background()))

	app, err := New(testConfig(), testLogger(), WithPool(pool))
	require.NoError(t, err)

	err = app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to verify database connection")

	assert.Nil(t, app.Handler())
	_, err = app.Start()
	assert.Error(t, err)
}

func TestInit_ServesGraphQLAndHealth(t *testing.T) {
	pool := graphtest.NewFakePool().OnRecords("MATCH (n:`Team`)",
		graphtest.Node{ID: "t1", Labels: []string{"Team"}, Props: map[string]any{"name": "Red"}}.Record())

	app, err := New(testConfig(), testLogger(), WithPool(pool))
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()), "Init is idempotent")
	handler := app.Handler()
	require.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ teams { name } }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"teams":[{"name":"Red"}]}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are disabled")

	require.NoError(t, app.Shutdown(context.Background()))
	assert.Error(t, pool.VerifyConnectivity(context.Background()), "shutdown closes the pool")
}

type flakyPool struct {
	*graphtest.FakePool
	failures int32
	calls    int32
}

func (p *flakyPool) VerifyConnectivity(ctx context.Context) error {
	if atomic.AddInt32(&p.calls, 1) <= p.failures {
		return errors.New("connection refused")
	}
	return p.FakePool.VerifyConnectivity(ctx)
}

var _ dbexec.Pool = (*flakyPool)(nil)

func TestWaitForDatabase(t *testing.T) {
	cfg := testConfig()

	t.Run("retries until reachable", func(t *testing.T) {
		cfg.Database.ConnectionTimeout = 5 * time.Second
		pool := &flakyPool{FakePool: graphtest.NewFakePool(), failures: 2}
		require.NoError(t, waitForDatabase(context.Background(), cfg, testLogger(), pool))
		assert.EqualValues(t, 3, atomic.LoadInt32(&pool.calls))
	})

	t.Run("zero timeout tries once", func(t *testing.T) {
		cfg.Database.ConnectionTimeout = 0
		pool := &flakyPool{FakePool: graphtest.NewFakePool(), failures: 1}
		require.Error(t, waitForDatabase(context.Background(), cfg, testLogger(), pool))
		assert.EqualValues(t, 1, atomic.LoadInt32(&pool.calls))
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		cfg.Database.ConnectionTimeout = 20 * time.Millisecond
		pool := &flakyPool{FakePool: graphtest.NewFakePool(), failures: 1 << 20}
		err := waitForDatabase(context.Background(), cfg, testLogger(), pool)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database not available after 20ms")
	})
}
