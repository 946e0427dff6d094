package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/catalog"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/execution"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/planner"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/testutil/graphtest"
)

func model(t *testing.T) *schema.Model {
	t.Helper()
	m, err := catalog.Build(naming.DefaultConfig(), nil)
	require.NoError(t, err)
	return m
}

func request(t *testing.T, query string) Request {
	t.Helper()
	nodes, err := selection.Parse(query, "", nil)
	require.NoError(t, err)
	return Request{Selections: nodes}
}

func encode(t *testing.T, resp *Response) string {
	t.Helper()
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(resp.Data)
	require.NoError(t, err)
	return string(b)
}

type recorder struct {
	mu     sync.Mutex
	states []execution.State
}

func (r *recorder) hook(s execution.State, _ *planner.Fragment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func TestExecute_PlayersNamesByLanguage(t *testing.T) {
	pool := graphtest.NewFakePool().On("collect(DISTINCT p.name)",
		func(_ context.Context, _ string, params map[string]any) ([]dbexec.Record, error) {
			names := []any{"ada", "bob", "cyd"}
			limit := int(params["limit"].(int64))
			return []dbexec.Record{graphtest.Value("names", names[:min(limit, len(names))])}, nil
		})
	rec := &recorder{}
	e := New(model(t), pool, DefaultConfig(), WithStateHook(rec.hook))

	resp, err := e.Execute(context.Background(), request(t, `{ playersNamesByLanguage(language: "English", limit: 2) }`))
	require.NoError(t, err)
	assert.Equal(t, `{"playersNamesByLanguage":["ada","bob"]}`, encode(t, resp))
	assert.Equal(t, []execution.State{execution.Planning, execution.Executing, execution.Merging, execution.Done}, rec.states)
}

func TestExecute_ConditionedSelectionExtendsUnconditionedOne(t *testing.T) {
	pool := graphtest.NewFakePool().
		OnRecords("MATCH (n:`Language`)", graphtest.Node{ID: "l1", Labels: []string{"Language"}}.Record()).
		On("HAS_LANGUAGE", graphtest.Neighbours(
			graphtest.Node{Parent: "l1", ID: "u1", Labels: []string{"User"}},
			graphtest.Node{Parent: "l1", ID: "s1", Labels: []string{"Stream"}},
		)).
		On("-[:`PLAYS`]->", graphtest.Neighbours(
			graphtest.Node{Parent: "u1", ID: "g1", Labels: []string{"Game"}, Props: map[string]any{"name": "chess"}},
			graphtest.Node{Parent: "s1", ID: "g2", Labels: []string{"Game"}, Props: map[string]any{"name": "go"}},
		)).
		On("<-[:`PLAYS`]-", graphtest.Neighbours(
			graphtest.Node{Parent: "g2", ID: "u2", Labels: []string{"User"}, Props: map[string]any{"name": "ada"}},
		))
	e := New(model(t), pool, DefaultConfig())

	resp, err := e.Execute(context.Background(), request(t,
		`{ languages { people { games { name } ... on Stream { games { people { name } } } } } }`))
	require.NoError(t, err)

	want := `{"languages":[{"people":[` +
		`{"games":[{"name":"chess"}]},` +
		`{"games":[{"name":"go","people":[{"name":"ada"}]}]}` +
		`]}]}`
	assert.Equal(t, want, encode(t, resp))
}

func TestExecute_DefaultLimitArgument(t *testing.T) {
	pool := graphtest.NewFakePool().OnRecords("collect(DISTINCT p.name)", graphtest.Value("names", []any{"ada"}))
	e := New(model(t), pool, DefaultConfig())

	_, err := e.Execute(context.Background(), request(t, `{ playersNamesByLanguage(language: "English") }`))
	require.NoError(t, err)
	assert.Equal(t, int64(10), pool.Calls()[0].Params["limit"])
}

func TestExecute_ArgumentErrorFailsBeforeExecution(t *testing.T) {
	pool := graphtest.NewFakePool()
	rec := &recorder{}
	e := New(model(t), pool, DefaultConfig(), WithStateHook(rec.hook))

	_, err := e.Execute(context.Background(), request(t, `{ playersNamesByLanguage(language: "English", rank: 1) }`))
	require.Error(t, err)
	assert.True(t, gqlerr.Is(err, gqlerr.KindArgument))
	assert.Empty(t, pool.Transactions())
	assert.Equal(t, []execution.State{execution.Planning, execution.Failed}, rec.states)
}

func TestExecute_MaxListLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxListLimit = 50
	e := New(model(t), graphtest.NewFakePool(), cfg)

	_, err := e.Execute(context.Background(), request(t, `{ languages(options: {limit: 51}) { name } }`))
	require.Error(t, err)
	assert.True(t, gqlerr.Is(err, gqlerr.KindArgument))
}

func TestExecute_MaxDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	e := New(model(t), graphtest.NewFakePool(), cfg)

	_, err := e.Execute(context.Background(), request(t, `{ languages { people { teams { name } } } }`))
	require.Error(t, err)
	assert.True(t, gqlerr.Is(err, gqlerr.KindArgument))
}

func TestExecute_DatabaseErrorReturnsNoPartialData(t *testing.T) {
	pool := graphtest.NewFakePool().
		OnRecords("MATCH (n:`Language`)", graphtest.Node{ID: "l1", Labels: []string{"Language"}, Props: map[string]any{"name": "English"}}.Record()).
		On("HAS_LANGUAGE", graphtest.Fail(dbexec.Transient(errors.New("connection reset by peer"))))
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	rec := &recorder{}
	e := New(model(t), pool, cfg, WithStateHook(rec.hook))

	resp, err := e.Execute(context.Background(), request(t, `{ languages { name people { name } } }`))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, gqlerr.Is(err, gqlerr.KindDatabase))
	assert.Len(t, pool.CallsMatching("HAS_LANGUAGE"), 2)
	assert.True(t, pool.Transactions()[0].RolledBack())
	assert.Equal(t, execution.Failed, rec.states[len(rec.states)-1])
	assert.NotContains(t, rec.states, execution.Merging)
}

func TestExecute_RequestDeadline(t *testing.T) {
	pool := graphtest.NewFakePool().
		On("MATCH (n:`Language`)", graphtest.Delay(time.Second, graphtest.Node{ID: "l1", Labels: []string{"Language"}}.Record())).
		OnRecords("HAS_LANGUAGE")
	cfg := DefaultConfig()
	cfg.RequestDeadline = 20 * time.Millisecond
	e := New(model(t), pool, cfg)

	start := time.Now()
	resp, err := e.Execute(context.Background(), request(t, `{ languages { name people { name } } }`))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, gqlerr.Is(err, gqlerr.KindTimeout))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, pool.CallsMatching("HAS_LANGUAGE"))
	assert.True(t, pool.Transactions()[0].RolledBack())
}

func TestExecute_ConcurrentRequestsAreIsolated(t *testing.T) {
	pool := graphtest.NewFakePool().
		OnRecords("MATCH (n:`Language`)", graphtest.Node{ID: "l1", Labels: []string{"Language"}, Props: map[string]any{"name": "English"}}.Record()).
		OnRecords("MATCH (n:`Game`)", graphtest.Node{ID: "g1", Labels: []string{"Game"}, Props: map[string]any{"name": "chess"}}.Record())
	e := New(model(t), pool, DefaultConfig())

	languages := request(t, `{ languages { name } }`)
	games := request(t, `{ games { name } }`)
	check := func(req Request, want string) error {
		resp, err := e.Execute(context.Background(), req)
		if err != nil {
			return err
		}
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(resp.Data)
		if err != nil {
			return err
		}
		if string(b) != want {
			return errors.New("unexpected response: " + string(b))
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- check(languages, `{"languages":[{"name":"English"}]}`)
		}()
		go func() {
			defer wg.Done()
			errs <- check(games, `{"games":[{"name":"chess"}]}`)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, pool.Transactions(), 20)
}
