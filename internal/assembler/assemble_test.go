package assembler

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/catalog"
	"neo4j-graphql/internal/execution"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/planner"
	"neo4j-graphql/internal/selection"
	"neo4j-graphql/internal/testutil/graphtest"
)

func fixturePool() *graphtest.FakePool {
	return graphtest.NewFakePool().
		OnRecords("MATCH (n:`Language`)", graphtest.Nodes(
			graphtest.Node{ID: "l1", Labels: []string{"Language"}, Props: map[string]any{"name": "English"}},
			graphtest.Node{ID: "l2", Labels: []string{"Language"}, Props: map[string]any{"name": "French"}},
		)...).
		OnRecords("HAS_LANGUAGE", graphtest.Nodes(
			graphtest.Node{Parent: "l1", ID: "u1", Labels: []string{"User"}, Props: map[string]any{"name": "ada"}},
			graphtest.Node{Parent: "l1", ID: "s1", Labels: []string{"Stream"}, Props: map[string]any{"name": "bob", "url": "https://example.test/bob"}},
			graphtest.Node{Parent: "l2", ID: "u2", Labels: []string{"User"}, Props: map[string]any{"name": "cyd"}},
		)...).
		OnRecords("HAS_TEAM", graphtest.Nodes(
			graphtest.Node{Parent: "u1", ID: "t1", Labels: []string{"Team"}, Props: map[string]any{"name": "red"}},
		)...).
		OnRecords("collect(DISTINCT p.name)", graphtest.Value("names", []any{"ada", "bob", "cyd"}))
}

func run(t *testing.T, pool *graphtest.FakePool, query string) (*OrderedMap, error) {
	t.Helper()
	m, err := catalog.Build(naming.DefaultConfig(), nil)
	require.NoError(t, err)
	roots, err := selection.Parse(query, "", nil)
	require.NoError(t, err)
	p, err := planner.PlanQuery(m, roots)
	require.NoError(t, err)
	res, err := execution.New(pool, m).Execute(context.Background(), p)
	require.NoError(t, err)
	return New(m).Assemble(res)
}

func render(t *testing.T, data *OrderedMap) string {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return string(b)
}

func TestAssemble_NestedShapeFollowsSelection(t *testing.T) {
	data, err := run(t, fixturePool(), `{ languages { name people { name ... on User { teams { name } } } } }`)
	require.NoError(t, err)

	want := `{"languages":[` +
		`{"name":"English","people":[{"name":"ada","teams":[{"name":"red"}]},{"name":"bob"}]},` +
		`{"name":"French","people":[{"name":"cyd","teams":[]}]}` +
		`]}`
	assert.Equal(t, want, render(t, data))
}

func TestAssemble_AliasesAndTypename(t *testing.T) {
	data, err := run(t, fixturePool(), `{ __typename spoken: languages { kind: __typename label: name } }`)
	require.NoError(t, err)

	want := map[string]any{
		"__typename": "Query",
		"spoken": []any{
			map[string]any{"kind": "Language", "label": "English"},
			map[string]any{"kind": "Language", "label": "French"},
		},
	}
	if diff := cmp.Diff(want, data.Plain()); diff != "" {
		t.Fatalf("unexpected data (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"__typename", "spoken"}, data.Keys())
}

func TestAssemble_InterfacePolymorphism(t *testing.T) {
	data, err := run(t, fixturePool(), `{ languages { people { __typename name ... on Stream { url } } } }`)
	require.NoError(t, err)

	want := `{"languages":[` +
		`{"people":[{"__typename":"User","name":"ada"},{"__typename":"Stream","name":"bob","url":"https://example.test/bob"}]},` +
		`{"people":[{"__typename":"User","name":"cyd"}]}` +
		`]}`
	assert.Equal(t, want, render(t, data))
}

func TestAssemble_ScalarRoundTrip(t *testing.T) {
	props := map[string]any{
		"createdAt":        "2024-03-01T12:30:00Z",
		"description":      "speedruns",
		"followers":        int64(1200),
		"id":               int64(7),
		"name":             "bob",
		"total_view_count": int64(99000),
		"url":              "https://example.test/bob",
	}
	pool := graphtest.NewFakePool().
		OnRecords("MATCH (n:`Stream`)", graphtest.Node{ID: "s1", Labels: []string{"Stream"}, Props: props}.Record())

	data, err := run(t, pool, `{ streams { createdAt description followers id name total_view_count url } }`)
	require.NoError(t, err)

	want := map[string]any{"streams": []any{props}}
	if diff := cmp.Diff(want, data.Plain()); diff != "" {
		t.Fatalf("unexpected data (-want +got):\n%s", diff)
	}
}

func TestAssemble_PlayersNamesByLanguageLimit(t *testing.T) {
	data, err := run(t, fixturePool(), `{ playersNamesByLanguage(language: "English", limit: 2) }`)
	require.NoError(t, err)
	assert.Equal(t, `{"playersNamesByLanguage":["ada","bob"]}`, render(t, data))
}

func TestAssemble_Idempotent(t *testing.T) {
	const query = `{ languages { name people { name ... on Stream { url } games { name } } } }`
	pool := fixturePool().OnRecords("PLAYS")

	first, err := run(t, pool, query)
	require.NoError(t, err)
	second, err := run(t, pool, query)
	require.NoError(t, err)
	assert.Equal(t, render(t, first), render(t, second))
}

func TestAssemble_MissingNonNullIsConsistencyError(t *testing.T) {
	pool := graphtest.NewFakePool().
		OnRecords("MATCH (n:`Language`)", graphtest.Node{ID: "l1", Labels: []string{"Language"}}.Record())

	_, err := run(t, pool, `{ languages { name } }`)
	require.Error(t, err)
	assert.True(t, gqlerr.Is(err, gqlerr.KindConsistency))
}

func TestAssemble_UnknownLabelIsConsistencyError(t *testing.T) {
	pool := graphtest.NewFakePool().
		OnRecords("MATCH (n:`Language`)", graphtest.Node{ID: "l1", Labels: []string{"Language"}, Props: map[string]any{"name": "English"}}.Record()).
		OnRecords("HAS_LANGUAGE", graphtest.Node{Parent: "l1", ID: "x1", Labels: []string{"Robot"}}.Record())

	_, err := run(t, pool, `{ languages { people { name } } }`)
	require.Error(t, err)
	assert.True(t, gqlerr.Is(err, gqlerr.KindConsistency))
}

func TestAssemble_EmptyRootListIsNotNull(t *testing.T) {
	pool := graphtest.NewFakePool().OnRecords("MATCH (n:`Game`)")

	data, err := run(t, pool, `{ games { name } }`)
	require.NoError(t, err)
	assert.Equal(t, `{"games":[]}`, render(t, data))
}

func TestOrderedMap(t *testing.T) {
	m := NewOrderedMap()
	m.Set("b", 1)
	m.Set("a", []any{NewOrderedMap()})
	m.Set("b", 2)

	assert.Equal(t, []string{"b", "a"}, m.Keys())
	assert.Equal(t, 2, m.Len())
	v, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":[{}]}`, string(b))
	assert.Equal(t, map[string]any{"b": 2, "a": []any{map[string]any{}}}, m.Plain())
}
