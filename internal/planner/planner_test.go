package planner

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/catalog"
	"neo4j-graphql/internal/directive"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
)

func testModel(t *testing.T) *schema.Model {
	t.Helper()
	b := catalog.Builder(naming.DefaultConfig(), nil)
	b.Register(schema.EntityType{
		Name: "Match",
		Fields: []*schema.Field{
			{Name: "name", Kind: schema.KindScalar, Type: schema.String, NonNull: true},
			{
				Name: "topPlayers", Kind: schema.KindEntityList, Type: "User", NonNull: true, ElemNonNull: true,
				Args: []schema.Argument{{Name: "limit", Type: schema.Int, Default: 3}},
				Cypher: &directive.Cypher{
					Statement: "MATCH (this)<-[:PLAYED_IN]-(u:User) RETURN u ORDER BY u.name LIMIT $limit",
					Params:    []string{"limit"},
				},
			},
			{
				Name: "playerCount", Kind: schema.KindScalar, Type: schema.Int,
				Cypher: &directive.Cypher{Statement: "MATCH (this)<-[:PLAYED_IN]-(u) RETURN count(u) AS total"},
			},
			{
				Name: "summary", Kind: schema.KindScalar, Type: schema.String,
				Cypher: &directive.Cypher{Statement: "MATCH (this)<-[:PLAYED_IN]-(u) RETURN this.name + ': ' + toString(count(u))"},
			},
		},
	})
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func mustParse(t *testing.T, query string, vars map[string]any) []*selection.Node {
	t.Helper()
	nodes, err := selection.Parse(query, "", vars)
	require.NoError(t, err)
	return nodes
}

func describe(p *Plan) []string {
	out := make([]string, 0, len(p.Fragments))
	for _, f := range p.Fragments {
		limit := "none"
		if f.Limit != nil {
			limit = fmt.Sprint(*f.Limit)
		}
		out = append(out, fmt.Sprintf("%d %s %s.%s parent=%d/%s labels=%v props=%v limit=%s",
			f.ID, f.Kind, f.Owner, f.Field.Name, f.ParentID, f.ParentType, f.Labels, f.Properties, limit))
	}
	return out
}

const nestedQuery = `{
	languages(options: {limit: 5}) {
		name
		people {
			__typename
			name
			... on Stream { url followers }
			... on User { teams { name } }
			games { name }
		}
	}
}`

func TestPlanQuery_NestedSelection(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, nestedQuery, nil))
	require.NoError(t, err)

	want := []string{
		"0 root_list Query.languages parent=-1/ labels=[Language] props=[name] limit=5",
		"1 traversal Language.people parent=0/Language labels=[User Stream] props=[name url followers] limit=none",
		"2 traversal User.teams parent=1/User labels=[Team] props=[name] limit=none",
		"3 traversal Person.games parent=1/Person labels=[Game] props=[name] limit=none",
	}
	if diff := cmp.Diff(want, describe(plan)); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	levels := plan.Levels()
	require.Len(t, levels, 3)
	assert.Len(t, levels[0], 1)
	assert.Len(t, levels[1], 1)
	assert.Len(t, levels[2], 2, "sibling traversals are independent")
	assert.Equal(t, []*Fragment{plan.Fragments[2], plan.Fragments[3]}, plan.Children(1))
	assert.Equal(t, PlanCost{Depth: 3, Fragments: 4}, plan.Cost)

	rel := plan.Fragments[1].Relationship
	require.NotNil(t, rel)
	assert.Equal(t, directive.In, rel.Direction)
}

func TestPlanQuery_Deterministic(t *testing.T) {
	m := testModel(t)
	query := `{
		people(where: {name_IN: ["a", "b"], OR: [{name_STARTS_WITH: "x"}, {name: "y"}]}, options: {sort: [{name: DESC}], offset: 2}) {
			name languages { name } teams { id createdAt }
		}
		playersNamesByLanguage(language: "English")
	}`
	first, err := PlanQuery(m, mustParse(t, query, nil))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := PlanQuery(m, mustParse(t, query, nil))
		require.NoError(t, err)
		if diff := cmp.Diff(describe(first), describe(again)); diff != "" {
			t.Fatalf("plan changed between runs:\n%s", diff)
		}
		if diff := cmp.Diff(first.Fragments[0].Where, again.Fragments[0].Where); diff != "" {
			t.Fatalf("filter changed between runs:\n%s", diff)
		}
	}
}

func TestPlanQuery_RootCypherBindsDeclaredParams(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, `{ playersNamesByLanguage(language: "English", limit: 2) }`, nil))
	require.NoError(t, err)
	require.Len(t, plan.Fragments, 1)

	f := plan.Fragments[0]
	assert.Equal(t, RootCypher, f.Kind)
	assert.Equal(t, map[string]any{"language": "English", "limit": int64(2)}, f.Args)
	require.NotNil(t, f.PostLimit)
	assert.Equal(t, 2, *f.PostLimit)
	assert.Nil(t, f.Labels)

	plan, err = PlanQuery(m, mustParse(t, `{ playersNamesByLanguage(language: "English") }`, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(10), plan.Fragments[0].Args["limit"], "declared default applies")
}

func TestPlanQuery_NestedCypherBatching(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, `{ matches { name topPlayers(limit: 2) { name } playerCount summary } }`, nil))
	require.NoError(t, err)
	require.Len(t, plan.Fragments, 4)

	top := plan.Fragments[1]
	assert.Equal(t, NestedCypher, top.Kind)
	assert.Equal(t, "u", top.ResultColumn)
	assert.False(t, top.PerParent)
	assert.Equal(t, []string{"name"}, top.Properties)
	assert.Equal(t, 2, *top.PostLimit)

	count := plan.Fragments[2]
	assert.Equal(t, "total", count.ResultColumn)
	assert.False(t, count.PerParent)

	summary := plan.Fragments[3]
	assert.True(t, summary.PerParent, "expression without alias cannot be batched")
	assert.Empty(t, summary.ResultColumn)
}

func TestPlanQuery_ResolvesDirectivesThroughTable(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, `{
		playersNamesByLanguage(language: "English")
		matches { topPlayers { teams { name } } }
	}`, nil))
	require.NoError(t, err)
	require.Len(t, plan.Fragments, 4)
	dirs := m.Directives()

	root := plan.Fragments[0]
	want, ok := dirs.Cypher(schema.QueryType, "playersNamesByLanguage")
	require.True(t, ok)
	require.NotNil(t, root.Cypher)
	assert.Equal(t, want, *root.Cypher)
	assert.NotSame(t, root.Field.Cypher, root.Cypher)

	top := plan.Fragments[2]
	want, ok = dirs.Cypher("Match", "topPlayers")
	require.True(t, ok)
	assert.Equal(t, want, *top.Cypher)
	assert.NotSame(t, top.Field.Cypher, top.Cypher)

	teams := plan.Fragments[3]
	rel, ok := dirs.Relationship("User", "teams")
	require.True(t, ok)
	require.NotNil(t, teams.Relationship)
	assert.Equal(t, rel, *teams.Relationship)
	assert.NotSame(t, teams.Field.Relationship, teams.Relationship)
}

func TestPlanQuery_UnreachableConditionsAreOmitted(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, `{ languages { name ... on Team { id people { name } } } }`, nil))
	require.NoError(t, err)
	require.Len(t, plan.Fragments, 1)
	assert.Equal(t, []string{"name"}, plan.Fragments[0].Properties)
}

func TestPlanQuery_MergesConditionedSubSelections(t *testing.T) {
	m := testModel(t)
	nodes := mustParse(t, `{ languages { people { games { name } ... on Stream { games { people { name } } } } } }`, nil)
	plan, err := PlanQuery(m, nodes)
	require.NoError(t, err)

	want := []string{
		"0 root_list Query.languages parent=-1/ labels=[Language] props=[] limit=100",
		"1 traversal Language.people parent=0/Language labels=[User Stream] props=[] limit=none",
		"2 traversal Stream.games parent=1/Stream labels=[Game] props=[name] limit=none",
		"3 traversal Game.people parent=2/Game labels=[User Stream] props=[name] limit=none",
		"4 traversal Person.games parent=1/Person labels=[Game] props=[name] limit=none",
	}
	if diff := cmp.Diff(want, describe(plan)); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	people := nodes[0].Children[0]
	require.Len(t, people.Children, 2)
	assert.Equal(t, "...on Stream{games{name people{name}}}", people.Children[0].String())
	assert.Equal(t, "games{name}", people.Children[1].String())

	again, err := PlanQuery(m, nodes)
	require.NoError(t, err)
	assert.Equal(t, want, describe(again))
	assert.Len(t, people.Children, 2)
}

func TestPlanQuery_Filters(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, `{
		teams(where: {id_GTE: 3, id_LT: 10, AND: [{name_CONTAINS: "x"}]}) { name }
	}`, nil))
	require.NoError(t, err)

	want := &Filter{
		Conditions: []Condition{
			{Property: "id", Op: OpGTE, Value: int64(3)},
			{Property: "id", Op: OpLT, Value: int64(10)},
		},
		And: []*Filter{{Conditions: []Condition{{Property: "name", Op: OpContains, Value: "x"}}}},
	}
	if diff := cmp.Diff(want, plan.Fragments[0].Where); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanQuery_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  []PlanOption
		msg   string
	}{
		{"unknown root field", `{ planets { name } }`, nil, `Cannot query field "planets"`},
		{"unknown nested field", `{ languages { nope } }`, nil, `Cannot query field "nope" on type "Language"`},
		{"type specific field without condition", `{ people { url } }`, nil, `Cannot query field "url" on type "Person"`},
		{"unknown argument", `{ playersNamesByLanguage(language: "x", extra: 1) }`, nil, `Unknown argument "extra"`},
		{"missing required argument", `{ playersNamesByLanguage }`, nil, `argument "language"`},
		{"wrong argument type", `{ playersNamesByLanguage(language: 3) }`, nil, "expects a value of type String"},
		{"negative limit", `{ languages(options: {limit: -1}) { name } }`, nil, "non-negative"},
		{"limit above max", `{ languages(options: {limit: 500}) { name } }`, []PlanOption{WithMaxListLimit(100)}, "must not exceed 100"},
		{"unknown filter field", `{ languages(where: {planet: "x"}) { name } }`, nil, "unknown filter field"},
		{"IN without list", `{ languages(where: {name_IN: "x"}) { name } }`, nil, "requires a list"},
		{"bad sort", `{ languages(options: {sort: [{people: ASC}]}) { name } }`, nil, "cannot sort"},
		{"bad sort direction", `{ languages(options: {sort: [{name: UP}]}) { name } }`, nil, "ASC or DESC"},
		{"unknown option", `{ languages(options: {first: 1}) { name } }`, nil, `unknown option "first"`},
		{"missing subselection", `{ languages }`, nil, "must have a selection"},
		{"scalar with subselection", `{ languages { name { x } } }`, nil, "must not have a selection"},
		{"unknown condition type", `{ people { ... on Robot { name } } }`, nil, `Unknown type "Robot"`},
		{"too deep", `{ languages { people { games { name } } } }`, []PlanOption{WithLimits(PlanLimits{MaxDepth: 2})}, "maximum depth"},
		{"too many fragments", `{ languages { people { games { name } } } }`, []PlanOption{WithLimits(PlanLimits{MaxFragments: 2})}, "maximum fragment count"},
	}

	m := testModel(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanQuery(m, mustParse(t, tt.query, nil), tt.opts...)
			require.Error(t, err)
			assert.True(t, gqlerr.Is(err, gqlerr.KindArgument), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPlanQuery_InvalidOptionReportedInKeyOrder(t *testing.T) {
	m := testModel(t)
	query := `{ languages(options: {sort: [{people: ASC}], offset: -1, limit: -2, first: 1, after: "x"}) { name } }`
	for i := 0; i < 20; i++ {
		_, err := PlanQuery(m, mustParse(t, query, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown option "after"`)
	}

	query = `{ languages(options: {sort: [{people: ASC}], offset: -1, limit: -2}) { name } }`
	for i := 0; i < 20; i++ {
		_, err := PlanQuery(m, mustParse(t, query, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "limit must be non-negative")
	}

	query = `{ playersNamesByLanguage(language: "x", zeta: 1, beta: 2) }`
	for i := 0; i < 20; i++ {
		_, err := PlanQuery(m, mustParse(t, query, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `Unknown argument "beta"`)
	}
}

func TestPlanQuery_DefaultLimitOnlyOnRootLists(t *testing.T) {
	m := testModel(t)
	plan, err := PlanQuery(m, mustParse(t, `{ games { people { name } } }`, nil), WithDefaultListLimit(25), WithBatchMaxParents(50))
	require.NoError(t, err)
	require.NotNil(t, plan.Fragments[0].Limit)
	assert.Equal(t, 25, *plan.Fragments[0].Limit)
	assert.Nil(t, plan.Fragments[1].Limit)
	assert.Equal(t, 50, plan.Fragments[1].Chunk)
}

func TestPlanQuery_FragmentForNode(t *testing.T) {
	m := testModel(t)
	nodes := mustParse(t, `{ __typename teams { name people { name } } }`, nil)
	plan, err := PlanQuery(m, nodes)
	require.NoError(t, err)

	_, ok := plan.FragmentFor(nodes[0])
	assert.False(t, ok, "__typename needs no fragment")
	f, ok := plan.FragmentFor(nodes[1])
	require.True(t, ok)
	assert.Equal(t, 0, f.ID)
	f, ok = plan.FragmentFor(nodes[1].Children[1])
	require.True(t, ok)
	assert.Equal(t, Traversal, f.Kind)
}

func TestPlanQuery_NullFilterValues(t *testing.T) {
	m := testModel(t)
	nodes := mustParse(t, `query($n: String) { teams(where: {name: $n, id_NOT: $n}) { name } }`, map[string]any{"n": nil})
	plan, err := PlanQuery(m, nodes)
	require.NoError(t, err)
	assert.Equal(t, []Condition{
		{Property: "id", Op: OpIsNotNull},
		{Property: "name", Op: OpIsNull},
	}, plan.Fragments[0].Where.Conditions)
}
