package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const playersByLanguage = `
    MATCH ()<-[:PLAYS]-(p:User:Stream)-[]->(l:Language)
    WHERE l.name = $language
    RETURN collect(DISTINCT p.name)[0..$limit]
`

func TestCypher_References(t *testing.T) {
	c := Cypher{Statement: playersByLanguage, Params: []string{"language", "limit"}}
	assert.Equal(t, []string{"language", "limit"}, c.References())
	assert.Empty(t, c.Undeclared(false))
}

func TestCypher_ReferencesSkipsLiterals(t *testing.T) {
	c := Cypher{Statement: "MATCH (n) WHERE n.name = '$notAParam' AND n.`$x` = $real RETURN n"}
	assert.Equal(t, []string{"real"}, c.References())
}

func TestCypher_Undeclared(t *testing.T) {
	c := Cypher{Statement: "MATCH (this)-[:X]->(n) WHERE n.a = $a AND n.b = $b RETURN n", Params: []string{"a"}}
	assert.Equal(t, []string{"b"}, c.Undeclared(true))

	c = Cypher{Statement: "MATCH (n) WHERE elementId(n) = $this RETURN n"}
	assert.Empty(t, c.Undeclared(true))
	assert.Equal(t, []string{"this"}, c.Undeclared(false))
}

func TestCypher_ResultColumn(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		want      string
		ok        bool
	}{
		{"alias", "MATCH (this)-[:PLAYS]->(g) RETURN count(g) AS total", "total", true},
		{"bare variable", "MATCH (this)-[:PLAYS]->(g:Game) RETURN g", "g", true},
		{"distinct with order", "MATCH (this)--(g) RETURN DISTINCT g ORDER BY g.name LIMIT 3", "g", true},
		{"multiple columns", "MATCH (a)--(b) RETURN a.name AS first, b", "first", true},
		{"expression without alias", playersByLanguage, "", false},
		{"map projection", "MATCH (n) RETURN n {.name}", "", false},
		{"no return", "MATCH (n) SET n.x = 1", "", false},
		{"returned keyword inside name", "MATCH (n) WITH n AS returnedValue RETURN returnedValue", "returnedValue", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cypher{Statement: tt.statement}.ResultColumn()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirection(t *testing.T) {
	assert.True(t, Out.Valid())
	assert.False(t, Direction("SIDEWAYS").Valid())
	assert.Equal(t, In, Out.Opposite())
	assert.Equal(t, Out, In.Opposite())
	assert.Equal(t, Both, Both.Opposite())
}

func TestBuilder_TableIsIndependentCopy(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddRelationship("Person", "languages", Relationship{Type: "HAS_LANGUAGE", Direction: Out, Target: "Language"}))
	require.NoError(t, b.AddCypher("Query", "top", Cypher{Statement: "RETURN 1", Params: []string{"x"}}))
	require.Error(t, b.AddCypher("Person", "languages", Cypher{Statement: "RETURN 1"}))

	table := b.Build()
	require.NoError(t, b.AddRelationship("Person", "teams", Relationship{Type: "HAS_TEAM", Direction: Out, Target: "Team"}))

	_, ok := table.Relationship("Person", "teams")
	assert.False(t, ok)
	rel, ok := table.Relationship("Person", "languages")
	require.True(t, ok)
	assert.Equal(t, "HAS_LANGUAGE", rel.Type)
	c, ok := table.Cypher("Query", "top")
	require.True(t, ok)
	assert.True(t, c.Declares("x"))
	assert.Equal(t, 2, table.Len())
}
