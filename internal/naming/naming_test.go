package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootListName(t *testing.T) {
	tests := []struct {
		typeName string
		expected string
	}{
		{"Person", "people"},
		{"Language", "languages"},
		{"Game", "games"},
		{"Team", "teams"},
		{"Stream", "streams"},
		{"User", "users"},
		{"URL", "urls"},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			assert.Equal(t, tt.expected, Default().RootListName(tt.typeName))
		})
	}
}

func TestRootListName_Overrides(t *testing.T) {
	n := New(Config{PluralOverrides: map[string]string{"Person": "Persons"}}, nil)
	assert.Equal(t, "persons", n.RootListName("Person"))

	n = New(Config{PluralOverrides: map[string]string{"person": "Folk"}}, nil)
	assert.Equal(t, "folk", n.RootListName("Person"))
}

func TestRootListName_CollisionWithDeclaredField(t *testing.T) {
	n := Default()
	n.Reserve("languages")
	assert.Equal(t, "languages2", n.RootListName("Language"))
}

func TestReservedNames(t *testing.T) {
	assert.True(t, IsReservedTypeName("Query"))
	assert.True(t, IsReservedTypeName("__Type"))
	assert.True(t, IsReservedTypeName("DateTime"))
	assert.False(t, IsReservedTypeName("Person"))
	assert.True(t, IsReservedFieldName("__typename"))
	assert.False(t, IsReservedFieldName("name"))
}

func TestRootListName_SuffixSkipsTakenNames(t *testing.T) {
	n := Default()
	n.Reserve("games")
	n.Reserve("games2")
	assert.Equal(t, "games3", n.RootListName("Game"))
	assert.Equal(t, "games4", n.RootListName("game"))
}

func TestLowerFirst(t *testing.T) {
	for in, want := range map[string]string{
		"":           "",
		"people":     "people",
		"Person":     "person",
		"URL":        "url",
		"HTTPServer": "httpServer",
		"ID2":        "id2",
		"Ärzte":      "ärzte",
	} {
		assert.Equal(t, want, lowerFirst(in), in)
	}
}
