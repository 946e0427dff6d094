// Package catalog declares the built-in gaming community schema served by the engine:
// players (users and streamers) and the games, teams and languages they are linked to.
package catalog

import (
	"log/slog"

	"neo4j-graphql/internal/directive"
	"neo4j-graphql/internal/naming"
	"neo4j-graphql/internal/schema"
)

// PlayersNamesByLanguage returns up to $limit distinct names of players of any game who
// speak $language.
const PlayersNamesByLanguage = `
    MATCH ()<-[:PLAYS]-(p:User:Stream)-[]->(l:Language)
    WHERE l.name = $language
    RETURN collect(DISTINCT p.name)[0..$limit]
`

func out(edge string) *directive.Relationship {
	return &directive.Relationship{Type: edge, Direction: directive.Out}
}

func in(edge string) *directive.Relationship {
	return &directive.Relationship{Type: edge, Direction: directive.In}
}

func list(name, typeName string, r *directive.Relationship) *schema.Field {
	return &schema.Field{Name: name, Kind: schema.KindEntityList, Type: typeName, NonNull: true, ElemNonNull: true, Relationship: r}
}

func scalar(name, typeName string) *schema.Field {
	return &schema.Field{Name: name, Kind: schema.KindScalar, Type: typeName, NonNull: true}
}

// personFields are redeclared by every Person implementor; the relationships are inherited.
func personFields() []*schema.Field {
	return []*schema.Field{
		scalar("name", schema.String),
		list("games", "Game", nil),
		list("teams", "Team", nil),
		list("languages", "Language", nil),
	}
}

// Builder returns a schema builder loaded with the catalog declarations.
func Builder(namingCfg naming.Config, logger *slog.Logger) *schema.Builder {
	b := schema.NewBuilder(schema.WithNamer(naming.New(namingCfg, logger)))

	b.RegisterInterface(schema.Interface{
		Name: "Person",
		Fields: []*schema.Field{
			scalar("name", schema.String),
			list("games", "Game", out("PLAYS")),
			list("teams", "Team", out("HAS_TEAM")),
			list("languages", "Language", out("HAS_LANGUAGE")),
		},
	})

	b.Register(schema.EntityType{
		Name: "Language",
		Fields: []*schema.Field{
			scalar("name", schema.String),
			list("people", "Person", in("HAS_LANGUAGE")),
		},
	})
	b.Register(schema.EntityType{
		Name: "Team",
		Fields: []*schema.Field{
			scalar("createdAt", schema.DateTime),
			scalar("id", schema.Int),
			scalar("name", schema.String),
			list("people", "Person", in("HAS_TEAM")),
		},
	})
	b.Register(schema.EntityType{
		Name: "Game",
		Fields: []*schema.Field{
			scalar("name", schema.String),
			list("people", "Person", in("PLAYS")),
		},
	})
	b.Register(schema.EntityType{
		Name:       "User",
		Interfaces: []string{"Person"},
		Fields:     personFields(),
	})
	b.Register(schema.EntityType{
		Name:       "Stream",
		Interfaces: []string{"Person"},
		Fields: append([]*schema.Field{
			scalar("createdAt", schema.DateTime),
			scalar("description", schema.String),
			scalar("followers", schema.Int),
			scalar("id", schema.Int),
			scalar("total_view_count", schema.Int),
			scalar("url", schema.String),
		}, personFields()...),
	})

	b.Query(schema.Field{
		Name:        "playersNamesByLanguage",
		Kind:        schema.KindScalarList,
		Type:        schema.String,
		NonNull:     true,
		ElemNonNull: true,
		Args: []schema.Argument{
			{Name: "language", Type: schema.String, NonNull: true},
			{Name: "limit", Type: schema.Int, Default: 10},
		},
		Cypher: &directive.Cypher{
			Statement: PlayersNamesByLanguage,
			Params:    []string{"language", "limit"},
		},
	})
	return b
}

// Build returns the validated catalog model.
func Build(namingCfg naming.Config, logger *slog.Logger) (*schema.Model, error) {
	return Builder(namingCfg, logger).Build()
}
