// Package cypher renders planner fragments into Cypher text plus a parameter map.
// Client values are only ever bound as parameters; identifiers come from the schema and are
// backtick-quoted.
package cypher

import (
	"fmt"
	"strings"

	"neo4j-graphql/internal/directive"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/planner"
	"neo4j-graphql/internal/schema"
)

// Result columns of rendered statements.
const (
	ColParent = "__parent"
	ColID     = "__id"
	ColLabels = "__labels"
	ColProps  = "__props"
	ColValue  = "__value"
)

// Reserved parameter names bound by the translator.
const (
	ParamParents = "__parents"
	ParamThis    = "__this"
)

// Query is a rendered statement.
type Query struct {
	Text   string
	Params map[string]any
}

// Translator renders fragments against a schema model.
type Translator struct {
	model *schema.Model
}

// New returns a translator for model.
func New(model *schema.Model) *Translator {
	return &Translator{model: model}
}

// Translate renders f. Dependent fragments are rendered for the given parent identities;
// a per-parent fragment takes exactly one.
func (t *Translator) Translate(f *planner.Fragment, parents []string) (Query, error) {
	if err := t.check(f); err != nil {
		return Query{}, err
	}
	switch f.Kind {
	case planner.RootList:
		return t.rootList(f), nil
	case planner.RootCypher:
		return rootCypher(f), nil
	case planner.Traversal:
		return t.traversal(f, parents), nil
	case planner.NestedCypher:
		if f.PerParent {
			if len(parents) != 1 {
				return Query{}, gqlerr.New(gqlerr.KindTranslation, "fragment %d runs per parent but got %d parents", f.ID, len(parents))
			}
			return perParentCypher(f, parents[0]), nil
		}
		return batchedCypher(f, parents), nil
	}
	return Query{}, gqlerr.New(gqlerr.KindTranslation, "fragment %d has unknown kind %d", f.ID, f.Kind)
}

// check rejects fragments whose pattern is not backed by the schema.
func (t *Translator) check(f *planner.Fragment) error {
	for _, label := range f.Labels {
		if _, ok := t.model.EntityType(label); !ok {
			return gqlerr.New(gqlerr.KindTranslation, "label %q is not a schema type", label)
		}
	}
	if rel := f.Relationship; rel != nil {
		if !t.model.HasRelationshipType(rel.Type) {
			return gqlerr.New(gqlerr.KindTranslation, "relationship %q is not declared in the schema", rel.Type)
		}
		if !rel.Direction.Valid() {
			return gqlerr.New(gqlerr.KindTranslation, "relationship %q has invalid direction %q", rel.Type, rel.Direction)
		}
	}
	if f.Kind == planner.Traversal && f.Relationship == nil {
		return gqlerr.New(gqlerr.KindTranslation, "traversal fragment %d has no relationship", f.ID)
	}
	if c := f.Cypher; c != nil {
		if missing := c.Undeclared(f.Kind == planner.NestedCypher); len(missing) > 0 {
			return gqlerr.New(gqlerr.KindTranslation, "template of %s.%s references undeclared parameters %v", f.Owner, f.Field.Name, missing)
		}
		for name := range f.Args {
			if !c.Declares(name) {
				return gqlerr.New(gqlerr.KindTranslation, "argument %q is not a declared template parameter", name)
			}
		}
	} else if f.Kind == planner.RootCypher || f.Kind == planner.NestedCypher {
		return gqlerr.New(gqlerr.KindTranslation, "cypher fragment %d has no template", f.ID)
	}
	for _, prop := range f.Properties {
		if prop == "" {
			return gqlerr.New(gqlerr.KindTranslation, "fragment %d projects an empty property name", f.ID)
		}
	}
	return nil
}

// statement accumulates clauses and numbered parameters.
type statement struct {
	lines  []string
	params map[string]any
	next   int
}

func newStatement() *statement {
	return &statement{params: make(map[string]any)}
}

func (s *statement) bind(v any) string {
	name := fmt.Sprintf("p%d", s.next)
	s.next++
	s.params[name] = v
	return "$" + name
}

func (s *statement) add(format string, args ...any) {
	s.lines = append(s.lines, fmt.Sprintf(format, args...))
}

func (s *statement) query() Query {
	return Query{Text: strings.Join(s.lines, "\n"), Params: s.params}
}

func (t *Translator) rootList(f *planner.Fragment) Query {
	s := newStatement()
	labelPred := ""
	if len(f.Labels) == 1 {
		s.add("MATCH (n:%s)", QuoteIdentifier(f.Labels[0]))
	} else {
		s.add("MATCH (n)")
		labelPred = labelPredicate("n", f.Labels)
	}
	s.where(labelPred, renderFilter(s, "n", f.Where))
	s.add("WITH n")
	if order := renderOrder("n", f.Sort); order != "" {
		s.add("ORDER BY %s", order)
	}
	if f.Offset > 0 {
		s.add("SKIP %s", s.bind(int64(f.Offset)))
	}
	if f.Limit != nil {
		s.add("LIMIT %s", s.bind(int64(*f.Limit)))
	}
	s.add("RETURN elementId(n) AS %s, labels(n) AS %s, %s AS %s", ColID, ColLabels, projection("n", f.Properties), ColProps)
	return s.query()
}

func rootCypher(f *planner.Fragment) Query {
	return Query{Text: strings.TrimSpace(f.Cypher.Statement), Params: copyParams(f.Args)}
}

func (t *Translator) traversal(f *planner.Fragment, parents []string) Query {
	s := newStatement()
	s.params[ParamParents] = parents
	s.add("UNWIND $%s AS %s", ParamParents, ColParent)
	s.add("MATCH (p) WHERE elementId(p) = %s", ColParent)

	labelPred := ""
	if len(f.Labels) == 1 {
		s.add("MATCH (p)%s(n:%s)", edgePattern(f.Relationship), QuoteIdentifier(f.Labels[0]))
	} else {
		s.add("MATCH (p)%s(n)", edgePattern(f.Relationship))
		labelPred = labelPredicate("n", f.Labels)
	}
	s.where(labelPred, renderFilter(s, "n", f.Where))
	s.add("WITH %s, n", ColParent)
	if order := renderOrder("n", f.Sort); order != "" {
		s.add("ORDER BY %s", order)
	}
	s.add("WITH %s, collect(DISTINCT n) AS __nodes", ColParent)
	switch {
	case f.Limit != nil:
		start := s.bind(int64(f.Offset))
		end := s.bind(int64(f.Offset + *f.Limit))
		s.add("UNWIND __nodes[%s..%s] AS n", start, end)
	case f.Offset > 0:
		s.add("UNWIND __nodes[%s..] AS n", s.bind(int64(f.Offset)))
	default:
		s.add("UNWIND __nodes AS n")
	}
	s.add("RETURN %s, elementId(n) AS %s, labels(n) AS %s, %s AS %s", ColParent, ColID, ColLabels, projection("n", f.Properties), ColProps)
	return s.query()
}

func batchedCypher(f *planner.Fragment, parents []string) Query {
	params := copyParams(f.Args)
	params[ParamParents] = parents
	lines := []string{
		fmt.Sprintf("UNWIND $%s AS %s", ParamParents, ColParent),
		fmt.Sprintf("MATCH (this) WHERE elementId(this) = %s", ColParent),
		"CALL {",
		"WITH this",
		strings.TrimSpace(f.Cypher.Statement),
		"}",
		fmt.Sprintf("RETURN %s, %s AS %s", ColParent, QuoteIdentifier(f.ResultColumn), ColValue),
	}
	return Query{Text: strings.Join(lines, "\n"), Params: params}
}

func perParentCypher(f *planner.Fragment, parent string) Query {
	params := copyParams(f.Args)
	params[ParamThis] = parent
	params[directive.ThisParam] = parent
	lines := []string{
		fmt.Sprintf("MATCH (this) WHERE elementId(this) = $%s", ParamThis),
		"WITH this",
		strings.TrimSpace(f.Cypher.Statement),
	}
	return Query{Text: strings.Join(lines, "\n"), Params: params}
}

func (s *statement) where(preds ...string) {
	var parts []string
	for _, p := range preds {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		s.add("WHERE %s", strings.Join(parts, " AND "))
	}
}

func copyParams(args map[string]any) map[string]any {
	params := make(map[string]any, len(args)+2)
	for k, v := range args {
		params[k] = v
	}
	return params
}
