package cypher

import (
	"fmt"
	"slices"
	"strings"

	"neo4j-graphql/internal/directive"
	"neo4j-graphql/internal/planner"
)

// QuoteIdentifier backtick-quotes a label, relationship type, or property name.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func labelPredicate(variable string, labels []string) string {
	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = variable + ":" + QuoteIdentifier(label)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func edgePattern(rel *directive.Relationship) string {
	edge := "[:" + QuoteIdentifier(rel.Type) + "]"
	switch rel.Direction {
	case directive.In:
		return "<-" + edge + "-"
	case directive.Both:
		return "-" + edge + "-"
	default:
		return "-" + edge + "->"
	}
}

func projection(variable string, properties []string) string {
	if len(properties) == 0 {
		return "{}"
	}
	parts := make([]string, len(properties))
	for i, p := range properties {
		parts[i] = "." + QuoteIdentifier(p)
	}
	return variable + " {" + strings.Join(parts, ", ") + "}"
}

func renderOrder(variable string, fields []planner.SortField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s.%s %s", variable, QuoteIdentifier(f.Property), dir))
	}
	return strings.Join(parts, ", ")
}

func renderFilter(s *statement, variable string, f *planner.Filter) string {
	if matchesAll(f) {
		return ""
	}
	var parts []string
	for _, c := range f.Conditions {
		parts = append(parts, renderCondition(s, variable, c))
	}
	for _, sub := range f.And {
		if p := renderFilter(s, variable, sub); p != "" {
			parts = append(parts, p)
		}
	}
	if len(f.Or) > 0 && !slices.ContainsFunc(f.Or, matchesAll) {
		alts := make([]string, 0, len(f.Or))
		for _, sub := range f.Or {
			alts = append(alts, renderFilter(s, variable, sub))
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// matchesAll reports whether f admits every node. An OR group with an alternative that
// admits everything constrains nothing.
func matchesAll(f *planner.Filter) bool {
	if f.Empty() {
		return true
	}
	if len(f.Conditions) > 0 || !allMatchAll(f.And) {
		return false
	}
	return len(f.Or) == 0 || slices.ContainsFunc(f.Or, matchesAll)
}

func allMatchAll(filters []*planner.Filter) bool {
	for _, f := range filters {
		if !matchesAll(f) {
			return false
		}
	}
	return true
}

func renderCondition(s *statement, variable string, c planner.Condition) string {
	prop := variable + "." + QuoteIdentifier(c.Property)
	switch c.Op {
	case planner.OpIsNull, planner.OpIsNotNull:
		return fmt.Sprintf("%s %s", prop, c.Op)
	case planner.OpNotIn:
		return fmt.Sprintf("NOT %s IN %s", prop, s.bind(c.Value))
	}
	return fmt.Sprintf("%s %s %s", prop, c.Op, s.bind(c.Value))
}
