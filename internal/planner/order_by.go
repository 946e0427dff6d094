package planner

import (
	"strings"

	"neo4j-graphql/internal/gqlerr"
)

// SortField orders results by a stored property.
type SortField struct {
	Property   string
	Descending bool
}

// parseSort reads options.sort: a list of single-entry objects {property: ASC|DESC}.
// List order is the sort precedence.
func (p *planner) parseSort(typeName string, raw any) ([]SortField, error) {
	items, ok := raw.([]any)
	if !ok {
		if single, isMap := raw.(map[string]any); isMap {
			items = []any{single}
		} else {
			return nil, gqlerr.New(gqlerr.KindArgument, "sort must be a list of {field: ASC|DESC} objects")
		}
	}
	fields := make([]SortField, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok || len(entry) != 1 {
			return nil, gqlerr.New(gqlerr.KindArgument, "each sort entry must contain a single field")
		}
		for property, dirValue := range entry {
			direction, ok := dirValue.(string)
			if !ok {
				return nil, gqlerr.New(gqlerr.KindArgument, "sort direction must be ASC or DESC")
			}
			direction = strings.ToUpper(direction)
			if direction != "ASC" && direction != "DESC" {
				return nil, gqlerr.New(gqlerr.KindArgument, "sort direction must be ASC or DESC")
			}
			field, ok := p.model.FieldOf(typeName, property)
			if !ok || field.IsEntity() || field.Resolved() || field.IsList() {
				return nil, gqlerr.New(gqlerr.KindArgument, "cannot sort %q by %q", typeName, property)
			}
			fields = append(fields, SortField{Property: property, Descending: direction == "DESC"})
		}
	}
	return fields, nil
}
