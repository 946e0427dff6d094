package planner

import (
	"sort"
	"strings"

	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/schema"
)

// Operator is a property comparison in a where filter.
type Operator string

const (
	OpEq         Operator = "="
	OpNot        Operator = "<>"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT IN"
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS WITH"
	OpEndsWith   Operator = "ENDS WITH"
	OpGT         Operator = ">"
	OpGTE        Operator = ">="
	OpLT         Operator = "<"
	OpLTE        Operator = "<="
	OpIsNull     Operator = "IS NULL"
	OpIsNotNull  Operator = "IS NOT NULL"
)

// Longest suffixes first so _NOT_IN is not read as _IN.
var operatorSuffixes = []struct {
	suffix string
	op     Operator
}{
	{"_STARTS_WITH", OpStartsWith},
	{"_ENDS_WITH", OpEndsWith},
	{"_CONTAINS", OpContains},
	{"_NOT_IN", OpNotIn},
	{"_GTE", OpGTE},
	{"_LTE", OpLTE},
	{"_NOT", OpNot},
	{"_IN", OpIn},
	{"_GT", OpGT},
	{"_LT", OpLT},
}

// Condition compares one stored property with a bound value.
type Condition struct {
	Property string
	Op       Operator
	Value    any
}

// Filter is a conjunction of conditions plus nested AND/OR groups.
type Filter struct {
	Conditions []Condition
	And        []*Filter
	Or         []*Filter
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Conditions) == 0 && len(f.And) == 0 && len(f.Or) == 0)
}

// buildFilter parses a where input against the scalar fields of typeName. Keys are visited in
// sorted order so the rendered predicate is stable.
func (p *planner) buildFilter(typeName string, where map[string]any) (*Filter, error) {
	filter := &Filter{}
	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := where[key]
		switch key {
		case "AND", "OR":
			items, ok := value.([]any)
			if !ok {
				return nil, gqlerr.New(gqlerr.KindArgument, "%s must be a list of filters", key)
			}
			for _, item := range items {
				nested, ok := item.(map[string]any)
				if !ok {
					return nil, gqlerr.New(gqlerr.KindArgument, "%s items must be filter objects", key)
				}
				sub, err := p.buildFilter(typeName, nested)
				if err != nil {
					return nil, err
				}
				if key == "AND" {
					filter.And = append(filter.And, sub)
				} else {
					filter.Or = append(filter.Or, sub)
				}
			}
		default:
			cond, err := p.buildCondition(typeName, key, value)
			if err != nil {
				return nil, err
			}
			filter.Conditions = append(filter.Conditions, cond)
		}
	}
	return filter, nil
}

func (p *planner) buildCondition(typeName, key string, value any) (Condition, error) {
	property, op := key, OpEq
	for _, candidate := range operatorSuffixes {
		if strings.HasSuffix(key, candidate.suffix) && len(key) > len(candidate.suffix) {
			property, op = strings.TrimSuffix(key, candidate.suffix), candidate.op
			break
		}
	}
	field, ok := p.model.FieldOf(typeName, property)
	if !ok || field.IsEntity() || field.Resolved() {
		return Condition{}, gqlerr.New(gqlerr.KindArgument, "unknown filter field %q on type %q", key, typeName)
	}

	switch op {
	case OpEq, OpNot:
		if value == nil {
			if op == OpEq {
				return Condition{Property: property, Op: OpIsNull}, nil
			}
			return Condition{Property: property, Op: OpIsNotNull}, nil
		}
		v, err := coerceScalar(key, field.Type, value)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Property: property, Op: op, Value: v}, nil
	case OpIn, OpNotIn:
		items, ok := value.([]any)
		if !ok {
			return Condition{}, gqlerr.New(gqlerr.KindArgument, "filter %q requires a list", key)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerceScalar(key, field.Type, item)
			if err != nil {
				return Condition{}, err
			}
			out[i] = v
		}
		return Condition{Property: property, Op: op, Value: out}, nil
	case OpContains, OpStartsWith, OpEndsWith:
		s, ok := value.(string)
		if !ok || (field.Type != schema.String && field.Type != schema.ID) {
			return Condition{}, gqlerr.New(gqlerr.KindArgument, "filter %q requires a string field and value", key)
		}
		return Condition{Property: property, Op: op, Value: s}, nil
	default:
		if field.Type == schema.Boolean {
			return Condition{}, gqlerr.New(gqlerr.KindArgument, "filter %q is not supported on Boolean fields", key)
		}
		v, err := coerceScalar(key, field.Type, value)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Property: property, Op: op, Value: v}, nil
	}
}
