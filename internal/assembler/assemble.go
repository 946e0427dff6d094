// Package assembler merges executed fragment values into the response tree, following the
// selection's response keys and order.
package assembler

import (
	"neo4j-graphql/internal/execution"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/planner"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
)

// Assembler builds response data from execution results.
type Assembler struct {
	model *schema.Model
}

// New returns an assembler for results of plans built against model.
func New(model *schema.Model) *Assembler {
	return &Assembler{model: model}
}

// Assemble builds the data object for res. Lists are never null; a null reaching a non-null
// position is a ConsistencyError.
func (a *Assembler) Assemble(res *execution.Result) (*OrderedMap, error) {
	data := NewOrderedMap()
	for _, node := range res.Plan.Roots {
		if node.TypeCondition != "" && node.TypeCondition != schema.QueryType {
			continue
		}
		key := node.ResponseKey()
		if data.Has(key) {
			continue
		}
		if node.Field == schema.TypenameField {
			data.Set(key, schema.QueryType)
			continue
		}
		frag, ok := res.Plan.FragmentFor(node)
		if !ok {
			return nil, gqlerr.New(gqlerr.KindTranslation, "root field %q was not planned", node.Field)
		}
		v, err := a.fieldValue(res, frag, res.Items(frag.ID, ""))
		if err != nil {
			return nil, err
		}
		data.Set(key, v)
	}
	return data, nil
}

func (a *Assembler) fieldValue(res *execution.Result, frag *planner.Fragment, items []execution.Item) (any, error) {
	field := frag.Field
	if field.IsList() {
		list := make([]any, 0, len(items))
		for _, it := range items {
			v, err := a.elementValue(res, frag, it)
			if err != nil {
				return nil, err
			}
			if v == nil && field.ElemNonNull {
				return nil, gqlerr.New(gqlerr.KindConsistency, "null element in non-null list %s.%s", frag.Owner, field.Name)
			}
			list = append(list, v)
		}
		return list, nil
	}

	var v any
	if len(items) > 0 {
		var err error
		if v, err = a.elementValue(res, frag, items[0]); err != nil {
			return nil, err
		}
	}
	if v == nil && field.NonNull {
		return nil, gqlerr.New(gqlerr.KindConsistency, "null value for non-null field %s.%s", frag.Owner, field.Name)
	}
	return v, nil
}

func (a *Assembler) elementValue(res *execution.Result, frag *planner.Fragment, it execution.Item) (any, error) {
	if !frag.Field.IsEntity() {
		return it.Value, nil
	}
	if !it.IsNode() {
		return nil, nil
	}
	return a.object(res, frag, it)
}

// object renders one node using the node's concrete type to filter conditioned selections.
func (a *Assembler) object(res *execution.Result, frag *planner.Fragment, it execution.Item) (any, error) {
	concrete, ok := a.model.ResolveConcrete(frag.Target, it.Labels)
	if !ok {
		return nil, gqlerr.New(gqlerr.KindConsistency, "node %s carries no label of type %s", it.ID, frag.Target)
	}

	obj := NewOrderedMap()
	for _, child := range frag.Node.Children {
		if !applies(a.model, concrete.Name, child) {
			continue
		}
		key := child.ResponseKey()
		if obj.Has(key) {
			continue
		}
		if child.Field == schema.TypenameField {
			obj.Set(key, concrete.Name)
			continue
		}
		field, ok := concrete.Field(child.Field)
		if !ok {
			return nil, gqlerr.New(gqlerr.KindTranslation, "type %s has no field %q", concrete.Name, child.Field)
		}

		if !field.Resolved() {
			v := it.Props[field.Name]
			if v == nil && field.NonNull {
				return nil, gqlerr.New(gqlerr.KindConsistency, "null value for non-null field %s.%s", concrete.Name, field.Name)
			}
			obj.Set(key, v)
			continue
		}

		childFrag, ok := res.Plan.FragmentFor(child)
		if !ok {
			// Selections no value of the declared type can satisfy are never planned.
			continue
		}
		v, err := a.fieldValue(res, childFrag, res.Items(childFrag.ID, it.ID))
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
	}
	return obj, nil
}

func applies(model *schema.Model, concrete string, node *selection.Node) bool {
	return node.TypeCondition == "" || model.Conforms(concrete, node.TypeCondition)
}
