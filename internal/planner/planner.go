// Package planner converts a request's selection tree into an ordered list of graph query
// fragments. Each fragment is tagged with the selection node it populates and with the
// fragment it reads parent identities from, so the coordinator can schedule dependents after
// their producers and the assembler can correlate rows back into the requested shape.
package planner

import (
	"fmt"
	"slices"

	"neo4j-graphql/internal/directive"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/selection"
)

// Kind identifies how a fragment is resolved.
type Kind int

const (
	// RootList matches nodes of a type for a generated root list field.
	RootList Kind = iota
	// RootCypher runs the @cypher template of a root field.
	RootCypher
	// Traversal follows a @relationship edge from the parent fragment's nodes.
	Traversal
	// NestedCypher runs an entity field's @cypher template with each parent bound to $this.
	NestedCypher
)

func (k Kind) String() string {
	switch k {
	case RootList:
		return "root_list"
	case RootCypher:
		return "root_cypher"
	case Traversal:
		return "traversal"
	case NestedCypher:
		return "nested_cypher"
	}
	return "unknown"
}

// NoParent is the ParentID of root fragments.
const NoParent = -1

// Fragment is one graph query the coordinator executes.
type Fragment struct {
	ID   int
	Kind Kind
	Node *selection.Node
	// Field is the schema field the node selects; Owner is the type the field was resolved on.
	Field *schema.Field
	Owner string

	ParentID int
	// ParentType restricts the parents fed to this fragment to values of the named type.
	ParentType string

	// Target is the type of the produced values; Labels are the node labels it may carry.
	Target     string
	Labels     []string
	Properties []string

	Relationship *directive.Relationship
	Cypher       *directive.Cypher
	// Args holds the bound template parameters of cypher fragments.
	Args map[string]any

	Where  *Filter
	Sort   []SortField
	Limit  *int
	Offset int

	// ResultColumn names the template column read by batched nested cypher fragments.
	ResultColumn string
	// PerParent marks a nested cypher fragment that cannot be batched and runs once per parent.
	PerParent bool
	// PostLimit truncates each parent's values after execution.
	PostLimit *int
	// Chunk caps the number of parent identities bound into one statement.
	Chunk int
}

// ProducesEntities reports whether the fragment's values are nodes other fragments may traverse from.
func (f *Fragment) ProducesEntities() bool {
	return f.Field.IsEntity()
}

// IsRoot reports whether the fragment runs without parent identities.
func (f *Fragment) IsRoot() bool {
	return f.ParentID == NoParent
}

// Plan is the output of planning one request.
type Plan struct {
	Roots     []*selection.Node
	Fragments []*Fragment
	Cost      PlanCost

	byNode   map[*selection.Node]*Fragment
	children map[int][]*Fragment
}

// FragmentFor returns the fragment that populates a selection node.
func (p *Plan) FragmentFor(n *selection.Node) (*Fragment, bool) {
	f, ok := p.byNode[n]
	return f, ok
}

// Children returns the fragments that read parent identities from fragment id.
func (p *Plan) Children(id int) []*Fragment {
	return p.children[id]
}

// Levels groups fragments by dependency depth. Every fragment in a level depends only on
// fragments of earlier levels; fragments within a level are independent.
func (p *Plan) Levels() [][]*Fragment {
	var levels [][]*Fragment
	depth := make(map[int]int, len(p.Fragments))
	for _, f := range p.Fragments {
		d := 0
		if !f.IsRoot() {
			d = depth[f.ParentID] + 1
		}
		depth[f.ID] = d
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], f)
	}
	return levels
}

type planOptions struct {
	limits          *PlanLimits
	defaultLimit    int
	maxLimit        int
	batchMaxParents int
}

// PlanOption customizes planning behavior.
type PlanOption func(*planOptions)

// WithLimits enforces planner cost limits for a query.
func WithLimits(limits PlanLimits) PlanOption {
	return func(o *planOptions) {
		o.limits = &limits
	}
}

// WithDefaultListLimit sets the limit applied to root lists that do not pass one.
func WithDefaultListLimit(limit int) PlanOption {
	return func(o *planOptions) {
		o.defaultLimit = limit
	}
}

// WithMaxListLimit rejects limits above limit. Zero disables the check.
func WithMaxListLimit(limit int) PlanOption {
	return func(o *planOptions) {
		o.maxLimit = limit
	}
}

// WithBatchMaxParents caps the parent identities bound into one dependent statement.
func WithBatchMaxParents(n int) PlanOption {
	return func(o *planOptions) {
		o.batchMaxParents = n
	}
}

// PlanQuery is the planning entrypoint (selection tree -> fragments). The same model and
// selection always yield the same fragments in the same order.
func PlanQuery(model *schema.Model, roots []*selection.Node, opts ...PlanOption) (*Plan, error) {
	if model == nil {
		return nil, gqlerr.New(gqlerr.KindTranslation, "schema model is required")
	}
	options := &planOptions{defaultLimit: DefaultListLimit, batchMaxParents: DefaultBatchMaxParents}
	for _, opt := range opts {
		opt(options)
	}

	p := &planner{
		model:   model,
		options: options,
		plan: &Plan{
			Roots:    roots,
			byNode:   make(map[*selection.Node]*Fragment),
			children: make(map[int][]*Fragment),
		},
	}
	for _, node := range roots {
		if err := p.planRoot(node); err != nil {
			return nil, err
		}
	}
	if options.limits != nil {
		if err := validateLimits(p.plan.Cost, *options.limits); err != nil {
			return nil, err
		}
	}
	return p.plan, nil
}

type planner struct {
	model   *schema.Model
	options *planOptions
	plan    *Plan
}

func (p *planner) planRoot(node *selection.Node) error {
	if node.Field == schema.TypenameField {
		return nil
	}
	if node.TypeCondition != "" && node.TypeCondition != schema.QueryType {
		return nil
	}
	field, ok := p.model.FieldOf(schema.QueryType, node.Field)
	if !ok {
		return gqlerr.New(gqlerr.KindArgument, "Cannot query field %q on type %q", node.Field, schema.QueryType)
	}

	frag := &Fragment{
		Node:     node,
		Field:    field,
		Owner:    schema.QueryType,
		ParentID: NoParent,
		Target:   field.Type,
	}
	cy, hasCypher := p.model.Directives().Cypher(frag.Owner, field.Name)
	switch {
	case hasCypher:
		frag.Kind = RootCypher
		frag.Cypher = &cy
		if err := p.bindCypher(frag); err != nil {
			return err
		}
	case field.Generated:
		frag.Kind = RootList
		if err := p.bindList(frag, true); err != nil {
			return err
		}
	default:
		return gqlerr.New(gqlerr.KindTranslation, "root field %q has no resolver", field.Name)
	}
	return p.add(frag, 1)
}

// add records the fragment and plans its entity sub-selections.
func (p *planner) add(frag *Fragment, depth int) error {
	if err := checkSelectionShape(frag.Field, frag.Node); err != nil {
		return err
	}
	frag.ID = len(p.plan.Fragments)
	frag.Chunk = p.options.batchMaxParents
	if frag.Field.IsEntity() {
		frag.Labels = p.model.Labels(frag.Target)
		if len(frag.Labels) == 0 {
			return gqlerr.New(gqlerr.KindTranslation, "type %q has no implementing node labels", frag.Target)
		}
	}
	p.plan.Fragments = append(p.plan.Fragments, frag)
	p.plan.byNode[frag.Node] = frag
	if !frag.IsRoot() {
		p.plan.children[frag.ParentID] = append(p.plan.children[frag.ParentID], frag)
	}
	p.plan.Cost.Fragments = len(p.plan.Fragments)
	p.plan.Cost.Depth = max(p.plan.Cost.Depth, depth)

	if !frag.Field.IsEntity() {
		return nil
	}
	children, err := p.unifyConditioned(frag.Target, frag.Node.Children)
	if err != nil {
		return err
	}
	frag.Node.Children = children
	for _, child := range frag.Node.Children {
		if err := p.planChild(frag, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) planChild(parent *Fragment, node *selection.Node, depth int) error {
	if node.Field == schema.TypenameField {
		if len(node.Args) > 0 || len(node.Children) > 0 {
			return gqlerr.New(gqlerr.KindArgument, "%s takes no arguments or selections", schema.TypenameField)
		}
		return nil
	}
	applyTo, reachable, err := p.applicableType(parent.Target, node.TypeCondition)
	if err != nil {
		return err
	}
	if !reachable {
		return nil
	}
	field, ok := p.model.FieldOf(applyTo, node.Field)
	if !ok {
		return gqlerr.New(gqlerr.KindArgument, "Cannot query field %q on type %q", node.Field, applyTo)
	}

	if !field.Resolved() {
		if len(node.Args) > 0 {
			return gqlerr.New(gqlerr.KindArgument, "field %q on type %q takes no arguments", node.Field, applyTo)
		}
		if err := checkSelectionShape(field, node); err != nil {
			return err
		}
		if !slices.Contains(parent.Properties, field.Name) {
			parent.Properties = append(parent.Properties, field.Name)
		}
		return nil
	}

	frag := &Fragment{
		Node:       node,
		Field:      field,
		Owner:      applyTo,
		ParentID:   parent.ID,
		ParentType: applyTo,
		Target:     field.Type,
	}
	// Directives are read from the model's table, keyed by the type the field is resolved on.
	dirs := p.model.Directives()
	if rel, ok := dirs.Relationship(applyTo, field.Name); ok {
		frag.Kind = Traversal
		frag.Relationship = &rel
		if err := p.bindList(frag, false); err != nil {
			return err
		}
	} else if cy, ok := dirs.Cypher(applyTo, field.Name); ok {
		frag.Kind = NestedCypher
		frag.Cypher = &cy
		if err := p.bindCypher(frag); err != nil {
			return err
		}
		// A template reading $this needs one parent per statement.
		column, ok := cy.ResultColumn()
		if ok && !slices.Contains(cy.References(), directive.ThisParam) {
			frag.ResultColumn = column
		} else {
			frag.PerParent = true
		}
	} else {
		return gqlerr.New(gqlerr.KindTranslation, "field %s.%s has no resolver directive", applyTo, field.Name)
	}
	return p.add(frag, depth)
}

// applicableType resolves the type a conditioned child is planned against. A condition no
// value of declared can satisfy makes the child unreachable, which is not an error.
func (p *planner) applicableType(declared, condition string) (string, bool, error) {
	if condition == "" || condition == declared {
		return declared, true, nil
	}
	if !p.model.HasType(condition) {
		return "", false, gqlerr.New(gqlerr.KindArgument, "Unknown type %q in fragment condition", condition)
	}
	if p.model.Conforms(declared, condition) {
		return declared, true, nil
	}
	if p.model.Conforms(condition, declared) {
		return condition, true, nil
	}
	return "", false, nil
}

func checkSelectionShape(field *schema.Field, node *selection.Node) error {
	if field.IsEntity() && len(node.Children) == 0 {
		return gqlerr.New(gqlerr.KindArgument, "field %q of type %q must have a selection of subfields", node.Field, field.Type)
	}
	if !field.IsEntity() && len(node.Children) > 0 {
		return gqlerr.New(gqlerr.KindArgument, "field %q must not have a selection since type %q has no subfields", node.Field, field.Type)
	}
	return nil
}

// String renders a fragment for logs.
func (f *Fragment) String() string {
	return fmt.Sprintf("#%d %s %s.%s", f.ID, f.Kind, f.Owner, f.Field.Name)
}
