// Package selection lowers a parsed GraphQL operation into the per-request selection tree the
// planner consumes. Fragment spreads and inline fragments are flattened into their parent with
// the fragment's type condition recorded on each node; variables are substituted; @skip and
// @include are applied.
package selection

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"

	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/gqlrequest"
)

// Node is one requested field. Nodes are built per request and never shared.
type Node struct {
	Field string
	Alias string
	Args  map[string]any
	// TypeCondition restricts the node to values of the named type. Empty applies to all values.
	TypeCondition string
	Children      []*Node
}

// ResponseKey is the key the node's value is returned under.
func (n *Node) ResponseKey() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Field
}

// Parse parses a document and lowers the selected operation.
func Parse(query, operationName string, variables map[string]any) ([]*Node, error) {
	analysis := gqlrequest.AnalyzeEnvelope(gqlrequest.Envelope{Query: query, OperationName: operationName})
	analysis.Variables = variables
	return FromAnalysis(analysis)
}

// FromAnalysis lowers the operation selected by a request analysis using its decoded variables.
func FromAnalysis(analysis *gqlrequest.Analysis) ([]*Node, error) {
	if analysis == nil {
		return nil, gqlerr.New(gqlerr.KindParse, "no request")
	}
	if analysis.DecodeError != nil {
		return nil, gqlerr.Wrap(gqlerr.KindParse, analysis.DecodeError, "malformed request body")
	}
	if err := analysis.Err(); err != nil {
		return nil, gqlerr.New(gqlerr.KindParse, "%v", err)
	}
	return Lower(analysis.Operation, analysis.Fragments, analysis.Variables)
}

// Lower converts a query operation into root selection nodes.
func Lower(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition, variables map[string]any) ([]*Node, error) {
	if op.Operation != ast.OperationTypeQuery {
		return nil, gqlerr.New(gqlerr.KindParse, "%s operations are not supported", op.Operation)
	}
	vars, err := bindVariables(op.VariableDefinitions, variables)
	if err != nil {
		return nil, err
	}
	l := &lowerer{fragments: fragments, vars: vars, spreading: map[string]bool{}}
	return l.selectionSet(op.SelectionSet, "")
}

type lowerer struct {
	fragments map[string]*ast.FragmentDefinition
	vars      map[string]any
	spreading map[string]bool
}

func (l *lowerer) selectionSet(set *ast.SelectionSet, condition string) ([]*Node, error) {
	if set == nil {
		return nil, nil
	}
	var nodes []*Node
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			include, err := l.included(s.Directives)
			if err != nil {
				return nil, err
			}
			if !include {
				continue
			}
			node, err := l.field(s, condition)
			if err != nil {
				return nil, err
			}
			nodes, err = merge(nodes, node)
			if err != nil {
				return nil, err
			}
		case *ast.InlineFragment:
			include, err := l.included(s.Directives)
			if err != nil {
				return nil, err
			}
			if !include {
				continue
			}
			children, err := l.selectionSet(s.SelectionSet, narrow(condition, s.TypeCondition))
			if err != nil {
				return nil, err
			}
			if nodes, err = mergeAll(nodes, children); err != nil {
				return nil, err
			}
		case *ast.FragmentSpread:
			include, err := l.included(s.Directives)
			if err != nil {
				return nil, err
			}
			if !include {
				continue
			}
			name := s.Name.Value
			def, ok := l.fragments[name]
			if !ok {
				return nil, gqlerr.New(gqlerr.KindParse, "unknown fragment %q", name)
			}
			if l.spreading[name] {
				return nil, gqlerr.New(gqlerr.KindParse, "fragment %q spreads itself", name)
			}
			l.spreading[name] = true
			children, err := l.selectionSet(def.SelectionSet, narrow(condition, def.TypeCondition))
			delete(l.spreading, name)
			if err != nil {
				return nil, err
			}
			if nodes, err = mergeAll(nodes, children); err != nil {
				return nil, err
			}
		}
	}
	return nodes, nil
}

// narrow returns the condition in effect inside a fragment. The innermost condition wins.
func narrow(outer string, named *ast.Named) string {
	if named == nil || named.Name == nil || named.Name.Value == "" {
		return outer
	}
	return named.Name.Value
}

func (l *lowerer) field(f *ast.Field, condition string) (*Node, error) {
	node := &Node{Field: f.Name.Value, TypeCondition: condition}
	if f.Alias != nil {
		node.Alias = f.Alias.Value
	}
	if len(f.Arguments) > 0 {
		node.Args = make(map[string]any, len(f.Arguments))
		for _, arg := range f.Arguments {
			v, present, err := l.value(arg.Value)
			if err != nil {
				return nil, err
			}
			if present {
				node.Args[arg.Name.Value] = v
			}
		}
	}
	children, err := l.selectionSet(f.SelectionSet, "")
	if err != nil {
		return nil, err
	}
	node.Children = children
	return node, nil
}

func (l *lowerer) included(directives []*ast.Directive) (bool, error) {
	for _, d := range directives {
		name := d.Name.Value
		if name != "skip" && name != "include" {
			continue
		}
		var cond any
		for _, arg := range d.Arguments {
			if arg.Name.Value == "if" {
				v, _, err := l.value(arg.Value)
				if err != nil {
					return false, err
				}
				cond = v
			}
		}
		b, ok := cond.(bool)
		if !ok {
			return false, gqlerr.New(gqlerr.KindParse, "@%s requires a Boolean \"if\" argument", name)
		}
		if (name == "skip" && b) || (name == "include" && !b) {
			return false, nil
		}
	}
	return true, nil
}

// value converts a literal. present is false for a variable that was neither supplied nor defaulted.
func (l *lowerer) value(v ast.Value) (any, bool, error) {
	switch val := v.(type) {
	case *ast.Variable:
		name := val.Name.Value
		bound, ok := l.vars[name]
		return bound, ok, nil
	case *ast.IntValue:
		i, err := strconv.ParseInt(val.Value, 10, 64)
		if err != nil {
			return nil, false, gqlerr.New(gqlerr.KindParse, "invalid Int literal %s", val.Value)
		}
		return i, true, nil
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return nil, false, gqlerr.New(gqlerr.KindParse, "invalid Float literal %s", val.Value)
		}
		return f, true, nil
	case *ast.StringValue:
		return val.Value, true, nil
	case *ast.BooleanValue:
		return val.Value, true, nil
	case *ast.EnumValue:
		return val.Value, true, nil
	case *ast.ListValue:
		out := make([]any, 0, len(val.Values))
		for _, item := range val.Values {
			iv, present, err := l.value(item)
			if err != nil {
				return nil, false, err
			}
			if !present {
				iv = nil
			}
			out = append(out, iv)
		}
		return out, true, nil
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			fv, present, err := l.value(f.Value)
			if err != nil {
				return nil, false, err
			}
			if present {
				out[f.Name.Value] = fv
			}
		}
		return out, true, nil
	}
	return nil, false, gqlerr.New(gqlerr.KindParse, "unsupported value %T", v)
}

func bindVariables(defs []*ast.VariableDefinition, supplied map[string]any) (map[string]any, error) {
	vars := make(map[string]any, len(defs))
	constants := &lowerer{}
	for _, def := range defs {
		name := def.Variable.Name.Value
		if v, ok := supplied[name]; ok {
			vars[name] = normalize(v)
			continue
		}
		if def.DefaultValue != nil {
			v, _, err := constants.value(def.DefaultValue)
			if err != nil {
				return nil, err
			}
			vars[name] = v
			continue
		}
		if _, required := def.Type.(*ast.NonNull); required {
			return nil, gqlerr.New(gqlerr.KindParse, "variable $%s of required type was not provided", name)
		}
	}
	return vars, nil
}

// normalize maps decoded JSON numbers onto int64 or float64.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case int:
		return int64(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = normalize(val[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}

func mergeAll(nodes, more []*Node) ([]*Node, error) {
	var err error
	for _, n := range more {
		if nodes, err = merge(nodes, n); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// merge folds n into an existing node with the same response key and type condition.
func merge(nodes []*Node, n *Node) ([]*Node, error) {
	for _, existing := range nodes {
		if existing.ResponseKey() != n.ResponseKey() || existing.TypeCondition != n.TypeCondition {
			continue
		}
		if existing.Field != n.Field || !reflect.DeepEqual(existing.Args, n.Args) {
			return nil, gqlerr.New(gqlerr.KindParse, "fields %q conflict: they select different fields or arguments", n.ResponseKey())
		}
		var err error
		if existing.Children, err = mergeAll(existing.Children, n.Children); err != nil {
			return nil, err
		}
		return nodes, nil
	}
	return append(nodes, n), nil
}

// Union merges nodes that share a response key into one node restricted to condition. The
// inputs are left untouched.
func Union(condition string, nodes ...*Node) (*Node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := nodes[0].clone()
	out.TypeCondition = condition
	for _, n := range nodes[1:] {
		if n.Field != out.Field || !reflect.DeepEqual(n.Args, out.Args) {
			return nil, gqlerr.New(gqlerr.KindParse, "fields %q conflict: they select different fields or arguments", n.ResponseKey())
		}
		var err error
		if out.Children, err = mergeAll(out.Children, cloneAll(n.Children)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (n *Node) clone() *Node {
	c := *n
	c.Children = cloneAll(n.Children)
	return &c
}

func cloneAll(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.clone()
	}
	return out
}

// String renders the tree compactly for logs and test failures.
func (n *Node) String() string {
	s := n.ResponseKey()
	if len(n.Children) > 0 {
		s += "{"
		for i, c := range n.Children {
			if i > 0 {
				s += " "
			}
			s += c.String()
		}
		s += "}"
	}
	if n.TypeCondition != "" {
		return fmt.Sprintf("...on %s{%s}", n.TypeCondition, s)
	}
	return s
}
