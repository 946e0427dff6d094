package gqlrequest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

var (
	errNoDocument  = errors.New("request does not include a query document")
	errNoOperation = errors.New("request does not include an operation")
	errAmbiguous   = errors.New("operationName is required when request has multiple operations")
)

// Analysis holds one parsed request and the shape metadata used by logs, spans and metrics.
// Each stage records its own failure so a rejected request can still be described.
type Analysis struct {
	Envelope  Envelope
	Variables map[string]any

	Document  *ast.Document
	Fragments map[string]*ast.FragmentDefinition
	Operation *ast.OperationDefinition

	OperationName string
	OperationType string

	FieldCount     int
	SelectionDepth int
	VariableCount  int

	CanonicalOperation string
	OperationHash      string

	DecodeError     error
	VariablesError  error
	ParseError      error
	SelectionError  error
	CanonicalizeErr error
}

// Err reports the earliest failure that makes the request unexecutable. A failed
// canonicalization only loses the hash and is not reported.
func (a *Analysis) Err() error {
	for _, err := range []error{a.DecodeError, a.VariablesError, a.ParseError, a.SelectionError} {
		if err != nil {
			return err
		}
	}
	return nil
}

// AnalyzeRequest decodes r's GraphQL payload and analyzes it.
func AnalyzeRequest(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	a := AnalyzeEnvelope(env)
	a.DecodeError = err
	return a
}

// AnalyzeEnvelope parses env.Query, selects the operation to run and measures it.
func AnalyzeEnvelope(env Envelope) *Analysis {
	a := &Analysis{Envelope: env, Fragments: map[string]*ast.FragmentDefinition{}}
	a.Variables, a.VariablesError = env.Variables()

	if strings.TrimSpace(env.Query) == "" {
		a.SelectionError = errNoDocument
		return a
	}
	if a.Document, a.ParseError = parseDocument(env.Query); a.ParseError != nil {
		return a
	}
	if a.Operation, a.SelectionError = a.pickOperation(); a.SelectionError != nil {
		return a
	}
	a.measure()
	return a
}

func parseDocument(query string) (*ast.Document, error) {
	return parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
}

// pickOperation indexes the document's fragments and returns the operation named by the
// envelope, or the only operation when no name was sent.
func (a *Analysis) pickOperation() (*ast.OperationDefinition, error) {
	var (
		only, named *ast.OperationDefinition
		count       int
		want        = a.Envelope.OperationName
	)
	for _, def := range a.Document.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			if d.Name != nil && d.Name.Value != "" {
				a.Fragments[d.Name.Value] = d
			}
		case *ast.OperationDefinition:
			count++
			only = d
			if named == nil && want != "" && d.Name != nil && d.Name.Value == want {
				named = d
			}
		}
	}

	switch {
	case want != "" && named == nil:
		return nil, fmt.Errorf("unknown operation named %q", want)
	case want != "":
		return named, nil
	case count == 0:
		return nil, errNoOperation
	case count > 1:
		return nil, errAmbiguous
	}
	return only, nil
}

func (a *Analysis) measure() {
	op := a.Operation
	a.OperationName = effectiveOperationName(op)
	a.OperationType = op.Operation
	a.VariableCount = len(op.VariableDefinitions)

	shape := &shapeCounter{fragments: a.Fragments, expanded: map[string]bool{}}
	a.FieldCount, a.SelectionDepth = shape.walk(op.SelectionSet, 1)
	a.CanonicalOperation, a.OperationHash, a.CanonicalizeErr = fingerprint(op, shape.order, a.Fragments)
}

// shapeCounter counts fields and nesting depth. Fragments expand at most once, which
// also stops cyclic spreads; order lists them as first reached.
type shapeCounter struct {
	fragments map[string]*ast.FragmentDefinition
	expanded  map[string]bool
	order     []string
}

func (c *shapeCounter) walk(set *ast.SelectionSet, depth int) (fields, deepest int) {
	if set == nil {
		return 0, depth - 1
	}
	deepest = depth
	for _, sel := range set.Selections {
		var nested *ast.SelectionSet
		level := depth
		switch s := sel.(type) {
		case *ast.Field:
			fields++
			nested, level = s.SelectionSet, depth+1
		case *ast.InlineFragment:
			nested = s.SelectionSet
		case *ast.FragmentSpread:
			nested = c.expand(s)
		}
		if nested == nil {
			continue
		}
		f, d := c.walk(nested, level)
		fields += f
		deepest = max(deepest, d)
	}
	return fields, deepest
}

func (c *shapeCounter) expand(spread *ast.FragmentSpread) *ast.SelectionSet {
	if spread.Name == nil || c.expanded[spread.Name.Value] {
		return nil
	}
	name := spread.Name.Value
	c.expanded[name] = true
	c.order = append(c.order, name)
	if def, ok := c.fragments[name]; ok {
		return def.SelectionSet
	}
	return nil
}
