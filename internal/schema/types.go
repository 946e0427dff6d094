// Package schema is the typed in-memory model of entity types, interfaces, fields and the
// relationship edges declared between them. A Model is built once at process start and is
// read-only afterwards; it is shared by every concurrent request.
package schema

import "neo4j-graphql/internal/directive"

// QueryType is the name of the root operation type.
const QueryType = "Query"

// TypenameField is the introspection field answered from the resolved concrete type.
const TypenameField = "__typename"

// Built-in scalar names.
const (
	String   = "String"
	Int      = "Int"
	Float    = "Float"
	Boolean  = "Boolean"
	ID       = "ID"
	DateTime = "DateTime"
)

// Input object kinds accepted by generated list arguments.
const (
	WhereInput   = "Where"
	OptionsInput = "Options"
)

// Generated list argument names.
const (
	WhereArg   = "where"
	OptionsArg = "options"
)

var scalars = map[string]struct{}{
	String: {}, Int: {}, Float: {}, Boolean: {}, ID: {}, DateTime: {},
}

// IsScalar reports whether name is a built-in scalar.
func IsScalar(name string) bool {
	_, ok := scalars[name]
	return ok
}

// Kind is the declared value shape of a field.
type Kind int

const (
	KindScalar Kind = iota
	KindScalarList
	KindEntity
	KindEntityList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindScalarList:
		return "scalar list"
	case KindEntity:
		return "entity"
	case KindEntityList:
		return "entity list"
	}
	return "unknown"
}

// Argument is a declared field argument.
type Argument struct {
	Name    string
	Type    string
	List    bool
	NonNull bool
	Default any
}

// Field is a field definition on an entity type, interface, or the Query root.
type Field struct {
	Name string
	Kind Kind
	// Type is the scalar, entity, or interface name of the value (or list element).
	Type        string
	NonNull     bool
	ElemNonNull bool
	Args        []Argument

	Relationship *directive.Relationship
	Cypher       *directive.Cypher

	// Generated marks fields and arguments the builder derived rather than the caller declared.
	Generated bool
}

// IsList reports whether the field yields a list.
func (f *Field) IsList() bool {
	return f.Kind == KindScalarList || f.Kind == KindEntityList
}

// IsEntity reports whether the field yields entity values.
func (f *Field) IsEntity() bool {
	return f.Kind == KindEntity || f.Kind == KindEntityList
}

// Resolved reports whether the field is computed by a directive rather than read from the row.
func (f *Field) Resolved() bool {
	return f.Relationship != nil || f.Cypher != nil
}

// Arg returns the declared argument name.
func (f *Field) Arg(name string) (Argument, bool) {
	for _, a := range f.Args {
		if a.Name == name {
			return a, true
		}
	}
	return Argument{}, false
}

func (f *Field) clone() *Field {
	c := *f
	c.Args = append([]Argument(nil), f.Args...)
	if f.Relationship != nil {
		rel := *f.Relationship
		c.Relationship = &rel
	}
	if f.Cypher != nil {
		cy := *f.Cypher
		cy.Params = append([]string(nil), f.Cypher.Params...)
		c.Cypher = &cy
	}
	return &c
}

// EntityType is a concrete node type. Its Name is also the node label.
type EntityType struct {
	Name       string
	Fields     []*Field
	Interfaces []string

	fieldIndex map[string]*Field
}

// Field returns the named field.
func (t *EntityType) Field(name string) (*Field, bool) {
	if t.fieldIndex != nil {
		f, ok := t.fieldIndex[name]
		return f, ok
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Implements reports whether the type declares the named interface.
func (t *EntityType) Implements(iface string) bool {
	for _, name := range t.Interfaces {
		if name == iface {
			return true
		}
	}
	return false
}

// Interface is an abstract type whose fields every implementor must provide.
type Interface struct {
	Name   string
	Fields []*Field

	fieldIndex map[string]*Field
}

// Field returns the named field.
func (i *Interface) Field(name string) (*Field, bool) {
	if i.fieldIndex != nil {
		f, ok := i.fieldIndex[name]
		return f, ok
	}
	for _, f := range i.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func indexFields(fields []*Field) map[string]*Field {
	idx := make(map[string]*Field, len(fields))
	for _, f := range fields {
		idx[f.Name] = f
	}
	return idx
}
