package schema

import (
	"slices"

	"neo4j-graphql/internal/directive"
)

// Model is the immutable schema shared by all requests.
type Model struct {
	types      map[string]*EntityType
	typeOrder  []*EntityType
	interfaces map[string]*Interface
	ifaceOrder []*Interface
	query      []*Field
	queryIndex map[string]*Field

	implementors map[string][]*EntityType
	edgeTypes    map[string]struct{}
	directives   *directive.Table
}

// EntityType returns the named concrete type.
func (m *Model) EntityType(name string) (*EntityType, bool) {
	t, ok := m.types[name]
	return t, ok
}

// Interface returns the named interface.
func (m *Model) Interface(name string) (*Interface, bool) {
	i, ok := m.interfaces[name]
	return i, ok
}

// IsInterface reports whether name is a declared interface.
func (m *Model) IsInterface(name string) bool {
	_, ok := m.interfaces[name]
	return ok
}

// HasType reports whether name is a declared entity type or interface.
func (m *Model) HasType(name string) bool {
	_, isType := m.types[name]
	return isType || m.IsInterface(name)
}

// Types returns entity types in registration order.
func (m *Model) Types() []*EntityType {
	return slices.Clone(m.typeOrder)
}

// Interfaces returns interfaces in registration order.
func (m *Model) Interfaces() []*Interface {
	return slices.Clone(m.ifaceOrder)
}

// QueryFields returns the root fields, declared fields first.
func (m *Model) QueryFields() []*Field {
	return slices.Clone(m.query)
}

// Directives returns the directive table built with the model.
func (m *Model) Directives() *directive.Table {
	return m.directives
}

// FieldOf returns a field of an entity type, an interface, or the Query root.
func (m *Model) FieldOf(typeName, fieldName string) (*Field, bool) {
	if typeName == QueryType {
		f, ok := m.queryIndex[fieldName]
		return f, ok
	}
	if t, ok := m.types[typeName]; ok {
		return t.Field(fieldName)
	}
	if i, ok := m.interfaces[typeName]; ok {
		return i.Field(fieldName)
	}
	return nil, false
}

// ResolveInterfaceImplementors returns the concrete types implementing the interface,
// in registration order. An unknown interface yields nil.
func (m *Model) ResolveInterfaceImplementors(name string) []*EntityType {
	return slices.Clone(m.implementors[name])
}

// Labels returns the node labels that may hold values of typeName: the type itself for a
// concrete type, every implementor for an interface.
func (m *Model) Labels(typeName string) []string {
	if _, ok := m.types[typeName]; ok {
		return []string{typeName}
	}
	impls := m.implementors[typeName]
	labels := make([]string, 0, len(impls))
	for _, t := range impls {
		labels = append(labels, t.Name)
	}
	return labels
}

// HasRelationshipType reports whether any field traverses edges labelled edge.
func (m *Model) HasRelationshipType(edge string) bool {
	_, ok := m.edgeTypes[edge]
	return ok
}

// Conforms reports whether values of typeName may appear where target is expected.
func (m *Model) Conforms(typeName, target string) bool {
	if typeName == target {
		return true
	}
	if t, ok := m.types[typeName]; ok {
		return t.Implements(target)
	}
	return false
}

// ResolveConcrete picks the concrete type for a node typed as declared, given the node's labels.
// Implementors are tried in registration order so a node carrying several implementor labels
// resolves the same way on every request.
func (m *Model) ResolveConcrete(declared string, labels []string) (*EntityType, bool) {
	if t, ok := m.types[declared]; ok {
		if len(labels) == 0 || slices.Contains(labels, declared) {
			return t, true
		}
		return nil, false
	}
	for _, t := range m.implementors[declared] {
		if slices.Contains(labels, t.Name) {
			return t, true
		}
	}
	return nil, false
}
