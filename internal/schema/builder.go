package schema

import (
	"errors"

	"neo4j-graphql/internal/directive"
	"neo4j-graphql/internal/gqlerr"
	"neo4j-graphql/internal/naming"
)

// Builder accumulates declarations and validates them into a Model.
// Registration never fails; every defect is reported together by Build.
type Builder struct {
	types      []*EntityType
	interfaces []*Interface
	query      []*Field
	namer      *naming.Namer
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithNamer sets the namer used for generated root list fields.
func WithNamer(n *naming.Namer) BuilderOption {
	return func(b *Builder) {
		if n != nil {
			b.namer = n
		}
	}
}

// NewBuilder returns an empty schema builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.namer == nil {
		b.namer = naming.Default()
	}
	return b
}

// Register declares a concrete entity type.
func (b *Builder) Register(t EntityType) *Builder {
	c := &EntityType{Name: t.Name, Interfaces: append([]string(nil), t.Interfaces...)}
	for _, f := range t.Fields {
		c.Fields = append(c.Fields, f.clone())
	}
	b.types = append(b.types, c)
	return b
}

// RegisterInterface declares an interface.
func (b *Builder) RegisterInterface(i Interface) *Builder {
	c := &Interface{Name: i.Name}
	for _, f := range i.Fields {
		c.Fields = append(c.Fields, f.clone())
	}
	b.interfaces = append(b.interfaces, c)
	return b
}

// Query declares a root field. Root fields must be resolved by a cypher directive.
func (b *Builder) Query(f Field) *Builder {
	b.query = append(b.query, f.clone())
	return b
}

// Build validates the declarations and returns the immutable model.
// All defects are joined into one error; each is a SchemaError.
func (b *Builder) Build() (*Model, error) {
	v := &validator{
		m: &Model{
			types:        make(map[string]*EntityType),
			interfaces:   make(map[string]*Interface),
			queryIndex:   make(map[string]*Field),
			implementors: make(map[string][]*EntityType),
			edgeTypes:    make(map[string]struct{}),
		},
	}

	v.registerNames(b)
	v.checkFields()
	v.inheritInterfaceFields()
	v.checkDirectives()
	v.checkDirectionPairs()
	if len(v.errs) > 0 {
		return nil, errors.Join(v.errs...)
	}

	v.generateListArgs()
	v.generateRootLists(b.namer)
	if err := v.buildDirectiveTable(); err != nil {
		return nil, err
	}
	return v.m, nil
}

type validator struct {
	m    *Model
	errs []error
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, gqlerr.New(gqlerr.KindSchema, format, args...))
}

func (v *validator) registerNames(b *Builder) {
	taken := func(name string) bool {
		_, t := v.m.types[name]
		_, i := v.m.interfaces[name]
		return t || i
	}
	for _, i := range b.interfaces {
		switch {
		case i.Name == "" || naming.IsReservedTypeName(i.Name) || IsScalar(i.Name):
			v.fail("interface name %q is reserved or empty", i.Name)
		case taken(i.Name):
			v.fail("type %q declared more than once", i.Name)
		default:
			v.m.interfaces[i.Name] = i
			v.m.ifaceOrder = append(v.m.ifaceOrder, i)
		}
	}
	for _, t := range b.types {
		switch {
		case t.Name == "" || naming.IsReservedTypeName(t.Name) || IsScalar(t.Name):
			v.fail("type name %q is reserved or empty", t.Name)
		case taken(t.Name):
			v.fail("type %q declared more than once", t.Name)
		default:
			v.m.types[t.Name] = t
			v.m.typeOrder = append(v.m.typeOrder, t)
		}
	}
	for _, t := range v.m.typeOrder {
		for _, name := range t.Interfaces {
			if !v.m.IsInterface(name) {
				v.fail("type %q implements undeclared interface %q", t.Name, name)
				continue
			}
			v.m.implementors[name] = append(v.m.implementors[name], t)
		}
	}
	for _, f := range b.query {
		if _, dup := v.m.queryIndex[f.Name]; dup {
			v.fail("field %s.%s declared more than once", QueryType, f.Name)
			continue
		}
		v.m.query = append(v.m.query, f)
		v.m.queryIndex[f.Name] = f
	}
}

func (v *validator) checkFields() {
	check := func(owner string, fields []*Field) map[string]*Field {
		seen := make(map[string]*Field, len(fields))
		for _, f := range fields {
			if _, dup := seen[f.Name]; dup {
				v.fail("field %s.%s declared more than once", owner, f.Name)
				continue
			}
			seen[f.Name] = f
			if f.Name == "" || naming.IsReservedFieldName(f.Name) {
				v.fail("field name %q on %s is reserved or empty", f.Name, owner)
			}
			v.checkFieldType(owner, f)
		}
		return seen
	}
	for _, i := range v.m.ifaceOrder {
		i.fieldIndex = check(i.Name, i.Fields)
	}
	for _, t := range v.m.typeOrder {
		t.fieldIndex = check(t.Name, t.Fields)
	}
	check(QueryType, v.m.query)
}

func (v *validator) checkFieldType(owner string, f *Field) {
	switch f.Kind {
	case KindScalar, KindScalarList:
		if !IsScalar(f.Type) {
			v.fail("field %s.%s: %q is not a scalar", owner, f.Name, f.Type)
		}
	case KindEntity, KindEntityList:
		if !v.m.HasType(f.Type) {
			v.fail("field %s.%s references undeclared type %q", owner, f.Name, f.Type)
		}
	default:
		v.fail("field %s.%s has unknown kind %d", owner, f.Name, f.Kind)
	}
	for _, a := range f.Args {
		if !IsScalar(a.Type) && a.Type != WhereInput && a.Type != OptionsInput {
			v.fail("argument %s.%s(%s) has unknown type %q", owner, f.Name, a.Name, a.Type)
		}
	}
}

// inheritInterfaceFields checks that every implementor honours its interfaces and copies
// directives and arguments onto redeclared fields that omit them.
func (v *validator) inheritInterfaceFields() {
	for _, t := range v.m.typeOrder {
		for _, name := range t.Interfaces {
			iface, ok := v.m.interfaces[name]
			if !ok {
				continue
			}
			for _, want := range iface.Fields {
				got, ok := t.Field(want.Name)
				if !ok {
					v.fail("type %q does not provide field %q of interface %q", t.Name, want.Name, name)
					continue
				}
				v.checkCompatible(t.Name, name, got, want)
				if !got.Resolved() {
					if want.Relationship != nil {
						rel := *want.Relationship
						got.Relationship = &rel
					}
					if want.Cypher != nil {
						c := *want.Cypher
						c.Params = append([]string(nil), want.Cypher.Params...)
						got.Cypher = &c
					}
				}
				if len(got.Args) == 0 && len(want.Args) > 0 {
					got.Args = append([]Argument(nil), want.Args...)
				}
			}
		}
	}
}

func (v *validator) checkCompatible(typeName, ifaceName string, got, want *Field) {
	switch {
	case got.Kind != want.Kind:
		v.fail("%s.%s is %s but interface %s declares %s", typeName, got.Name, got.Kind, ifaceName, want.Kind)
	case got.Type != want.Type && !v.m.Conforms(got.Type, want.Type):
		v.fail("%s.%s has type %q, incompatible with %q on interface %s", typeName, got.Name, got.Type, want.Type, ifaceName)
	case want.NonNull && !got.NonNull, want.ElemNonNull && !got.ElemNonNull:
		v.fail("%s.%s weakens the nullability declared on interface %s", typeName, got.Name, ifaceName)
	}
	if got.Relationship != nil && want.Relationship != nil &&
		(got.Relationship.Type != want.Relationship.Type || got.Relationship.Direction != want.Relationship.Direction) {
		v.fail("%s.%s redeclares the relationship of interface %s differently", typeName, got.Name, ifaceName)
	}
}

func (v *validator) checkDirectives() {
	each := func(owner string, fields []*Field, root bool) {
		for _, f := range fields {
			if f.Relationship != nil && f.Cypher != nil {
				v.fail("%s.%s declares both @relationship and @cypher", owner, f.Name)
				continue
			}
			if root && f.Cypher == nil {
				v.fail("root field %s.%s must declare @cypher", owner, f.Name)
				continue
			}
			if rel := f.Relationship; rel != nil {
				switch {
				case !f.IsEntity():
					v.fail("%s.%s: @relationship on a scalar field", owner, f.Name)
				case rel.Type == "":
					v.fail("%s.%s: @relationship without an edge type", owner, f.Name)
				case !rel.Direction.Valid():
					v.fail("%s.%s: unknown relationship direction %q", owner, f.Name, rel.Direction)
				case rel.Target != "" && rel.Target != f.Type:
					v.fail("%s.%s: relationship target %q does not match field type %q", owner, f.Name, rel.Target, f.Type)
				default:
					rel.Target = f.Type
					v.m.edgeTypes[rel.Type] = struct{}{}
				}
			}
			if c := f.Cypher; c != nil {
				if c.Statement == "" {
					v.fail("%s.%s: @cypher without a statement", owner, f.Name)
				}
				for _, p := range c.Params {
					if _, ok := f.Arg(p); !ok {
						v.fail("%s.%s: @cypher parameter %q is not a field argument", owner, f.Name, p)
					}
				}
				for _, ref := range c.Undeclared(!root) {
					v.fail("%s.%s: @cypher statement references undeclared parameter $%s", owner, f.Name, ref)
				}
			}
			if !root && f.IsEntity() && !f.Resolved() {
				v.fail("%s.%s: entity field must declare @relationship or @cypher", owner, f.Name)
			}
		}
	}
	for _, i := range v.m.ifaceOrder {
		each(i.Name, i.Fields, false)
	}
	for _, t := range v.m.typeOrder {
		each(t.Name, t.Fields, false)
	}
	each(QueryType, v.m.query, true)
}

type edgeField struct {
	owner string
	field *Field
}

// checkDirectionPairs requires two fields that traverse the same edge label between the same
// pair of types to see the edge from opposite ends.
func (v *validator) checkDirectionPairs() {
	var edges []edgeField
	for _, i := range v.m.ifaceOrder {
		for _, f := range i.Fields {
			if f.Relationship != nil && f.Relationship.Target != "" {
				edges = append(edges, edgeField{i.Name, f})
			}
		}
	}
	for _, t := range v.m.typeOrder {
		for _, f := range t.Fields {
			if f.Relationship != nil && f.Relationship.Target != "" {
				edges = append(edges, edgeField{t.Name, f})
			}
		}
	}
	related := func(a, b string) bool {
		return v.m.Conforms(a, b) || v.m.Conforms(b, a)
	}
	for i := 0; i < len(edges); i++ {
		for j := i + 1; j < len(edges); j++ {
			a, b := edges[i], edges[j]
			ra, rb := a.field.Relationship, b.field.Relationship
			if ra.Type != rb.Type {
				continue
			}
			if !related(a.owner, rb.Target) || !related(b.owner, ra.Target) {
				continue
			}
			if ra.Direction.Opposite() != rb.Direction {
				v.fail("%s.%s (%s) and %s.%s (%s) disagree on the direction of %s",
					a.owner, a.field.Name, ra.Direction, b.owner, b.field.Name, rb.Direction, ra.Type)
			}
		}
	}
}

func (v *validator) generateListArgs() {
	add := func(fields []*Field) {
		for _, f := range fields {
			if f.Kind != KindEntityList || f.Relationship == nil {
				continue
			}
			if _, ok := f.Arg(WhereArg); !ok {
				f.Args = append(f.Args, Argument{Name: WhereArg, Type: WhereInput})
			}
			if _, ok := f.Arg(OptionsArg); !ok {
				f.Args = append(f.Args, Argument{Name: OptionsArg, Type: OptionsInput})
			}
		}
	}
	for _, i := range v.m.ifaceOrder {
		add(i.Fields)
	}
	for _, t := range v.m.typeOrder {
		add(t.Fields)
	}
}

func (v *validator) generateRootLists(namer *naming.Namer) {
	for _, f := range v.m.query {
		namer.Reserve(f.Name)
	}
	names := make([]string, 0, len(v.m.typeOrder)+len(v.m.ifaceOrder))
	for _, t := range v.m.typeOrder {
		names = append(names, t.Name)
	}
	for _, i := range v.m.ifaceOrder {
		names = append(names, i.Name)
	}
	for _, typeName := range names {
		f := &Field{
			Name:        namer.RootListName(typeName),
			Kind:        KindEntityList,
			Type:        typeName,
			NonNull:     true,
			ElemNonNull: true,
			Args: []Argument{
				{Name: WhereArg, Type: WhereInput},
				{Name: OptionsArg, Type: OptionsInput},
			},
			Generated: true,
		}
		v.m.query = append(v.m.query, f)
		v.m.queryIndex[f.Name] = f
	}
}

func (v *validator) buildDirectiveTable() error {
	db := directive.NewBuilder()
	add := func(owner string, fields []*Field) error {
		for _, f := range fields {
			if f.Relationship != nil {
				if err := db.AddRelationship(owner, f.Name, *f.Relationship); err != nil {
					return gqlerr.Wrap(gqlerr.KindSchema, err, "directive table")
				}
			}
			if f.Cypher != nil {
				if err := db.AddCypher(owner, f.Name, *f.Cypher); err != nil {
					return gqlerr.Wrap(gqlerr.KindSchema, err, "directive table")
				}
			}
		}
		return nil
	}
	for _, i := range v.m.ifaceOrder {
		if err := add(i.Name, i.Fields); err != nil {
			return err
		}
	}
	for _, t := range v.m.typeOrder {
		if err := add(t.Name, t.Fields); err != nil {
			return err
		}
	}
	if err := add(QueryType, v.m.query); err != nil {
		return err
	}
	v.m.directives = db.Build()
	return nil
}
