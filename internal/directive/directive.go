// Package directive holds per-field resolution metadata attached while the schema is built:
// graph traversal (@relationship) or a raw parameterized Cypher template (@cypher).
package directive

import (
	"fmt"
	"sort"
	"strings"
)

// Direction is the edge direction of a relationship, relative to the owning type.
type Direction string

const (
	Out  Direction = "OUT"
	In   Direction = "IN"
	Both Direction = "BOTH"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case Out, In, Both:
		return true
	}
	return false
}

// Opposite returns the direction seen from the other end of the edge.
func (d Direction) Opposite() Direction {
	switch d {
	case Out:
		return In
	case In:
		return Out
	}
	return d
}

// ThisParam is the reserved parameter bound to the parent node for nested cypher fields.
const ThisParam = "this"

// Relationship resolves a field by traversing edges labelled Type.
type Relationship struct {
	Type      string
	Direction Direction
	Target    string
}

// Cypher resolves a field by executing Statement with the named Params taken from the
// field's arguments.
type Cypher struct {
	Statement string
	Params    []string
}

// Declares reports whether name is one of the template's declared parameters.
func (c Cypher) Declares(name string) bool {
	for _, p := range c.Params {
		if p == name {
			return true
		}
	}
	return false
}

// References returns the distinct $parameters used in the statement, sorted.
// String literals and backtick-quoted identifiers are skipped.
func (c Cypher) References() []string {
	seen := make(map[string]struct{})
	s := c.Statement
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'', '"', '`':
			quote := s[i]
			i++
			for i < len(s) && s[i] != quote {
				if s[i] == '\\' && quote != '`' {
					i++
				}
				i++
			}
		case '$':
			j := i + 1
			for j < len(s) && isParamChar(s[j], j == i+1) {
				j++
			}
			if j > i+1 {
				seen[s[i+1:j]] = struct{}{}
			}
			i = j - 1
		}
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

// Undeclared returns the referenced parameters that are neither declared nor reserved.
// nested allows the parent binding ThisParam.
func (c Cypher) Undeclared(nested bool) []string {
	var missing []string
	for _, ref := range c.References() {
		if c.Declares(ref) {
			continue
		}
		if nested && ref == ThisParam {
			continue
		}
		missing = append(missing, ref)
	}
	return missing
}

// ResultColumn returns the name of the first column projected by the statement's final
// RETURN clause, if it can be determined without evaluating the statement.
func (c Cypher) ResultColumn() (string, bool) {
	clause, ok := finalReturn(c.Statement)
	if !ok {
		return "", false
	}
	first := firstTopLevelItem(clause)
	if first == "" {
		return "", false
	}
	upper := strings.ToUpper(first)
	if idx := strings.LastIndex(upper, " AS "); idx >= 0 {
		alias := strings.TrimSpace(first[idx+4:])
		return unquote(alias), isIdentifier(unquote(alias))
	}
	if isIdentifier(first) {
		return first, true
	}
	return "", false
}

func finalReturn(statement string) (string, bool) {
	upper := strings.ToUpper(statement)
	idx := -1
	for search := 0; ; {
		found := strings.Index(upper[search:], "RETURN")
		if found < 0 {
			break
		}
		pos := search + found
		before := pos == 0 || !isParamChar(upper[pos-1], false)
		after := pos+6 >= len(upper) || !isParamChar(upper[pos+6], false)
		if before && after {
			idx = pos
		}
		search = pos + 6
	}
	if idx < 0 {
		return "", false
	}
	clause := statement[idx+6:]
	if strings.Contains(strings.ToUpper(clause), "}") {
		return "", false
	}
	for _, kw := range []string{" ORDER BY ", " SKIP ", " LIMIT ", " UNION "} {
		if cut := strings.Index(strings.ToUpper(normalizeSpace(clause)), kw); cut >= 0 {
			clause = normalizeSpace(clause)[:cut]
		}
	}
	clause = strings.TrimSpace(normalizeSpace(clause))
	clause = strings.TrimPrefix(clause, "DISTINCT ")
	clause = strings.TrimPrefix(clause, "distinct ")
	return clause, clause != ""
}

func firstTopLevelItem(clause string) string {
	depth := 0
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(clause[:i])
			}
		}
	}
	return strings.TrimSpace(clause)
}

func normalizeSpace(s string) string {
	return " " + strings.Join(strings.Fields(s), " ")
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isParamChar(s[i], i == 0) {
			return false
		}
	}
	return true
}

func isParamChar(b byte, first bool) bool {
	switch {
	case b == '_', b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return !first
	}
	return false
}

type key struct {
	owner string
	field string
}

// Table is the immutable per-field directive lookup built with the schema.
type Table struct {
	relationships map[key]Relationship
	cyphers       map[key]Cypher
}

// Relationship returns the relationship directive on owner.field.
func (t *Table) Relationship(owner, field string) (Relationship, bool) {
	if t == nil {
		return Relationship{}, false
	}
	rel, ok := t.relationships[key{owner, field}]
	return rel, ok
}

// Cypher returns the cypher directive on owner.field.
func (t *Table) Cypher(owner, field string) (Cypher, bool) {
	if t == nil {
		return Cypher{}, false
	}
	c, ok := t.cyphers[key{owner, field}]
	return c, ok
}

// Len returns the number of directive entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.relationships) + len(t.cyphers)
}

// Builder accumulates directive entries during schema construction.
type Builder struct {
	relationships map[key]Relationship
	cyphers       map[key]Cypher
}

// NewBuilder returns an empty directive builder.
func NewBuilder() *Builder {
	return &Builder{
		relationships: make(map[key]Relationship),
		cyphers:       make(map[key]Cypher),
	}
}

// AddRelationship records a relationship directive for owner.field.
func (b *Builder) AddRelationship(owner, field string, rel Relationship) error {
	k := key{owner, field}
	if _, ok := b.cyphers[k]; ok {
		return fmt.Errorf("%s.%s declares both @relationship and @cypher", owner, field)
	}
	b.relationships[k] = rel
	return nil
}

// AddCypher records a cypher directive for owner.field.
func (b *Builder) AddCypher(owner, field string, c Cypher) error {
	k := key{owner, field}
	if _, ok := b.relationships[k]; ok {
		return fmt.Errorf("%s.%s declares both @relationship and @cypher", owner, field)
	}
	params := append([]string(nil), c.Params...)
	b.cyphers[k] = Cypher{Statement: c.Statement, Params: params}
	return nil
}

// Build freezes the accumulated entries into a Table.
func (b *Builder) Build() *Table {
	t := &Table{
		relationships: make(map[key]Relationship, len(b.relationships)),
		cyphers:       make(map[key]Cypher, len(b.cyphers)),
	}
	for k, v := range b.relationships {
		t.relationships[k] = v
	}
	for k, v := range b.cyphers {
		t.cyphers[k] = v
	}
	return t
}
