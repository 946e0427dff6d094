package naming

import "strings"

// IsReservedTypeName reports whether name is a GraphQL keyword, a built-in scalar, a literal,
// or in the introspection namespace. Case is ignored.
func IsReservedTypeName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "__") {
		return true
	}
	switch lower {
	case "query", "mutation", "subscription", "schema", "type", "interface", "union", "enum",
		"input", "scalar", "fragment", "directive", "extend", "implements", "on":
		return true
	case "int", "float", "string", "boolean", "id", "datetime":
		return true
	case "true", "false", "null":
		return true
	}
	return false
}

// IsReservedFieldName reports whether a field name is taken by introspection or by the
// engine's own result columns, both of which use a double-underscore prefix.
func IsReservedFieldName(name string) bool {
	return strings.HasPrefix(name, "__")
}
