// Package naming derives GraphQL root field names from schema type names.
package naming

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
)

// Config holds naming customization options.
type Config struct {
	// PluralOverrides maps a type name to its plural, e.g. {"Person": "Folk"}.
	// Keys match case-insensitively since config loaders lowercase map keys.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
}

func DefaultConfig() Config {
	return Config{PluralOverrides: make(map[string]string)}
}

// Namer hands out root field names. Names are unique per Namer: a generated name that is
// already taken gets the first free numeric suffix.
type Namer struct {
	overrides map[string]string
	logger    *slog.Logger
	owners    map[string]string // root field name -> type or "declared"
}

func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	overrides := make(map[string]string, len(cfg.PluralOverrides))
	for word, plural := range cfg.PluralOverrides {
		overrides[strings.ToLower(word)] = plural
	}
	return &Namer{overrides: overrides, logger: logger, owners: map[string]string{}}
}

// Default returns a Namer without plural overrides.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reserve claims a declared root field name. Declared fields keep their names; generated
// ones move out of the way.
func (n *Namer) Reserve(fieldName string) {
	n.owners[fieldName] = "declared"
}

// RootListName returns the list query name for a type: "Person" -> "people".
func (n *Namer) RootListName(typeName string) string {
	name := lowerFirst(n.Pluralize(typeName))
	if _, taken := n.owners[name]; !taken {
		n.owners[name] = typeName
		return name
	}
	for i := 2; ; i++ {
		candidate := name + strconv.Itoa(i)
		if _, taken := n.owners[candidate]; taken {
			continue
		}
		n.logger.Warn("root field name collision, auto-suffixed",
			slog.String("name", name),
			slog.String("renamed", candidate),
			slog.String("source", typeName),
			slog.String("existing", n.owners[name]),
		)
		n.owners[candidate] = typeName
		return candidate
	}
}

// Pluralize returns the configured plural for word, falling back to inflection rules.
func (n *Namer) Pluralize(word string) string {
	if plural, ok := n.overrides[strings.ToLower(word)]; ok {
		return plural
	}
	return inflection.Plural(word)
}

// lowerFirst lowercases the leading capital, or the whole leading acronym: "URL" -> "url",
// "HTTPServer" -> "httpServer".
func lowerFirst(s string) string {
	runes := []rune(s)
	upper := 0
	for upper < len(runes) && unicode.IsUpper(runes[upper]) {
		upper++
	}
	switch {
	case upper == 0:
		return s
	case upper == 1:
		r, size := utf8.DecodeRuneInString(s)
		return string(unicode.ToLower(r)) + s[size:]
	case upper < len(runes) && unicode.IsLetter(runes[upper]):
		upper--
	}
	return strings.ToLower(string(runes[:upper])) + string(runes[upper:])
}
