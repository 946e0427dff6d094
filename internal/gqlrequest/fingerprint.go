package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// fingerprint prints op and the fragments it reaches, in first-use order, as one canonical
// document and hashes it together with the operation name. Whitespace and comments in the
// client text therefore never change the hash.
func fingerprint(op *ast.OperationDefinition, reached []string, fragments map[string]*ast.FragmentDefinition) (canonical, hash string, err error) {
	definitions := []ast.Node{op}
	for _, name := range reached {
		def, ok := fragments[name]
		if !ok {
			return "", "", fmt.Errorf("fragment %q is not defined", name)
		}
		definitions = append(definitions, def)
	}

	printed, ok := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions})).(string)
	if !ok {
		return "", "", fmt.Errorf("operation could not be printed")
	}

	var framed strings.Builder
	for _, part := range []string{op.Operation, effectiveOperationName(op), printed} {
		fmt.Fprintf(&framed, "%d:%s|", len(part), part)
	}
	sum := sha256.Sum256([]byte(framed.String()))
	return printed, hex.EncodeToString(sum[:]), nil
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}
