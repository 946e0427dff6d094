// Package gqlerr defines the error taxonomy shared by the planning and execution pipeline.
// Every failure that reaches a caller carries exactly one Kind; the message returned by
// Public never includes query text, driver detail, or credentials.
package gqlerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind string

const (
	// KindSchema is a static schema defect detected at startup.
	KindSchema Kind = "SchemaError"
	// KindArgument is an invalid, unknown, or unbound client argument.
	KindArgument Kind = "ArgumentError"
	// KindTranslation is a planner output the translator cannot render.
	KindTranslation Kind = "TranslationError"
	// KindDatabase is a connection or query failure from the graph store.
	KindDatabase Kind = "DatabaseError"
	// KindConsistency is an assembled value violating a non-null contract.
	KindConsistency Kind = "ConsistencyError"
	// KindTimeout is an exceeded request deadline.
	KindTimeout Kind = "TimeoutError"
	// KindParse is a client document that could not be lowered to a selection tree.
	KindParse Kind = "ParseError"
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error from a format string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it available through errors.Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// Public returns the kind and a caller-safe message for err.
// Unclassified errors are reported as internal translation failures.
func Public(err error) (Kind, string) {
	var classified *Error
	if !errors.As(err, &classified) {
		return KindTranslation, "internal error"
	}
	switch classified.Kind {
	case KindTranslation:
		return classified.Kind, "internal error while planning the query"
	case KindDatabase:
		return classified.Kind, "database request failed"
	case KindTimeout:
		return classified.Kind, "request deadline exceeded"
	default:
		return classified.Kind, classified.Message
	}
}
