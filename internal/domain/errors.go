package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDirectoryNotFound   = errors.New("directory not found")
	ErrInvalidDomain       = errors.New("invalid domain")
	ErrDomainNotAccessible = errors.New("domain not accessible")
	ErrAttributeNotFound   = errors.New("attribute not found")
)

type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindConflict            ErrorKind = "conflict"
	KindPolicyDenied        ErrorKind = "policy_denied"
	KindUnresolvedReference ErrorKind = "unresolved_reference"
	KindStorage             ErrorKind = "storage"
)

// ImportError tags a failure with the operation that raised it and its kind,
// so callers can branch with errors.Is or errors.As instead of matching text.
type ImportError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *ImportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Is matches another *ImportError by kind, and by op when the target sets one.
func (e *ImportError) Is(target error) bool {
	t, ok := target.(*ImportError)
	if !ok || t.Kind == "" || t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

func NewImportError(op string, kind ErrorKind, err error) *ImportError {
	return &ImportError{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of the first ImportError in err's chain.
func KindOf(err error) ErrorKind {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

type UnresolvedReference struct {
	Kind ReferenceKind
	Hint string
}

// ReferenceError lists every reference of a playbook method that could not
// be resolved.
type ReferenceError struct {
	Method     string
	Unresolved []UnresolvedReference
}

func (e *ReferenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "playbook method '%s' contains below listed error(s):", e.Method)
	for _, u := range e.Unresolved {
		b.WriteString("\n * ")
		b.WriteString(u.Hint)
	}
	return b.String()
}

func (e *ReferenceError) Unwrap() error {
	return ErrAttributeNotFound
}

// Kinds returns the unresolved reference kinds in resolution order.
func (e *ReferenceError) Kinds() []ReferenceKind {
	kinds := make([]ReferenceKind, 0, len(e.Unresolved))
	for _, u := range e.Unresolved {
		kinds = append(kinds, u.Kind)
	}
	return kinds
}
