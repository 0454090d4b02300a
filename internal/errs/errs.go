// Package errs defines the core engine's error taxonomy.
package errs

import "fmt"

// Kind classifies a core error so callers can branch with errors.Is
// instead of string-matching messages.
type Kind string

const (
	NotFound         Kind = "not_found"
	IllegalState     Kind = "illegal_state"
	TransportFailure Kind = "transport_failure"
	StorageFailure   Kind = "storage_failure"
	InvalidManifest  Kind = "invalid_manifest"
	InvalidInput     Kind = "invalid_input"
)

// Error wraps an underlying cause with a Kind so the Engine and CLI can
// decide how to surface it without inspecting message text.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "store.Add"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.NotFound) work by comparing the Kind sentinel
// stored on the Kind type itself against a wrapped *Error's Kind field.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// Error makes Kind itself usable as an errors.Is target (errs.NotFound acts
// like a sentinel error value).
func (k Kind) Error() string { return string(k) }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Wrap(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
