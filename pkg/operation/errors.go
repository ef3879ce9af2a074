package operation

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the coordinators.
var (
	// ErrNotFound indicates that a lookup which requires exactly one match
	// found none.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates that a lookup which requires exactly one match
	// found several.
	ErrAmbiguous = errors.New("ambiguous match")

	// ErrFailed indicates that a remote operation reached a failed terminal state.
	ErrFailed = errors.New("operation failed")
)

// Kind identifies the family of a remote operation.
type Kind string

const (
	KindGit       Kind = "git"
	KindExecution Kind = "execution"
	KindFlink     Kind = "flink"
)

// Error adds operation context to an error raised by a coordinator.
type Error struct {
	// Kind is the operation family.
	Kind Kind

	// ID is the remote operation id, if one was assigned.
	ID string

	// Op is the coordinator step that failed (e.g. "submit", "refresh").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches operation context to err. It returns nil when err is nil.
func Wrap(kind Kind, op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, ID: id, Op: op, Err: err}
}

// IsNotFound reports whether err indicates a missing match.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAmbiguous reports whether err indicates several matches.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguous)
}

// IsFailed reports whether err indicates a failed remote operation.
func IsFailed(err error) bool {
	return errors.Is(err, ErrFailed)
}
