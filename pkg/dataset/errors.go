package dataset

import (
	"errors"
	"fmt"
)

// Sentinel errors for dataset operations.
var (
	// ErrNotFound indicates the requested path does not exist.
	ErrNotFound = errors.New("dataset path not found")

	// ErrExists indicates the local download target already exists.
	ErrExists = errors.New("local path already exists")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnavailable indicates the backing service is unavailable or throttling.
	ErrUnavailable = errors.New("dataset backend unavailable")
)

// StoreError wraps backend-specific errors with context.
type StoreError struct {
	// Op is the operation that failed (e.g., "Exists", "Download").
	Op string

	// Backend is the store backend.
	Backend Backend

	// Path is the dataset path, if applicable.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing path.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsExists returns true if the error indicates the local target exists.
func IsExists(err error) bool {
	return errors.Is(err, ErrExists)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
