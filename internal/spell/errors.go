package spell

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engine and its collaborators.
var (
	// ErrBackendUnavailable indicates a check could not be completed by the
	// backend. The block is marked failed and is not retried automatically.
	ErrBackendUnavailable = errors.New("suggestion backend unavailable")

	// ErrDictionaryMissing indicates the local backend could not load a
	// dictionary bundle for a requested language.
	ErrDictionaryMissing = errors.New("dictionary missing")

	// ErrInvalidRange indicates offsets outside the block's text.
	ErrInvalidRange = errors.New("invalid range")

	// ErrDetachedBlock indicates a block is no longer part of the live document.
	ErrDetachedBlock = errors.New("block detached")
)

// BackendError describes a failed backend call.
type BackendError struct {
	// Backend names the backend variant ("languagetool", "local").
	Backend string

	// Status is the HTTP status code for networked backends, 0 otherwise.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// RangeError carries the offending offsets of an ErrInvalidRange.
type RangeError struct {
	Start, End, Limit int
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%d,%d) for length %d", e.Start, e.End, e.Limit)
}

// Is reports ErrInvalidRange equivalence.
func (e *RangeError) Is(target error) bool {
	return target == ErrInvalidRange
}
