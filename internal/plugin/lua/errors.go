package lua

import (
	"errors"
	"fmt"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when execution exceeds its deadline.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrNoFilter is returned for a script without a filter function.
	ErrNoFilter = errors.New("script does not define filter")
)

// ScriptError ties a failure to the script that caused it.
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua script %s: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
