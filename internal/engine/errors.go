package engine

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning indicates a second Start call on an execution that
// already has a live control loop. There is exactly one loop per execution
// id at a time.
var ErrAlreadyRunning = errors.New("execution already running")

// ErrNotRunning indicates a Cancel call for an execution with no live
// control loop.
var ErrNotRunning = errors.New("execution not running")

// ValidationError indicates a bad execution or template graph, rejected
// before any step runs. CyclicDependencyError surfaces as a ValidationError
// wrapping graph.ErrCycleDetected.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
