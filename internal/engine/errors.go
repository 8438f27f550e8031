package engine

import (
	"errors"
	"fmt"
)

// Domain errors for the engine package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, engine.ErrWaitTimeout) {
//	    // the awaited image never appeared
//	}
var (
	// ErrBreakOutsideLoop is returned when a Broken outcome reaches the root.
	ErrBreakOutsideLoop = errors.New("engine: break outside of a loop")

	// ErrOperationFailed is used when a node reports Failed without an error.
	ErrOperationFailed = errors.New("engine: operation failed")

	// ErrNoDelegate is returned when a leaf needs a collaborator that was not supplied.
	ErrNoDelegate = errors.New("engine: delegate not configured")

	// ErrTargetNotFound is returned when an image target cannot be located.
	ErrTargetNotFound = errors.New("engine: target not found")

	// ErrWaitTimeout is returned when a wait condition is not met in time.
	ErrWaitTimeout = errors.New("engine: wait timed out")

	// ErrCommandFailed is returned when an external command exits non-zero.
	ErrCommandFailed = errors.New("engine: command failed")

	// ErrPanic is returned when a node or delegate panics.
	ErrPanic = errors.New("engine: panic recovered")

	// ErrInvalidOutcome is returned when a node reports an unknown outcome.
	ErrInvalidOutcome = errors.New("engine: invalid outcome")
)

// NodeError ties an operation error to the node that produced it.
//
// The engine wraps an error exactly once, at the node where it first
// appears. Composites forward it unchanged so the error notification is
// sent only for the originating node.
type NodeError struct {
	Node NodeInfo
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s at position %d: %v", e.Node.Type, e.Node.Position, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
