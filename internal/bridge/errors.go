package bridge

import "errors"

// Domain-specific errors for bridge requests.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotStarted is returned when a request is made before Start.
	ErrNotStarted = errors.New("bridge: client not started")

	// ErrTimeout is returned when a bridge does not answer in time.
	ErrTimeout = errors.New("bridge: request timed out")

	// ErrRejected is returned when a bridge answers with ok=false.
	ErrRejected = errors.New("bridge: request rejected")

	// ErrBadResponse is returned when a response cannot be decoded.
	ErrBadResponse = errors.New("bridge: malformed response")
)
