package variables

import "errors"

// Domain errors for the variables package.
var (
	// ErrNotFound is returned when a variable does not exist.
	ErrNotFound = errors.New("variables: not found")

	// ErrInvalidName is returned when a variable name is empty or malformed.
	ErrInvalidName = errors.New("variables: invalid name")

	// ErrValueTooLarge is returned when a value exceeds MaxValueLength.
	ErrValueTooLarge = errors.New("variables: value too large")
)
