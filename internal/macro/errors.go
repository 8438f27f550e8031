package macro

import (
	"errors"
	"fmt"
)

// Domain errors for the macro package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, macro.ErrMacroNotFound) {
//	    // handle not found case
//	}
var (
	// ErrMacroNotFound is returned when a macro ID does not exist.
	ErrMacroNotFound = errors.New("macro: not found")

	// ErrMacroExists is returned when creating a macro with an ID or slug that already exists.
	ErrMacroExists = errors.New("macro: already exists")

	// ErrMacroDisabled is returned when attempting to run a disabled macro.
	ErrMacroDisabled = errors.New("macro: disabled")

	// ErrInvalidMacro is returned when macro validation fails.
	ErrInvalidMacro = errors.New("macro: invalid")

	// ErrInvalidName is returned when a macro name is empty or too long.
	ErrInvalidName = errors.New("macro: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("macro: invalid slug")

	// ErrInvalidSettings is returned when an item's settings fail validation.
	ErrInvalidSettings = errors.New("macro: invalid settings")

	// ErrTooManyItems is returned when a list exceeds the item limit.
	ErrTooManyItems = errors.New("macro: too many items")

	// ErrItemNotFound is returned when an item ID is not in the list.
	ErrItemNotFound = errors.New("macro: item not found")

	// ErrInvalidPosition is returned when a position is outside the list.
	ErrInvalidPosition = errors.New("macro: invalid position")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("macro: run not found")

	// ErrRunNotActive is returned when cancelling a run that is not in progress.
	ErrRunNotActive = errors.New("macro: run not active")

	// ErrUnknownType is returned when a type tag is not registered.
	ErrUnknownType = errors.New("macro: unknown type")

	// ErrDuplicateType is returned when a type tag is registered twice.
	ErrDuplicateType = errors.New("macro: duplicate type")

	// ErrInvalidDescriptor is returned when a type descriptor is incomplete.
	ErrInvalidDescriptor = errors.New("macro: invalid type descriptor")

	// ErrInvalidDocument is returned when a macro document cannot be parsed.
	ErrInvalidDocument = errors.New("macro: invalid document")
)

// Structural errors are detected while building the command tree, before
// any step runs. All of them match ErrStructural with errors.Is.
var (
	// ErrStructural is the parent of every tree build error.
	ErrStructural = errors.New("macro: structural error")

	// ErrUnpairedBracket is returned when a bracket-start has no matching end.
	ErrUnpairedBracket = fmt.Errorf("%w: unpaired bracket", ErrStructural)

	// ErrUnmatchedEnd is returned when a bracket-end has no matching start.
	ErrUnmatchedEnd = fmt.Errorf("%w: unmatched end", ErrStructural)

	// ErrEmptyBlock is returned when a bracket pair encloses no items.
	ErrEmptyBlock = fmt.Errorf("%w: empty block", ErrStructural)

	// ErrBreakOutsideLoop is returned when a break has no enclosing loop.
	ErrBreakOutsideLoop = fmt.Errorf("%w: break outside of a loop", ErrStructural)
)

// BuildError locates a structural error in the flat list.
type BuildError struct {
	Position int
	Type     string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v (%s at position %d)", e.Err, e.Type, e.Position)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
