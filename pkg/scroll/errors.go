package scroll

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Open and Next return them wrapped in *Error; callers
// branch with errors.Is.
var (
	// ErrInvalidQuery means the query could not be parsed.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound means the query targets something that does not exist,
	// such as an unknown repository.
	ErrNotFound = errors.New("scroll target not found")

	// ErrUnknownStrategy means no strategy is registered under the name.
	ErrUnknownStrategy = errors.New("unknown scroll strategy")

	// ErrCursorClosed is returned by Next after Close.
	ErrCursorClosed = errors.New("scroll cursor closed")

	// ErrExpired is returned by Next when the cursor was idle longer than its
	// keep-alive.
	ErrExpired = errors.New("scroll cursor expired")
)

// Error is a scroll error.
type Error struct {
	Op  string // Operation that failed (e.g., "Open", "Next")
	Err error  // Underlying error
	Msg string // Additional context
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsQueryError reports whether err means the query itself is unusable: it
// cannot be parsed or its target does not exist.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrNotFound)
}
