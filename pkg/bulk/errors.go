package bulk

import "errors"

var (
	// ErrInconsistentStatus is returned when a delta arrives for a command the
	// status store knows nothing about. Merging would fabricate state, so the
	// status stage stops instead of guessing.
	ErrInconsistentStatus = errors.New("status store has no base status for delta")

	// ErrNotDelta is returned when a full status is passed where a delta is
	// required.
	ErrNotDelta = errors.New("status is not a delta")

	// ErrDeltaNotPersistable is returned by stores asked to write a delta.
	ErrDeltaNotPersistable = errors.New("delta status cannot be persisted without a merge")

	// ErrUnknownAction is returned for actions missing from the registry.
	ErrUnknownAction = errors.New("unknown bulk action")

	// ErrUnknownCommand is returned when operating on a command id with no
	// status.
	ErrUnknownCommand = errors.New("unknown bulk command")

	// ErrCodecVersion is returned when decoding a record written with an
	// unsupported codec version.
	ErrCodecVersion = errors.New("unsupported codec version")

	// ErrAwaitTimeout is returned by Service.Await when the command did not
	// reach a terminal state in time.
	ErrAwaitTimeout = errors.New("timed out waiting for bulk command")
)
