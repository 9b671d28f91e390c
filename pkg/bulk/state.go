// Package bulk holds the bulk action data model shared by the scroller and
// status stages: commands, status records and their delta merge rules,
// buckets, codecs, the action registry and the service facade used to
// submit and abort commands.
package bulk

// State is the lifecycle state of a bulk command.
//
// The normal path is UNKNOWN -> SCHEDULED -> SCROLLING_RUNNING -> RUNNING ->
// COMPLETED. COMPLETED is reached straight from SCROLLING_RUNNING when the
// query matched nothing. ABORTED is reachable from any non-terminal state.
// COMPLETED and ABORTED are terminal.
type State string

const (
	// StateUnset is only valid on a delta and means "state unchanged".
	StateUnset State = ""

	// StateUnknown is returned by stores for ids they hold nothing for.
	StateUnknown State = "UNKNOWN"

	StateScheduled        State = "SCHEDULED"
	StateScrollingRunning State = "SCROLLING_RUNNING"
	StateRunning          State = "RUNNING"
	StateCompleted        State = "COMPLETED"
	StateAborted          State = "ABORTED"
)

func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition may leave s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StateUnknown, StateScheduled, StateScrollingRunning, StateRunning,
		StateCompleted, StateAborted:
		return true
	}
	return false
}
