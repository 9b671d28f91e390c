package bulk

import (
	"time"
)

// Status is the progress record of one bulk command.
//
// A full status (Delta == false) is authoritative and replaces whatever is
// stored. A delta status carries only the fields that changed; nil pointers
// and StateUnset mean "unchanged", and a delta must be merged into the stored
// status before it is persisted.
//
// Merge semantics per field:
//
//	overwrite:  State, Action, Username, SubmitTime, ScrollStartTime,
//	            ScrollEndTime, ProcessingStartTime, ProcessingEndTime,
//	            CompletedTime, Total, ErrorMessage, HasError
//	accumulate: Processed, ErrorCount
//
// Merging the same delta twice is idempotent for the overwrite fields only.
type Status struct {
	ID    string `json:"id"`
	Delta bool   `json:"delta,omitempty"`
	State State  `json:"state,omitempty"`

	Action   string `json:"action,omitempty"`
	Username string `json:"username,omitempty"`

	SubmitTime          *time.Time `json:"submitTime,omitempty"`
	ScrollStartTime     *time.Time `json:"scrollStartTime,omitempty"`
	ScrollEndTime       *time.Time `json:"scrollEndTime,omitempty"`
	ProcessingStartTime *time.Time `json:"processingStartTime,omitempty"`
	ProcessingEndTime   *time.Time `json:"processingEndTime,omitempty"`
	CompletedTime       *time.Time `json:"completedTime,omitempty"`

	Total      *int64 `json:"total,omitempty"`
	Processed  *int64 `json:"processed,omitempty"`
	ErrorCount *int64 `json:"errorCount,omitempty"`

	ErrorMessage *string `json:"errorMessage,omitempty"`
	HasError     *bool   `json:"hasError,omitempty"`
}

// NewStatus returns a full status for id in the given state.
func NewStatus(id string, state State) *Status {
	return &Status{ID: id, State: state}
}

// UnknownStatus is the sentinel stores return for ids they do not hold.
func UnknownStatus(id string) *Status {
	return NewStatus(id, StateUnknown)
}

// DeltaOf returns an empty delta for id.
func DeltaOf(id string) *Status {
	return &Status{ID: id, Delta: true}
}

// IsUnknown reports whether s is the store's "absent" sentinel.
func (s *Status) IsUnknown() bool {
	return s == nil || s.State == StateUnknown
}

// TotalCount returns Total or 0 when unset.
func (s *Status) TotalCount() int64 { return derefInt64(s.Total) }

// ProcessedCount returns Processed or 0 when unset.
func (s *Status) ProcessedCount() int64 { return derefInt64(s.Processed) }

// ErrorCountValue returns ErrorCount or 0 when unset.
func (s *Status) ErrorCountValue() int64 { return derefInt64(s.ErrorCount) }

// InError marks the status as failed with msg and bumps the error count.
func (s *Status) InError(msg string) {
	s.ErrorMessage = String(msg)
	s.HasError = Bool(true)
	s.ErrorCount = Int64(s.ErrorCountValue() + 1)
}

// Merge applies delta onto s and reports whether anything was applied.
//
// A delta arriving after s reached a terminal state is ignored, so a
// terminal status is applied exactly once. now stamps the completion time
// when processed documents catch up with the total.
func (s *Status) Merge(delta *Status, now time.Time) (bool, error) {
	if !delta.Delta {
		return false, ErrNotDelta
	}

	if s.State.IsTerminal() {
		return false, nil
	}

	if delta.State != StateUnset {
		s.State = delta.State
	}
	if delta.Action != "" {
		s.Action = delta.Action
	}
	if delta.Username != "" {
		s.Username = delta.Username
	}

	overwriteTime(&s.SubmitTime, delta.SubmitTime)
	overwriteTime(&s.ScrollStartTime, delta.ScrollStartTime)
	overwriteTime(&s.ScrollEndTime, delta.ScrollEndTime)
	overwriteTime(&s.ProcessingStartTime, delta.ProcessingStartTime)
	overwriteTime(&s.ProcessingEndTime, delta.ProcessingEndTime)
	overwriteTime(&s.CompletedTime, delta.CompletedTime)

	if delta.Total != nil {
		s.Total = Int64(*delta.Total)
	}
	if delta.Processed != nil {
		s.Processed = Int64(s.ProcessedCount() + *delta.Processed)
	}
	if delta.ErrorCount != nil {
		s.ErrorCount = Int64(s.ErrorCountValue() + *delta.ErrorCount)
	}
	if delta.ErrorMessage != nil {
		s.ErrorMessage = String(*delta.ErrorMessage)
	}
	if delta.HasError != nil {
		s.HasError = Bool(*delta.HasError)
	}

	s.checkCompleted(now)
	return true, nil
}

// checkCompleted moves a RUNNING status to COMPLETED once every scrolled
// document has been processed.
func (s *Status) checkCompleted(now time.Time) {
	if s.State != StateRunning || s.Total == nil {
		return
	}
	if s.ProcessedCount() < *s.Total {
		return
	}
	s.State = StateCompleted
	if s.ProcessingEndTime == nil {
		s.ProcessingEndTime = Time(now)
	}
	if s.CompletedTime == nil {
		s.CompletedTime = Time(now)
	}
}

// Clone returns a deep copy of s.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	c := *s
	c.SubmitTime = cloneTime(s.SubmitTime)
	c.ScrollStartTime = cloneTime(s.ScrollStartTime)
	c.ScrollEndTime = cloneTime(s.ScrollEndTime)
	c.ProcessingStartTime = cloneTime(s.ProcessingStartTime)
	c.ProcessingEndTime = cloneTime(s.ProcessingEndTime)
	c.CompletedTime = cloneTime(s.CompletedTime)
	if s.Total != nil {
		c.Total = Int64(*s.Total)
	}
	if s.Processed != nil {
		c.Processed = Int64(*s.Processed)
	}
	if s.ErrorCount != nil {
		c.ErrorCount = Int64(*s.ErrorCount)
	}
	if s.ErrorMessage != nil {
		c.ErrorMessage = String(*s.ErrorMessage)
	}
	if s.HasError != nil {
		c.HasError = Bool(*s.HasError)
	}
	return &c
}

func overwriteTime(dst **time.Time, src *time.Time) {
	if src != nil {
		*dst = Time(*src)
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return Time(*t)
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Time returns a pointer to v.
func Time(v time.Time) *time.Time { return &v }
