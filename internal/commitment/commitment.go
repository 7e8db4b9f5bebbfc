// Package commitment extracts structured commitments from meeting
// transcripts and merges them with their mutable override state.
package commitment

import (
	"time"

	"cloud.google.com/go/civil"
)

// Person placeholders used when no name can be attributed.
const (
	PersonSpeaker = "Speaker"
	PersonWe      = "We"
	PersonUnknown = "Unknown"
)

// Commitment is a single "X will do Y by Z" item. Its identity is its
// position in the owning meeting's list.
type Commitment struct {
	Person         string      `json:"person"`
	Task           string      `json:"task"`
	DeadlinePhrase *string     `json:"deadlinePhrase"`
	ResolvedDate   *civil.Date `json:"resolvedDate"`
	// Done is a completion flag persisted together with the commitment by
	// older writers. Overrides take precedence but never clear it.
	Done bool `json:"done,omitempty"`
}

// Override is the mutable state layered on top of an extracted commitment.
type Override struct {
	Done          bool        `json:"done"`
	DoneAt        *time.Time  `json:"doneAt"`
	RescheduledTo *civil.Date `json:"rescheduledTo"`
	NotYetCount   int         `json:"notYetCount"`
}

// Patch describes a single mutation of an Override.
type Patch struct {
	// SetDone sets Done; DoneAt is copied along with it.
	SetDone *bool
	DoneAt  *time.Time
	// RescheduleTo sets RescheduledTo.
	RescheduleTo *civil.Date
	// ClearReschedule removes RescheduledTo.
	ClearReschedule bool
	// IncrementNotYet bumps NotYetCount.
	IncrementNotYet bool
}

// MarkDone returns the patch applied by a "done" action.
func MarkDone(at time.Time) Patch {
	done := true
	at = at.UTC()
	return Patch{SetDone: &done, DoneAt: &at, ClearReschedule: true}
}

// MarkNotYet returns the patch applied by a "not yet" action.
func MarkNotYet() Patch {
	done := false
	return Patch{SetDone: &done, IncrementNotYet: true}
}

// Reschedule returns the patch applied by a reschedule. It reopens the
// commitment.
func Reschedule(to civil.Date) Patch {
	done := false
	return Patch{SetDone: &done, RescheduleTo: &to}
}

// Toggle returns the patch applied by the inbox done toggle.
func Toggle(current Override, at time.Time) Patch {
	if current.Done {
		done := false
		return Patch{SetDone: &done}
	}
	return MarkDone(at)
}

// Apply returns o with p applied.
func (o Override) Apply(p Patch) Override {
	if p.SetDone != nil {
		o.Done = *p.SetDone
		if o.Done && p.DoneAt != nil {
			at := *p.DoneAt
			o.DoneAt = &at
		} else if !o.Done {
			o.DoneAt = nil
		}
	}
	if p.ClearReschedule {
		o.RescheduledTo = nil
	}
	if p.RescheduleTo != nil {
		to := *p.RescheduleTo
		o.RescheduledTo = &to
	}
	if p.IncrementNotYet {
		o.NotYetCount++
	}
	return o
}

// Effective is a commitment as seen by users and by the reminder engine.
type Effective struct {
	Ordinal     int
	Commitment  Commitment
	Done        bool
	DoneAt      *time.Time
	DueDate     *civil.Date
	Rescheduled bool
	NotYetCount int
}

// Open reports whether the commitment still needs doing.
func (e Effective) Open() bool { return !e.Done }

// DeadlineLabel is the human readable deadline: the reschedule date when one
// is set, otherwise the phrase from the transcript.
func (e Effective) DeadlineLabel() string {
	if e.Rescheduled && e.DueDate != nil {
		return e.DueDate.In(time.UTC).Format("Mon Jan 2")
	}
	if e.Commitment.DeadlinePhrase != nil {
		return *e.Commitment.DeadlinePhrase
	}
	return ""
}

// Merge combines commitments with the overrides recorded against their
// ordinals. The result has the same length and order as commitments.
func Merge(commitments []Commitment, overrides map[int]Override) []Effective {
	out := make([]Effective, len(commitments))
	for i, c := range commitments {
		e := Effective{Ordinal: i, Commitment: c, Done: c.Done, DueDate: c.ResolvedDate}
		if o, ok := overrides[i]; ok {
			e.Done = o.Done || c.Done
			e.DoneAt = o.DoneAt
			e.NotYetCount = o.NotYetCount
			if o.RescheduledTo != nil {
				e.DueDate = o.RescheduledTo
				e.Rescheduled = true
			}
		}
		out[i] = e
	}
	return out
}

// OpenOnly filters effective commitments down to the ones not yet done.
func OpenOnly(items []Effective) []Effective {
	var open []Effective
	for _, e := range items {
		if e.Open() {
			open = append(open, e)
		}
	}
	return open
}
