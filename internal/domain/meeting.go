// Package domain holds the storage-independent meeting and reminder types
// shared by the engine, the action resolver and the repository.
package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
)

// ProcessingStatus tracks a meeting through transcription and extraction.
type ProcessingStatus string

const (
	StatusPending      ProcessingStatus = "pending"
	StatusTranscribing ProcessingStatus = "transcribing"
	StatusDone         ProcessingStatus = "done"
	StatusFailed       ProcessingStatus = "failed"
)

// Valid reports whether s is a known status.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusTranscribing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Meeting is a recorded meeting and the commitments extracted from it.
type Meeting struct {
	ID             string
	Title          string
	Timestamp      time.Time
	TranscriptText string
	Commitments    []commitment.Commitment
	Status         ProcessingStatus
	FailureCode    string
	RecipientEmail string
	// SourceMessageID is the mailbox message the meeting was created from.
	SourceMessageID string
}

// HasReminders reports whether the meeting can produce reminders, ignoring
// the recipient's unsubscribe state.
func (m Meeting) HasReminders() bool {
	return m.Status == StatusDone && len(m.Commitments) > 0 && m.RecipientEmail != ""
}

// Date is the calendar day of the meeting in loc.
func (m Meeting) Date(loc *time.Location) civil.Date {
	return civil.DateOf(m.Timestamp.In(loc))
}

// ReminderType names a cadence rule.
type ReminderType string

const (
	ReminderNextDaySummary ReminderType = "next_day_summary"
	ReminderDueTomorrow    ReminderType = "due_tomorrow"
	ReminderOverdue        ReminderType = "overdue"
)

// SummaryOrdinal stands in for the ordinal of whole-meeting reminders.
const SummaryOrdinal = -1

// EventKey identifies one reminder instance. At most one event row exists
// per key.
type EventKey struct {
	MeetingID    string
	Ordinal      int
	Type         ReminderType
	ScheduledFor civil.Date
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", k.MeetingID, k.Ordinal, k.Type, k.ScheduledFor)
}

// EventStatus is the state of a reminder event row.
type EventStatus string

const (
	EventClaimed EventStatus = "claimed"
	EventSent    EventStatus = "sent"
	EventDryRun  EventStatus = "dry_run"
)

// ReminderEvent is one row of the reminder log.
type ReminderEvent struct {
	EventKey
	Recipient string
	Status    EventStatus
	MessageID string
	CreatedAt time.Time
}
