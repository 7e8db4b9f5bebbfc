package models

import "time"

// Meeting represents a recorded meeting in the database
type Meeting struct {
	ID              string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Title           string    `json:"title" gorm:"type:varchar(255)"`
	RecordedAt      time.Time `json:"recorded_at" gorm:"not null;index"`
	TranscriptText  string    `json:"transcript_text" gorm:"type:text"`
	CommitmentsJSON string    `json:"commitments_json" gorm:"column:commitments;type:text"`
	CommitmentCount int       `json:"commitment_count" gorm:"not null;default:0"`
	Status          string    `json:"status" gorm:"type:varchar(20);not null;index"` // pending, transcribing, done, failed
	FailureCode     string    `json:"failure_code" gorm:"type:varchar(64)"`
	RecipientEmail  string    `json:"recipient_email" gorm:"type:varchar(255);not null;index"`
	SourceMessageID string    `json:"source_message_id" gorm:"type:varchar(255);index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for Meeting
func (Meeting) TableName() string {
	return "meetings"
}

// CommitmentOverride holds the mutable state of one commitment
type CommitmentOverride struct {
	ID            uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	MeetingID     string     `json:"meeting_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_override_key"`
	Ordinal       int        `json:"ordinal" gorm:"not null;uniqueIndex:idx_override_key"`
	Done          bool       `json:"done" gorm:"not null;default:false"`
	DoneAt        *time.Time `json:"done_at"`
	RescheduledTo *string    `json:"rescheduled_to" gorm:"type:varchar(10)"`
	NotYetCount   int        `json:"not_yet_count" gorm:"not null;default:0"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for CommitmentOverride
func (CommitmentOverride) TableName() string {
	return "commitment_overrides"
}

// ReminderEvent is one row of the append-only reminder log. The unique
// index is the idempotency guarantee.
type ReminderEvent struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MeetingID    string    `json:"meeting_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_reminder_key"`
	Ordinal      int       `json:"ordinal" gorm:"not null;uniqueIndex:idx_reminder_key"`
	ReminderType string    `json:"reminder_type" gorm:"type:varchar(32);not null;uniqueIndex:idx_reminder_key"`
	ScheduledFor string    `json:"scheduled_for" gorm:"type:varchar(10);not null;uniqueIndex:idx_reminder_key;index"`
	Recipient    string    `json:"recipient" gorm:"type:varchar(255);not null"`
	Status       string    `json:"status" gorm:"type:varchar(16);not null"` // claimed, sent, dry_run
	MessageID    string    `json:"message_id" gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for ReminderEvent
func (ReminderEvent) TableName() string {
	return "reminder_events"
}

// Unsubscribe records an address that must not receive reminders
type Unsubscribe struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Reason    string    `json:"reason" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Unsubscribe
func (Unsubscribe) TableName() string {
	return "unsubscribes"
}

// All lists every model for migrations
func All() []interface{} {
	return []interface{}{&Meeting{}, &CommitmentOverride{}, &ReminderEvent{}, &Unsubscribe{}}
}
