package handler

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
)

// CreateMeetingRequest represents the request structure for creating a meeting
type CreateMeetingRequest struct {
	Title          string     `json:"title"`
	Timestamp      *time.Time `json:"timestamp"`
	RecipientEmail string     `json:"recipient_email" binding:"required,email"`
	TranscriptText string     `json:"transcript_text"`
}

// ExtractRequest asks for a preview extraction
type ExtractRequest struct {
	Text          string     `json:"text" binding:"required"`
	ReferenceTime *time.Time `json:"reference_time"`
}

// RunRemindersRequest triggers a reminder run
type RunRemindersRequest struct {
	Date   string `json:"date"`
	DryRun bool   `json:"dry_run"`
}

// CommitmentResponse represents one commitment with its current state
type CommitmentResponse struct {
	Ordinal        int         `json:"ordinal"`
	Person         string      `json:"person"`
	Task           string      `json:"task"`
	DeadlinePhrase *string     `json:"deadline_phrase"`
	ResolvedDate   *civil.Date `json:"resolved_date"`
	DueDate        *civil.Date `json:"due_date"`
	Done           bool        `json:"done"`
	DoneAt         *time.Time  `json:"done_at,omitempty"`
	Rescheduled    bool        `json:"rescheduled"`
	NotYetCount    int         `json:"not_yet_count"`
}

// MeetingResponse represents the response structure for meetings
type MeetingResponse struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Timestamp      time.Time            `json:"timestamp"`
	Status         string               `json:"status"`
	FailureCode    string               `json:"failure_code,omitempty"`
	RecipientEmail string               `json:"recipient_email"`
	TranscriptText string               `json:"transcript_text"`
	Commitments    []CommitmentResponse `json:"commitments"`
}

// ReminderEventResponse represents the response structure for reminder events
type ReminderEventResponse struct {
	MeetingID    string     `json:"meeting_id"`
	Ordinal      int        `json:"ordinal"`
	Type         string     `json:"type"`
	ScheduledFor civil.Date `json:"scheduled_for"`
	Recipient    string     `json:"recipient"`
	Status       string     `json:"status"`
	MessageID    string     `json:"message_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func toMeetingResponse(m domain.Meeting, effective []commitment.Effective) MeetingResponse {
	resp := MeetingResponse{
		ID:             m.ID,
		Title:          m.Title,
		Timestamp:      m.Timestamp,
		Status:         string(m.Status),
		FailureCode:    m.FailureCode,
		RecipientEmail: m.RecipientEmail,
		TranscriptText: m.TranscriptText,
		Commitments:    make([]CommitmentResponse, 0, len(effective)),
	}
	for _, e := range effective {
		resp.Commitments = append(resp.Commitments, CommitmentResponse{
			Ordinal:        e.Ordinal,
			Person:         e.Commitment.Person,
			Task:           e.Commitment.Task,
			DeadlinePhrase: e.Commitment.DeadlinePhrase,
			ResolvedDate:   e.Commitment.ResolvedDate,
			DueDate:        e.DueDate,
			Done:           e.Done,
			DoneAt:         e.DoneAt,
			Rescheduled:    e.Rescheduled,
			NotYetCount:    e.NotYetCount,
		})
	}
	return resp
}
