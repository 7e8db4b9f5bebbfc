package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/models"
)

func toMeetingRow(m domain.Meeting) (models.Meeting, error) {
	if m.ID == "" {
		return models.Meeting{}, fmt.Errorf("meeting id is required")
	}
	if !m.Status.Valid() {
		return models.Meeting{}, fmt.Errorf("invalid meeting status %q", m.Status)
	}
	commitments := m.Commitments
	if commitments == nil {
		commitments = []commitment.Commitment{}
	}
	raw, err := json.Marshal(commitments)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("failed to encode commitments: %w", err)
	}
	return models.Meeting{
		ID:              m.ID,
		Title:           m.Title,
		RecordedAt:      m.Timestamp.UTC(),
		TranscriptText:  m.TranscriptText,
		CommitmentsJSON: string(raw),
		CommitmentCount: len(commitments),
		Status:          string(m.Status),
		FailureCode:     m.FailureCode,
		RecipientEmail:  strings.ToLower(m.RecipientEmail),
		SourceMessageID: m.SourceMessageID,
	}, nil
}

// toDomainMeeting validates a stored row instead of trusting its shape.
func toDomainMeeting(row models.Meeting) (domain.Meeting, error) {
	status := domain.ProcessingStatus(row.Status)
	if !status.Valid() {
		return domain.Meeting{}, malformed("meeting %s has unknown status %q", row.ID, row.Status)
	}
	if row.RecordedAt.IsZero() {
		return domain.Meeting{}, malformed("meeting %s has no timestamp", row.ID)
	}
	commitments, err := decodeCommitments(row.CommitmentsJSON)
	if err != nil {
		return domain.Meeting{}, malformed("meeting %s: %v", row.ID, err)
	}
	if status == domain.StatusDone && row.RecipientEmail == "" {
		return domain.Meeting{}, malformed("meeting %s has no recipient", row.ID)
	}
	return domain.Meeting{
		ID:              row.ID,
		Title:           row.Title,
		Timestamp:       row.RecordedAt,
		TranscriptText:  row.TranscriptText,
		Commitments:     commitments,
		Status:          status,
		FailureCode:     row.FailureCode,
		RecipientEmail:  row.RecipientEmail,
		SourceMessageID: row.SourceMessageID,
	}, nil
}

func decodeCommitments(raw string) ([]commitment.Commitment, error) {
	if strings.TrimSpace(raw) == "" {
		return []commitment.Commitment{}, nil
	}
	var out []commitment.Commitment
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid commitments: %w", err)
	}
	for i, c := range out {
		if strings.TrimSpace(c.Person) == "" || strings.TrimSpace(c.Task) == "" {
			return nil, fmt.Errorf("commitment %d is missing person or task", i)
		}
		if c.ResolvedDate != nil && !c.ResolvedDate.IsValid() {
			return nil, fmt.Errorf("commitment %d has an invalid date", i)
		}
	}
	if out == nil {
		out = []commitment.Commitment{}
	}
	return out, nil
}

func toDomainOverride(row models.CommitmentOverride) (commitment.Override, error) {
	o := commitment.Override{
		Done:        row.Done,
		DoneAt:      row.DoneAt,
		NotYetCount: row.NotYetCount,
	}
	if row.RescheduledTo != nil && *row.RescheduledTo != "" {
		d, err := civil.ParseDate(*row.RescheduledTo)
		if err != nil {
			return commitment.Override{}, malformed("override %s/%d has invalid reschedule date %q", row.MeetingID, row.Ordinal, *row.RescheduledTo)
		}
		o.RescheduledTo = &d
	}
	return o, nil
}

func toDomainEvent(row models.ReminderEvent) (domain.ReminderEvent, error) {
	d, err := civil.ParseDate(row.ScheduledFor)
	if err != nil {
		return domain.ReminderEvent{}, fmt.Errorf("invalid scheduled date %q", row.ScheduledFor)
	}
	return domain.ReminderEvent{
		EventKey: domain.EventKey{
			MeetingID:    row.MeetingID,
			Ordinal:      row.Ordinal,
			Type:         domain.ReminderType(row.ReminderType),
			ScheduledFor: d,
		},
		Recipient: row.Recipient,
		Status:    domain.EventStatus(row.Status),
		MessageID: row.MessageID,
		CreatedAt: row.CreatedAt,
	}, nil
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: malformed row: %s", apperrors.ErrStorageUnavailable, fmt.Sprintf(format, args...))
}
