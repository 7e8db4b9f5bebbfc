package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/models"
)

// Repository persists meetings, overrides, reminder events and
// unsubscribes with gorm.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStorageUnavailable, err)
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return storageErr("ping failed", err)
	}
	return nil
}

func (r *Repository) CreateMeeting(ctx context.Context, m domain.Meeting) error {
	row, err := toMeetingRow(m)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storageErr("failed to create meeting", err)
	}
	return nil
}

// SaveMeetingResult stores the outcome of transcription and extraction.
func (r *Repository) SaveMeetingResult(ctx context.Context, m domain.Meeting) error {
	row, err := toMeetingRow(m)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&models.Meeting{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"transcript_text":  row.TranscriptText,
		"commitments":      row.CommitmentsJSON,
		"commitment_count": row.CommitmentCount,
		"status":           row.Status,
		"failure_code":     row.FailureCode,
	})
	if result.Error != nil {
		return storageErr("failed to save meeting result", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownMeeting, m.ID)
	}
	return nil
}

func (r *Repository) GetMeeting(ctx context.Context, id string) (*domain.Meeting, error) {
	var row models.Meeting
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownMeeting, id)
	}
	if result.Error != nil {
		return nil, storageErr("failed to get meeting", result.Error)
	}
	m, err := toDomainMeeting(row)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMeeting removes a meeting together with its overrides and events.
func (r *Repository) DeleteMeeting(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", id).Delete(&models.CommitmentOverride{}).Error; err != nil {
			return err
		}
		if err := tx.Where("meeting_id = ?", id).Delete(&models.ReminderEvent{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.Meeting{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownMeeting, id)
		}
		return nil
	})
	if err == nil || errors.Is(err, apperrors.ErrUnknownMeeting) {
		return err
	}
	return storageErr("failed to delete meeting", err)
}

// HasMeetingFromMessage reports whether a mailbox message was already
// turned into a meeting.
func (r *Repository) HasMeetingFromMessage(ctx context.Context, messageID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Meeting{}).Where("source_message_id = ?", messageID).Count(&count).Error; err != nil {
		return false, storageErr("failed to look up source message", err)
	}
	return count > 0, nil
}

// ListEligibleMeetings returns processed meetings with at least one
// commitment. Rows that fail validation are logged and skipped.
func (r *Repository) ListEligibleMeetings(ctx context.Context) ([]domain.Meeting, error) {
	var rows []models.Meeting
	err := r.db.WithContext(ctx).
		Where("status = ? AND commitment_count > 0", string(domain.StatusDone)).
		Order("recorded_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("failed to list eligible meetings", err)
	}
	return toDomainMeetings(rows), nil
}

// ListMeetingsForEmail returns a recipient's most recent meetings.
func (r *Repository) ListMeetingsForEmail(ctx context.Context, email string, limit int) ([]domain.Meeting, error) {
	var rows []models.Meeting
	err := r.db.WithContext(ctx).
		Where("recipient_email = ?", strings.ToLower(email)).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("failed to list meetings", err)
	}
	return toDomainMeetings(rows), nil
}

func toDomainMeetings(rows []models.Meeting) []domain.Meeting {
	meetings := make([]domain.Meeting, 0, len(rows))
	for _, row := range rows {
		m, err := toDomainMeeting(row)
		if err != nil {
			logrus.WithField("meeting_id", row.ID).Warnf("Skipping malformed meeting row: %v", err)
			continue
		}
		meetings = append(meetings, m)
	}
	return meetings
}

func (r *Repository) GetOverrides(ctx context.Context, meetingID string) (map[int]commitment.Override, error) {
	var rows []models.CommitmentOverride
	if err := r.db.WithContext(ctx).Where("meeting_id = ?", meetingID).Find(&rows).Error; err != nil {
		return nil, storageErr("failed to get overrides", err)
	}
	out := make(map[int]commitment.Override, len(rows))
	for _, row := range rows {
		o, err := toDomainOverride(row)
		if err != nil {
			return nil, err
		}
		out[row.Ordinal] = o
	}
	return out, nil
}

// UpsertOverride applies patch to the override of (meetingID, ordinal),
// creating it on first use, and returns the new state.
func (r *Repository) UpsertOverride(ctx context.Context, meetingID string, ordinal int, patch commitment.Patch) (commitment.Override, error) {
	var next commitment.Override
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.CommitmentOverride{MeetingID: meetingID, Ordinal: ordinal}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var row models.CommitmentOverride
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("meeting_id = ? AND ordinal = ?", meetingID, ordinal).
			First(&row).Error
		if err != nil {
			return err
		}

		current, err := toDomainOverride(row)
		if err != nil {
			return err
		}
		next = current.Apply(patch)

		row.Done = next.Done
		row.DoneAt = next.DoneAt
		row.NotYetCount = next.NotYetCount
		row.RescheduledTo = nil
		if next.RescheduledTo != nil {
			s := next.RescheduledTo.String()
			row.RescheduledTo = &s
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrStorageUnavailable) {
			return commitment.Override{}, err
		}
		return commitment.Override{}, storageErr("failed to upsert override", err)
	}
	return next, nil
}

func (r *Repository) HasEvent(ctx context.Context, key domain.EventKey) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReminderEvent{}).
		Where("meeting_id = ? AND ordinal = ? AND reminder_type = ? AND scheduled_for = ?",
			key.MeetingID, key.Ordinal, string(key.Type), key.ScheduledFor.String()).
		Count(&count).Error
	if err != nil {
		return false, storageErr("failed to check reminder event", err)
	}
	return count > 0, nil
}

// ClaimEvent inserts the event row unless one already exists for its key.
// It reports false when another run got there first.
func (r *Repository) ClaimEvent(ctx context.Context, ev domain.ReminderEvent) (bool, error) {
	row := models.ReminderEvent{
		MeetingID:    ev.MeetingID,
		Ordinal:      ev.Ordinal,
		ReminderType: string(ev.Type),
		ScheduledFor: ev.ScheduledFor.String(),
		Recipient:    ev.Recipient,
		Status:       string(ev.Status),
		MessageID:    ev.MessageID,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, storageErr("failed to claim reminder event", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CompleteEvent records the final status of a claimed event.
func (r *Repository) CompleteEvent(ctx context.Context, key domain.EventKey, status domain.EventStatus, messageID string) error {
	err := eventScope(r.db.WithContext(ctx).Model(&models.ReminderEvent{}), key).
		Updates(map[string]interface{}{"status": string(status), "message_id": messageID}).Error
	if err != nil {
		return storageErr("failed to complete reminder event", err)
	}
	return nil
}

// ReleaseEvent drops a claim whose delivery failed so the next run retries.
// Rows that already reached a final status are left alone.
func (r *Repository) ReleaseEvent(ctx context.Context, key domain.EventKey) error {
	err := eventScope(r.db.WithContext(ctx), key).
		Where("status = ?", string(domain.EventClaimed)).
		Delete(&models.ReminderEvent{}).Error
	if err != nil {
		return storageErr("failed to release reminder event", err)
	}
	return nil
}

func eventScope(tx *gorm.DB, key domain.EventKey) *gorm.DB {
	return tx.Where("meeting_id = ? AND ordinal = ? AND reminder_type = ? AND scheduled_for = ?",
		key.MeetingID, key.Ordinal, string(key.Type), key.ScheduledFor.String())
}

// ListEvents returns reminder events, newest first, optionally limited to
// one scheduled date.
func (r *Repository) ListEvents(ctx context.Context, scheduledFor *civil.Date, offset, limit int) ([]domain.ReminderEvent, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.ReminderEvent{})
		if scheduledFor != nil {
			q = q.Where("scheduled_for = ?", scheduledFor.String())
		}
		return q
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, storageErr("failed to count reminder events", err)
	}
	var rows []models.ReminderEvent
	if err := scope().Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, storageErr("failed to list reminder events", err)
	}
	events := make([]domain.ReminderEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := toDomainEvent(row)
		if err != nil {
			logrus.WithField("event_id", row.ID).Warnf("Skipping malformed reminder event row: %v", err)
			continue
		}
		events = append(events, ev)
	}
	return events, total, nil
}

func (r *Repository) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Unsubscribe{}).Where("email = ?", strings.ToLower(email)).Count(&count).Error
	if err != nil {
		return false, storageErr("failed to check unsubscribe", err)
	}
	return count > 0, nil
}

// Unsubscribe adds email to the unsubscribe set. Repeated calls are no-ops.
func (r *Repository) Unsubscribe(ctx context.Context, email, reason string) error {
	row := models.Unsubscribe{Email: strings.ToLower(email), Reason: reason, CreatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return storageErr("failed to unsubscribe", err)
	}
	return nil
}
