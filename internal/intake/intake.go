// Package intake turns transcripts into meetings, either from the
// speech-to-text worker or from a mailbox.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/metrics"
)

// MinTranscriptChars is the shortest transcript accepted as speech.
const MinTranscriptChars = 8

// Failure codes stored on meetings that could not be processed.
const (
	CodeUnclearAudio        = "unclear_audio"
	CodeTranscriptionFailed = "transcription_failed"
)

// Sources label ingested meetings in metrics.
const (
	SourceAPI     = "api"
	SourceMailbox = "mailbox"
	SourceWorker  = "transcription"
)

// TranscriptionResult is the payload posted by the speech-to-text worker.
type TranscriptionResult struct {
	OK             bool   `json:"ok"`
	MeetingID      string `json:"meeting_id"`
	TranscriptText string `json:"transcript_text"`
	ErrorCode      string `json:"error_code"`
	Message        string `json:"message"`
}

// Store is the storage intake writes meetings to.
type Store interface {
	CreateMeeting(ctx context.Context, m domain.Meeting) error
	GetMeeting(ctx context.Context, id string) (*domain.Meeting, error)
	SaveMeetingResult(ctx context.Context, m domain.Meeting) error
	HasMeetingFromMessage(ctx context.Context, messageID string) (bool, error)
}

// NewMeeting describes a meeting to create.
type NewMeeting struct {
	Title           string    `json:"title"`
	Timestamp       time.Time `json:"timestamp"`
	RecipientEmail  string    `json:"recipient_email" binding:"required,email"`
	TranscriptText  string    `json:"transcript_text"`
	SourceMessageID string    `json:"-"`
}

// Service creates meetings and runs extraction on their transcripts.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
}

// NewService creates an intake service. Deadlines are resolved against the
// meeting time in loc, the timezone reminders are scheduled in.
func NewService(store Store, m *metrics.Metrics, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, metrics: m, loc: loc, now: time.Now}
}

// CreateMeeting stores a new meeting. With a transcript it is extracted
// right away; without one it waits for a transcription result, except for
// mailbox meetings where the body is all there will ever be.
func (s *Service) CreateMeeting(ctx context.Context, in NewMeeting, source string) (*domain.Meeting, error) {
	if s.store == nil {
		return nil, apperrors.ErrNotConfigured
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	m := domain.Meeting{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(in.Title),
		Timestamp:       ts,
		RecipientEmail:  strings.ToLower(strings.TrimSpace(in.RecipientEmail)),
		SourceMessageID: in.SourceMessageID,
		Status:          domain.StatusPending,
		Commitments:     []commitment.Commitment{},
	}
	if strings.TrimSpace(in.TranscriptText) != "" || source == SourceMailbox {
		m = ApplyTranscription(m, TranscriptionResult{OK: true, MeetingID: m.ID, TranscriptText: in.TranscriptText}, s.loc)
	}

	if err := s.store.CreateMeeting(ctx, m); err != nil {
		return nil, err
	}
	s.count(source, m.Status)
	logrus.WithFields(logrus.Fields{
		"meeting_id":  m.ID,
		"source":      source,
		"status":      m.Status,
		"commitments": len(m.Commitments),
	}).Info("Meeting created")
	return &m, nil
}

// RecordTranscription applies a speech-to-text result to its meeting.
// Meetings that are already done keep their commitments: reminder links
// address commitments by position.
func (s *Service) RecordTranscription(ctx context.Context, res TranscriptionResult) (*domain.Meeting, error) {
	if s.store == nil {
		return nil, apperrors.ErrNotConfigured
	}
	m, err := s.store.GetMeeting(ctx, res.MeetingID)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.StatusDone {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyProcessed, m.ID)
	}
	updated := ApplyTranscription(*m, res, s.loc)
	if err := s.store.SaveMeetingResult(ctx, updated); err != nil {
		return nil, err
	}
	s.count(SourceWorker, updated.Status)
	logrus.WithFields(logrus.Fields{
		"meeting_id":   updated.ID,
		"status":       updated.Status,
		"failure_code": updated.FailureCode,
		"commitments":  len(updated.Commitments),
	}).Info("Transcription recorded")
	return &updated, nil
}

// ApplyTranscription returns m updated with the worker's result. Usable
// text is extracted against the meeting time in loc; anything else marks
// the meeting failed.
func ApplyTranscription(m domain.Meeting, res TranscriptionResult, loc *time.Location) domain.Meeting {
	text := strings.TrimSpace(res.TranscriptText)
	switch {
	case !res.OK:
		m.Status = domain.StatusFailed
		m.FailureCode = res.ErrorCode
		if m.FailureCode == "" {
			m.FailureCode = CodeTranscriptionFailed
		}
		m.Commitments = []commitment.Commitment{}
	case utf8.RuneCountInString(text) < MinTranscriptChars:
		m.Status = domain.StatusFailed
		m.FailureCode = CodeUnclearAudio
		m.TranscriptText = text
		m.Commitments = []commitment.Commitment{}
	default:
		m.Status = domain.StatusDone
		m.FailureCode = ""
		m.TranscriptText = text
		m.Commitments = commitment.Extract(text, m.Timestamp.In(loc))
	}
	return m
}

// PollMailbox turns every new message in src into a meeting. Messages seen
// before are skipped.
func (s *Service) PollMailbox(ctx context.Context, src Source) (int, error) {
	if s.store == nil {
		return 0, apperrors.ErrNotConfigured
	}
	messages, err := src.FetchNew(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch transcripts: %w", err)
	}

	created := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		log := logrus.WithField("message_id", msg.MessageID)
		if msg.MessageID != "" {
			seen, err := s.store.HasMeetingFromMessage(ctx, msg.MessageID)
			if err != nil {
				return created, err
			}
			if seen {
				log.Debug("Message already ingested, skipping")
				continue
			}
		}
		if msg.From == "" {
			log.Warn("Message has no sender, skipping")
			continue
		}

		_, err := s.CreateMeeting(ctx, NewMeeting{
			Title:           msg.Subject,
			Timestamp:       msg.Date,
			RecipientEmail:  msg.From,
			TranscriptText:  msg.Text(),
			SourceMessageID: msg.MessageID,
		}, SourceMailbox)
		if err != nil {
			log.Errorf("Failed to create meeting from message: %v", err)
			continue
		}
		created++
	}
	return created, nil
}

func (s *Service) count(source string, status domain.ProcessingStatus) {
	if s.metrics != nil {
		s.metrics.MeetingsIngested.WithLabelValues(source, string(status)).Inc()
	}
}
