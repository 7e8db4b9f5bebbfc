// Package reminder decides which reminders are due on a date, renders them
// and delivers each one at most once.
package reminder

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/mailer"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/metrics"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/token"
)

// Store is the storage the engine reads and writes.
type Store interface {
	ListEligibleMeetings(ctx context.Context) ([]domain.Meeting, error)
	GetOverrides(ctx context.Context, meetingID string) (map[int]commitment.Override, error)
	HasEvent(ctx context.Context, key domain.EventKey) (bool, error)
	ClaimEvent(ctx context.Context, ev domain.ReminderEvent) (bool, error)
	CompleteEvent(ctx context.Context, key domain.EventKey, status domain.EventStatus, messageID string) error
	ReleaseEvent(ctx context.Context, key domain.EventKey) error
	IsUnsubscribed(ctx context.Context, email string) (bool, error)
}

// Options tunes an Engine.
type Options struct {
	// SendTimeout bounds a single transport call.
	SendTimeout time.Duration
	// Location is the timezone meeting dates are computed in.
	Location *time.Location
}

// Engine runs the reminder cadence for a target date.
type Engine struct {
	store       Store
	sender      mailer.Sender
	links       *token.Links
	metrics     *metrics.Metrics
	sendTimeout time.Duration
	loc         *time.Location
}

// NewEngine creates a reminder engine. A nil m records into a private
// registry.
func NewEngine(store Store, sender mailer.Sender, links *token.Links, m *metrics.Metrics, opts Options) *Engine {
	if m == nil {
		m = metrics.NewMetricsWith(prometheus.NewRegistry())
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 20 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		store:       store,
		sender:      sender,
		links:       links,
		metrics:     m,
		sendTimeout: opts.SendTimeout,
		loc:         opts.Location,
	}
}

// Location returns the timezone the engine computes dates in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today returns the current date in the engine's timezone.
func (e *Engine) Today() civil.Date {
	return civil.DateOf(time.Now().In(e.loc))
}

// ItemError describes one reminder that could not be delivered.
type ItemError struct {
	MeetingID string              `json:"meeting_id"`
	Ordinal   int                 `json:"ordinal"`
	Type      domain.ReminderType `json:"type,omitempty"`
	Kind      string              `json:"kind"`
	Message   string              `json:"message"`
}

// Report summarises one run.
type Report struct {
	TargetDate civil.Date  `json:"target_date"`
	DryRun     bool        `json:"dry_run"`
	Scanned    int         `json:"scanned"`
	Attempted  int         `json:"attempted"`
	Sent       int         `json:"sent"`
	Skipped    int         `json:"skipped"`
	Errors     []ItemError `json:"errors"`
}

type obligation struct {
	key   domain.EventKey
	items []commitment.Effective
}

// plan returns the reminders meeting owes on target. It does not consult
// the event log.
func plan(meeting domain.Meeting, effective []commitment.Effective, target civil.Date, loc *time.Location) []obligation {
	open := commitment.OpenOnly(effective)
	if len(open) == 0 {
		return nil
	}

	var obs []obligation
	if target == meeting.Date(loc).AddDays(1) {
		obs = append(obs, obligation{
			key:   domain.EventKey{MeetingID: meeting.ID, Ordinal: domain.SummaryOrdinal, Type: domain.ReminderNextDaySummary, ScheduledFor: target},
			items: open,
		})
	}
	for _, c := range open {
		if c.DueDate == nil {
			continue
		}
		var typ domain.ReminderType
		switch target {
		case c.DueDate.AddDays(-1):
			typ = domain.ReminderDueTomorrow
		case c.DueDate.AddDays(1):
			typ = domain.ReminderOverdue
		default:
			continue
		}
		obs = append(obs, obligation{
			key:   domain.EventKey{MeetingID: meeting.ID, Ordinal: c.Ordinal, Type: typ, ScheduledFor: target},
			items: []commitment.Effective{c},
		})
	}
	return obs
}

// Run finds every reminder due on target and delivers it. Failing to list
// meetings aborts the run; any other failure is recorded against its item.
func (e *Engine) Run(ctx context.Context, target civil.Date, dryRun bool) (*Report, error) {
	if e.store == nil || e.sender == nil || e.links == nil {
		return nil, apperrors.ErrNotConfigured
	}

	startTime := time.Now()
	defer func() {
		e.metrics.RunDuration.Observe(time.Since(startTime).Seconds())
	}()

	meetings, err := e.store.ListEligibleMeetings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	report := &Report{TargetDate: target, DryRun: dryRun, Errors: []ItemError{}}
	unsubscribed := make(map[string]bool)

	for _, meeting := range meetings {
		report.Scanned++
		log := logrus.WithFields(logrus.Fields{"meeting_id": meeting.ID, "target_date": target.String()})

		if !meeting.HasReminders() {
			continue
		}

		unsub, ok := unsubscribed[meeting.RecipientEmail]
		if !ok {
			unsub, err = e.store.IsUnsubscribed(ctx, meeting.RecipientEmail)
			if err != nil {
				report.addError(domain.EventKey{MeetingID: meeting.ID, Ordinal: domain.SummaryOrdinal}, err)
				log.Errorf("Failed to check unsubscribe state: %v", err)
				continue
			}
			unsubscribed[meeting.RecipientEmail] = unsub
		}
		if unsub {
			log.Debug("Recipient unsubscribed, skipping meeting")
			continue
		}

		overrides, err := e.store.GetOverrides(ctx, meeting.ID)
		if err != nil {
			report.addError(domain.EventKey{MeetingID: meeting.ID, Ordinal: domain.SummaryOrdinal}, err)
			log.Errorf("Failed to load overrides: %v", err)
			continue
		}

		effective := commitment.Merge(meeting.Commitments, overrides)
		for _, ob := range plan(meeting, effective, target, e.loc) {
			e.deliver(ctx, meeting, ob, dryRun, report)
		}
	}

	e.metrics.LastRunScanned.Set(float64(report.Scanned))
	logrus.WithFields(logrus.Fields{
		"target_date": target.String(),
		"dry_run":     dryRun,
		"scanned":     report.Scanned,
		"attempted":   report.Attempted,
		"sent":        report.Sent,
		"skipped":     report.Skipped,
		"errors":      len(report.Errors),
	}).Info("Reminder run completed")

	return report, nil
}

func (e *Engine) deliver(ctx context.Context, meeting domain.Meeting, ob obligation, dryRun bool, report *Report) {
	key := ob.key
	log := logrus.WithFields(logrus.Fields{"event": key.String(), "dry_run": dryRun})

	exists, err := e.store.HasEvent(ctx, key)
	if err != nil {
		report.addError(key, err)
		log.Errorf("Failed to check reminder event: %v", err)
		return
	}
	if exists {
		report.Skipped++
		e.metrics.RemindersSkipped.WithLabelValues(string(key.Type)).Inc()
		return
	}

	content, err := e.render(meeting, ob)
	if err != nil {
		report.addError(key, err)
		e.metrics.RemindersFailed.WithLabelValues(string(key.Type)).Inc()
		log.Errorf("Failed to render reminder: %v", err)
		return
	}

	report.Attempted++
	status := domain.EventClaimed
	if dryRun {
		status = domain.EventDryRun
	}
	claimed, err := e.store.ClaimEvent(ctx, domain.ReminderEvent{
		EventKey:  key,
		Recipient: meeting.RecipientEmail,
		Status:    status,
	})
	if err != nil {
		report.addError(key, err)
		log.Errorf("Failed to claim reminder event: %v", err)
		return
	}
	if !claimed {
		// another run got there first
		report.Skipped++
		e.metrics.RemindersSkipped.WithLabelValues(string(key.Type)).Inc()
		return
	}

	if dryRun {
		report.Sent++
		e.metrics.RemindersSent.WithLabelValues(string(key.Type)).Inc()
		log.Info("Dry run, reminder not delivered")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	messageID, err := e.sender.Send(sendCtx, mailer.Message{
		To:      meeting.RecipientEmail,
		Subject: content.Subject,
		Body:    content.Body,
	})
	cancel()
	if err != nil {
		if relErr := e.store.ReleaseEvent(ctx, key); relErr != nil {
			log.Errorf("Failed to release reminder event: %v", relErr)
		}
		report.addError(key, fmt.Errorf("%w: %v", apperrors.ErrDeliveryFailure, err))
		e.metrics.RemindersFailed.WithLabelValues(string(key.Type)).Inc()
		log.Errorf("Failed to deliver reminder: %v", err)
		return
	}

	if err := e.store.CompleteEvent(ctx, key, domain.EventSent, messageID); err != nil {
		// the claimed row still blocks a resend
		log.Warnf("Failed to mark reminder event sent: %v", err)
	}
	report.Sent++
	e.metrics.RemindersSent.WithLabelValues(string(key.Type)).Inc()
	log.WithField("message_id", messageID).Info("Reminder delivered")
}

func (e *Engine) render(meeting domain.Meeting, ob obligation) (Content, error) {
	footer, err := e.footer(meeting.RecipientEmail)
	if err != nil {
		return Content{}, err
	}

	switch ob.key.Type {
	case domain.ReminderNextDaySummary:
		items := make([]Item, 0, len(ob.items))
		for _, c := range ob.items {
			item, err := e.item(meeting.ID, c, token.ActionDone, token.ActionNotYet)
			if err != nil {
				return Content{}, err
			}
			items = append(items, item)
		}
		return SummaryContent(meeting.Title, meeting.Date(e.loc), items, footer), nil
	case domain.ReminderDueTomorrow:
		c := ob.items[0]
		item, err := e.item(meeting.ID, c, token.ActionDone, token.ActionNotYet)
		if err != nil {
			return Content{}, err
		}
		return DueTomorrowContent(c.Commitment.Task, item, footer), nil
	case domain.ReminderOverdue:
		c := ob.items[0]
		item, err := e.item(meeting.ID, c, token.ActionDone, token.ActionReschedule)
		if err != nil {
			return Content{}, err
		}
		return OverdueContent(c.Commitment.Task, item, footer), nil
	default:
		return Content{}, fmt.Errorf("unknown reminder type %q", ob.key.Type)
	}
}

var linkLabels = map[token.Action]string{
	token.ActionDone:       "Done",
	token.ActionNotYet:     "Not yet",
	token.ActionReschedule: "Reschedule",
}

func (e *Engine) item(meetingID string, c commitment.Effective, actions ...token.Action) (Item, error) {
	item := Item{Line: CommitmentLine(c)}
	for _, a := range actions {
		u, err := e.links.Action(meetingID, c.Ordinal, a)
		if err != nil {
			return Item{}, err
		}
		item.Links = append(item.Links, Link{Label: linkLabels[a], URL: u})
	}
	return item, nil
}

func (e *Engine) footer(email string) (Footer, error) {
	unsub, err := e.links.Unsubscribe(email)
	if err != nil {
		return Footer{}, err
	}
	inbox, err := e.links.Inbox(email)
	if err != nil {
		return Footer{}, err
	}
	return Footer{UnsubscribeURL: unsub, InboxURL: inbox}, nil
}

func (r *Report) addError(key domain.EventKey, err error) {
	r.Errors = append(r.Errors, ItemError{
		MeetingID: key.MeetingID,
		Ordinal:   key.Ordinal,
		Type:      key.Type,
		Kind:      apperrors.Kind(err),
		Message:   err.Error(),
	})
}
