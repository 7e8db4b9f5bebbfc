// Package action applies the state changes requested through signed email
// links and backs the recipient's inbox view.
package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/metrics"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/token"
)

// RescheduleOffsetDays is how far past max(due date, today) the reschedule
// form suggests.
const RescheduleOffsetDays = 3

// InboxLimit caps the number of meetings shown in the inbox view.
const InboxLimit = 50

// Store is the storage the resolver reads and writes.
type Store interface {
	GetMeeting(ctx context.Context, id string) (*domain.Meeting, error)
	GetOverrides(ctx context.Context, meetingID string) (map[int]commitment.Override, error)
	UpsertOverride(ctx context.Context, meetingID string, ordinal int, patch commitment.Patch) (commitment.Override, error)
	ListMeetingsForEmail(ctx context.Context, email string, limit int) ([]domain.Meeting, error)
	Unsubscribe(ctx context.Context, email, reason string) error
}

// ResultKind tells the caller what to render.
type ResultKind string

const (
	ResultConfirmation ResultKind = "confirmation"
	ResultForm         ResultKind = "form"
	ResultError        ResultKind = "error"
)

// Result is the outcome of resolving a link.
type Result struct {
	Kind ResultKind
	// Message is safe to show to the recipient.
	Message string
	// Err is the classified failure for ResultError.
	Err           error
	Action        token.Action
	MeetingID     string
	Commitment    *commitment.Effective
	SuggestedDate *civil.Date
	Today         civil.Date
}

// Resolver verifies link tokens and applies the transitions they carry.
type Resolver struct {
	store   Store
	codec   *token.Codec
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
}

// NewResolver creates a resolver computing "today" in loc.
func NewResolver(store Store, codec *token.Codec, m *metrics.Metrics, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{store: store, codec: codec, metrics: m, loc: loc, now: time.Now}
}

// WithClock replaces the resolver's clock.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) today() civil.Date {
	return civil.DateOf(r.now().In(r.loc))
}

// ResolveActionToken applies the action carried by tok. newDate is only read
// for reschedule links; when empty a form with a suggested date is returned.
func (r *Resolver) ResolveActionToken(ctx context.Context, tok, newDate string) Result {
	claims, err := r.codec.VerifyAction(tok)
	if err != nil {
		return r.reject(err)
	}
	log := logrus.WithFields(logrus.Fields{
		"meeting_id": claims.MeetingID,
		"ordinal":    claims.PromiseIndex,
		"action":     claims.Action,
	})

	meeting, eff, err := r.load(ctx, claims.MeetingID, claims.PromiseIndex)
	if err != nil {
		log.Warnf("Action could not be resolved: %v", err)
		return errorResult(err)
	}

	today := r.today()
	res := Result{Action: claims.Action, MeetingID: meeting.ID, Today: today}

	var patch commitment.Patch
	switch claims.Action {
	case token.ActionDone:
		patch = commitment.MarkDone(r.now())
	case token.ActionNotYet:
		patch = commitment.MarkNotYet()
	case token.ActionReschedule:
		if strings.TrimSpace(newDate) == "" {
			suggested := SuggestDate(eff.DueDate, today)
			res.Kind = ResultForm
			res.Commitment = &eff
			res.SuggestedDate = &suggested
			res.Message = fmt.Sprintf("Pick a new date for: %s", eff.Commitment.Task)
			return res
		}
		to, err := ParseRescheduleDate(newDate, today)
		if err != nil {
			res.Kind = ResultForm
			res.Err = err
			res.Commitment = &eff
			suggested := SuggestDate(eff.DueDate, today)
			res.SuggestedDate = &suggested
			res.Message = apperrors.UserMessage(err)
			return res
		}
		patch = commitment.Reschedule(to)
	default:
		return errorResult(apperrors.ErrMalformedToken)
	}

	override, err := r.store.UpsertOverride(ctx, meeting.ID, claims.PromiseIndex, patch)
	if err != nil {
		log.Errorf("Failed to apply action: %v", err)
		return errorResult(err)
	}
	eff = commitment.Merge(meeting.Commitments, map[int]commitment.Override{claims.PromiseIndex: override})[claims.PromiseIndex]
	if r.metrics != nil {
		r.metrics.ActionsApplied.WithLabelValues(string(claims.Action)).Inc()
	}
	log.Info("Action applied")

	res.Kind = ResultConfirmation
	res.Commitment = &eff
	switch claims.Action {
	case token.ActionDone:
		res.Message = fmt.Sprintf("Marked as done: %s", eff.Commitment.Task)
	case token.ActionNotYet:
		res.Message = fmt.Sprintf("No problem, we will keep reminding you about: %s", eff.Commitment.Task)
	case token.ActionReschedule:
		res.Message = fmt.Sprintf("Moved to %s: %s", eff.DueDate.In(time.UTC).Format("Mon Jan 2"), eff.Commitment.Task)
	}
	return res
}

// ConsumeUnsubscribeToken adds the token's email to the unsubscribe set.
// Consuming the same token again succeeds.
func (r *Resolver) ConsumeUnsubscribeToken(ctx context.Context, tok string) Result {
	claims, err := r.codec.VerifyUnsubscribe(tok)
	if err != nil {
		return r.reject(err)
	}
	if r.store == nil {
		return errorResult(apperrors.ErrNotConfigured)
	}
	if err := r.store.Unsubscribe(ctx, claims.Email, "link"); err != nil {
		logrus.Errorf("Failed to unsubscribe: %v", err)
		return errorResult(err)
	}
	logrus.WithField("email", claims.Email).Info("Recipient unsubscribed")
	return Result{
		Kind:    ResultConfirmation,
		Message: fmt.Sprintf("%s will no longer receive reminders.", claims.Email),
		Today:   r.today(),
	}
}

// InboxMeeting is one meeting in the inbox view.
type InboxMeeting struct {
	Meeting     domain.Meeting
	Commitments []commitment.Effective
}

// Inbox is everything a recipient sees behind an inbox link.
type Inbox struct {
	Email    string
	Meetings []InboxMeeting
}

// OpenInbox lists the meetings addressed to the token's email with the
// effective state of their commitments.
func (r *Resolver) OpenInbox(ctx context.Context, tok string) (*Inbox, error) {
	claims, err := r.codec.VerifyInbox(tok)
	if err != nil {
		r.countRejection(err)
		return nil, err
	}
	if r.store == nil {
		return nil, apperrors.ErrNotConfigured
	}

	meetings, err := r.store.ListMeetingsForEmail(ctx, claims.Email, InboxLimit)
	if err != nil {
		return nil, err
	}
	inbox := &Inbox{Email: claims.Email, Meetings: make([]InboxMeeting, 0, len(meetings))}
	for _, m := range meetings {
		overrides, err := r.store.GetOverrides(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		inbox.Meetings = append(inbox.Meetings, InboxMeeting{
			Meeting:     m,
			Commitments: commitment.Merge(m.Commitments, overrides),
		})
	}
	return inbox, nil
}

// ToggleFromInbox flips the done state of a commitment from the inbox view.
// Meetings addressed to someone else are reported as unknown.
func (r *Resolver) ToggleFromInbox(ctx context.Context, tok, meetingID string, ordinal int) (commitment.Effective, error) {
	claims, err := r.codec.VerifyInbox(tok)
	if err != nil {
		r.countRejection(err)
		return commitment.Effective{}, err
	}

	meeting, _, err := r.load(ctx, meetingID, ordinal)
	if err != nil {
		return commitment.Effective{}, err
	}
	if !strings.EqualFold(meeting.RecipientEmail, claims.Email) {
		return commitment.Effective{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownMeeting, meetingID)
	}

	overrides, err := r.store.GetOverrides(ctx, meetingID)
	if err != nil {
		return commitment.Effective{}, err
	}
	override, err := r.store.UpsertOverride(ctx, meetingID, ordinal, commitment.Toggle(overrides[ordinal], r.now()))
	if err != nil {
		return commitment.Effective{}, err
	}
	if r.metrics != nil {
		r.metrics.ActionsApplied.WithLabelValues("toggle").Inc()
	}
	return commitment.Merge(meeting.Commitments, map[int]commitment.Override{ordinal: override})[ordinal], nil
}

// load fetches the meeting and resolves ordinal against its current list.
func (r *Resolver) load(ctx context.Context, meetingID string, ordinal int) (*domain.Meeting, commitment.Effective, error) {
	if r.store == nil {
		return nil, commitment.Effective{}, apperrors.ErrNotConfigured
	}
	meeting, err := r.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, commitment.Effective{}, err
	}
	if ordinal < 0 || ordinal >= len(meeting.Commitments) {
		return nil, commitment.Effective{}, fmt.Errorf("%w: %s/%d", apperrors.ErrCommitmentNotFound, meetingID, ordinal)
	}
	overrides, err := r.store.GetOverrides(ctx, meetingID)
	if err != nil {
		return nil, commitment.Effective{}, err
	}
	return meeting, commitment.Merge(meeting.Commitments, overrides)[ordinal], nil
}

func (r *Resolver) reject(err error) Result {
	r.countRejection(err)
	return errorResult(err)
}

func (r *Resolver) countRejection(err error) {
	if r.metrics != nil {
		r.metrics.TokenRejections.WithLabelValues(apperrors.Kind(err)).Inc()
	}
	logrus.Debugf("Rejected link token: %v", err)
}

func errorResult(err error) Result {
	return Result{Kind: ResultError, Err: err, Message: apperrors.UserMessage(err)}
}

// SuggestDate is the default offered by the reschedule form:
// max(due, today) plus RescheduleOffsetDays.
func SuggestDate(due *civil.Date, today civil.Date) civil.Date {
	base := today
	if due != nil && due.After(today) {
		base = *due
	}
	return base.AddDays(RescheduleOffsetDays)
}

// ParseRescheduleDate reads a YYYY-MM-DD date that must not be before today.
func ParseRescheduleDate(raw string, today civil.Date) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(raw))
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidDate, raw)
	}
	if d.Before(today) {
		return civil.Date{}, fmt.Errorf("%w: %s", apperrors.ErrPastDate, d)
	}
	return d, nil
}
