package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/mailer"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/metrics"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/token"
)

type fakeStore struct {
	meetings     []domain.Meeting
	overrides    map[string]map[int]commitment.Override
	events       map[domain.EventKey]domain.ReminderEvent
	unsubscribed map[string]bool
	listErr      error
}

func newFakeStore(meetings ...domain.Meeting) *fakeStore {
	return &fakeStore{
		meetings:     meetings,
		overrides:    make(map[string]map[int]commitment.Override),
		events:       make(map[domain.EventKey]domain.ReminderEvent),
		unsubscribed: make(map[string]bool),
	}
}

func (s *fakeStore) ListEligibleMeetings(ctx context.Context) ([]domain.Meeting, error) {
	return s.meetings, s.listErr
}

func (s *fakeStore) GetOverrides(ctx context.Context, meetingID string) (map[int]commitment.Override, error) {
	return s.overrides[meetingID], nil
}

func (s *fakeStore) HasEvent(ctx context.Context, key domain.EventKey) (bool, error) {
	_, ok := s.events[key]
	return ok, nil
}

func (s *fakeStore) ClaimEvent(ctx context.Context, ev domain.ReminderEvent) (bool, error) {
	if _, ok := s.events[ev.EventKey]; ok {
		return false, nil
	}
	s.events[ev.EventKey] = ev
	return true, nil
}

func (s *fakeStore) CompleteEvent(ctx context.Context, key domain.EventKey, status domain.EventStatus, messageID string) error {
	ev := s.events[key]
	ev.Status = status
	ev.MessageID = messageID
	s.events[key] = ev
	return nil
}

func (s *fakeStore) ReleaseEvent(ctx context.Context, key domain.EventKey) error {
	if s.events[key].Status == domain.EventClaimed {
		delete(s.events, key)
	}
	return nil
}

func (s *fakeStore) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
	return s.unsubscribed[email], nil
}

func (s *fakeStore) setOverride(meetingID string, ordinal int, p commitment.Patch) {
	if s.overrides[meetingID] == nil {
		s.overrides[meetingID] = make(map[int]commitment.Override)
	}
	s.overrides[meetingID][ordinal] = s.overrides[meetingID][ordinal].Apply(p)
}

type fakeSender struct {
	sent   []mailer.Message
	failTo map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if f.failTo[msg.To] {
		return "", errors.New("smtp 451 try later")
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("<%d@test>", len(f.sent)), nil
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

// budgetMeeting is recorded on Monday 2026-02-16 with one dated and one
// undated commitment.
func budgetMeeting(id, email string) domain.Meeting {
	phrase := "Friday"
	due := day(2026, time.February, 20)
	return domain.Meeting{
		ID:        id,
		Title:     "Budget sync",
		Timestamp: time.Date(2026, time.February, 16, 10, 0, 0, 0, time.UTC),
		Commitments: []commitment.Commitment{
			{Person: commitment.PersonSpeaker, Task: "send the budget", DeadlinePhrase: &phrase, ResolvedDate: &due},
			{Person: "Alex", Task: "review it"},
		},
		Status:         domain.StatusDone,
		RecipientEmail: email,
	}
}

func newTestEngine(t *testing.T, store Store, sender mailer.Sender) *Engine {
	t.Helper()
	codec, err := token.NewCodec("test-secret", false)
	require.NoError(t, err)
	links := token.NewLinks(codec, "https://mm.test", time.Hour, time.Hour)
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	return NewEngine(store, sender, links, m, Options{SendTimeout: time.Second, Location: time.UTC})
}

func TestNextDaySummary(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)

	report, err := engine.Run(context.Background(), day(2026, time.February, 17), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Sent)
	assert.Empty(t, report.Errors)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "owner@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Budget sync")
	assert.Contains(t, msg.Body, "Speaker: send the budget by Friday\n")
	assert.Contains(t, msg.Body, "Alex: review it\n")
	assert.Contains(t, msg.Body, "Done: https://mm.test/a/")
	assert.Contains(t, msg.Body, "Not yet: https://mm.test/a/")
	assert.NotContains(t, msg.Body, "Reschedule:")

	lines := strings.Split(strings.TrimRight(msg.Body, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[len(lines)-2], "Unsubscribe: https://mm.test/u/"))
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "View your meetings: https://mm.test/inbox/"))

	key := domain.EventKey{MeetingID: "m1", Ordinal: domain.SummaryOrdinal, Type: domain.ReminderNextDaySummary, ScheduledFor: day(2026, time.February, 17)}
	require.Contains(t, store.events, key)
	assert.Equal(t, domain.EventSent, store.events[key].Status)
	assert.Equal(t, "<1@test>", store.events[key].MessageID)
}

func TestRunTwiceSendsOnce(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)
	target := day(2026, time.February, 17)

	_, err := engine.Run(context.Background(), target, false)
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), target, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, sender.sent, 1)
}

func TestDueTomorrowAndOverdue(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)

	report, err := engine.Run(context.Background(), day(2026, time.February, 19), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Due tomorrow: send the budget", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "Not yet: ")

	// nothing is due on the due date itself
	report, err = engine.Run(context.Background(), day(2026, time.February, 20), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)

	report, err = engine.Run(context.Background(), day(2026, time.February, 21), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Overdue: send the budget", sender.sent[1].Subject)
	assert.Contains(t, sender.sent[1].Body, "Reschedule: https://mm.test/a/")
	assert.NotContains(t, sender.sent[1].Body, "Not yet:")
}

func TestDoneCommitmentGetsNoDueTomorrow(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	store.setOverride("m1", 0, commitment.MarkDone(time.Now()))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)

	report, err := engine.Run(context.Background(), day(2026, time.February, 19), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Empty(t, sender.sent)
}

func TestSummaryListsOnlyOpenCommitments(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	store.setOverride("m1", 1, commitment.MarkDone(time.Now()))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)

	_, err := engine.Run(context.Background(), day(2026, time.February, 17), false)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].Body, "Alex: review it")

	// all done: no summary at all
	store2 := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	store2.setOverride("m1", 0, commitment.MarkDone(time.Now()))
	store2.setOverride("m1", 1, commitment.MarkDone(time.Now()))
	sender2 := &fakeSender{}
	report, err := newTestEngine(t, store2, sender2).Run(context.Background(), day(2026, time.February, 17), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Empty(t, sender2.sent)
}

func TestRescheduleMovesCadence(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	store.setOverride("m1", 0, commitment.Reschedule(day(2026, time.February, 25)))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)
	ctx := context.Background()

	for _, d := range []civil.Date{day(2026, time.February, 19), day(2026, time.February, 21)} {
		report, err := engine.Run(ctx, d, false)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Sent, d.String())
	}

	report, err := engine.Run(ctx, day(2026, time.February, 24), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, "Due tomorrow: send the budget", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "Speaker: send the budget by Wed Feb 25")

	report, err = engine.Run(ctx, day(2026, time.February, 26), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, "Overdue: send the budget", sender.sent[1].Subject)
}

func TestDeliveryFailureIsIsolatedAndRetried(t *testing.T) {
	store := newFakeStore(
		budgetMeeting("m1", "broken@example.com"),
		budgetMeeting("m2", "owner@example.com"),
	)
	sender := &fakeSender{failTo: map[string]bool{"broken@example.com": true}}
	engine := newTestEngine(t, store, sender)
	target := day(2026, time.February, 17)

	report, err := engine.Run(context.Background(), target, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "m1", report.Errors[0].MeetingID)
	assert.Equal(t, "delivery_failure", report.Errors[0].Kind)
	assert.Equal(t, domain.ReminderNextDaySummary, report.Errors[0].Type)

	failedKey := domain.EventKey{MeetingID: "m1", Ordinal: domain.SummaryOrdinal, Type: domain.ReminderNextDaySummary, ScheduledFor: target}
	assert.NotContains(t, store.events, failedKey)

	sender.failTo = nil
	report, err = engine.Run(context.Background(), target, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Skipped)
}

func TestDryRunRecordsWithoutSending(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)
	target := day(2026, time.February, 17)

	report, err := engine.Run(context.Background(), target, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Sent)
	assert.Empty(t, sender.sent)

	key := domain.EventKey{MeetingID: "m1", Ordinal: domain.SummaryOrdinal, Type: domain.ReminderNextDaySummary, ScheduledFor: target}
	assert.Equal(t, domain.EventDryRun, store.events[key].Status)

	report, err = engine.Run(context.Background(), target, true)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Skipped)
}

func TestUnsubscribedRecipientIsSkipped(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	store.unsubscribed["owner@example.com"] = true
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)

	report, err := engine.Run(context.Background(), day(2026, time.February, 17), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Attempted)
	assert.Empty(t, sender.sent)
}

func TestStorageFailuresAreFatal(t *testing.T) {
	engine := newTestEngine(t, nil, &fakeSender{})
	_, err := engine.Run(context.Background(), day(2026, time.February, 17), false)
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	store := newFakeStore()
	store.listErr = fmt.Errorf("%w: connection refused", apperrors.ErrStorageUnavailable)
	report, err := newTestEngine(t, store, &fakeSender{}).Run(context.Background(), day(2026, time.February, 17), false)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Nil(t, report)
}

func TestMeetingDateUsesEngineLocation(t *testing.T) {
	// 23:30 UTC on the 16th is already the 17th in Berlin
	m := budgetMeeting("m1", "owner@example.com")
	m.Timestamp = time.Date(2026, time.February, 16, 23, 30, 0, 0, time.UTC)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	effective := commitment.Merge(m.Commitments, nil)
	assert.Empty(t, plan(m, effective, day(2026, time.February, 17), berlin))
	obs := plan(m, effective, day(2026, time.February, 18), berlin)
	require.Len(t, obs, 1)
	assert.Equal(t, domain.ReminderNextDaySummary, obs[0].key.Type)
}

// racingStore loses every claim to a concurrent run that has not yet
// written its event when HasEvent is checked.
type racingStore struct {
	*fakeStore
	claims int
}

func (s *racingStore) ClaimEvent(ctx context.Context, ev domain.ReminderEvent) (bool, error) {
	s.claims++
	return false, nil
}

func TestLostClaimIsSkipped(t *testing.T) {
	store := &racingStore{fakeStore: newFakeStore(budgetMeeting("m1", "owner@example.com"))}
	sender := &fakeSender{}
	engine := newTestEngine(t, store, sender)

	report, err := engine.Run(context.Background(), day(2026, time.February, 17), false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.claims)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Sent)
	assert.Empty(t, report.Errors)
	assert.Empty(t, sender.sent)
}

type blockingSender struct {
	calls int
}

func (b *blockingSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSendTimeoutReleasesClaim(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	sender := &blockingSender{}
	codec, err := token.NewCodec("test-secret", false)
	require.NoError(t, err)
	links := token.NewLinks(codec, "https://mm.test", time.Hour, time.Hour)
	engine := NewEngine(store, sender, links, metrics.NewMetricsWith(prometheus.NewRegistry()), Options{SendTimeout: 20 * time.Millisecond})
	target := day(2026, time.February, 17)

	start := time.Now()
	report, err := engine.Run(context.Background(), target, false)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, 0, report.Sent)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "delivery_failure", report.Errors[0].Kind)
	assert.Contains(t, report.Errors[0].Message, context.DeadlineExceeded.Error())

	key := domain.EventKey{MeetingID: "m1", Ordinal: domain.SummaryOrdinal, Type: domain.ReminderNextDaySummary, ScheduledFor: target}
	exists, err := store.HasEvent(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEngineWithoutMetrics(t *testing.T) {
	store := newFakeStore(budgetMeeting("m1", "owner@example.com"))
	sender := &fakeSender{}
	codec, err := token.NewCodec("test-secret", false)
	require.NoError(t, err)
	links := token.NewLinks(codec, "https://mm.test", time.Hour, time.Hour)
	engine := NewEngine(store, sender, links, nil, Options{})

	var report *Report
	require.NotPanics(t, func() {
		report, err = engine.Run(context.Background(), day(2026, time.February, 17), false)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	sender.failTo = map[string]bool{"owner@example.com": true}
	require.NotPanics(t, func() {
		report, err = engine.Run(context.Background(), day(2026, time.February, 19), false)
	})
	require.NoError(t, err)
	assert.Len(t, report.Errors, 1)
}
