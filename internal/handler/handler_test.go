package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/action"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/config"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/db"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/intake"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/mailer"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/metrics"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/reminder"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/repository"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/scheduler"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/token"
)

const (
	testAdminKey = "admin-secret"
	testBaseURL  = "https://mm.test"
)

type testEnv struct {
	router *gin.Engine
	repo   *repository.Repository
	links  *token.Links
}

func newTestEnv(t *testing.T, adminKey string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	repo := repository.New(gdb)

	codec, err := token.NewCodec("test-secret", false)
	require.NoError(t, err)
	links := token.NewLinks(codec, testBaseURL, time.Hour, time.Hour)
	m := metrics.NewMetricsWith(prometheus.NewRegistry())

	engine := reminder.NewEngine(repo, &mailer.LogSender{From: "mm@example.com"}, links, m, reminder.Options{})
	sched := scheduler.New(config.ReminderConfig{Cron: "0 0 8 * * *"}, config.IntakeConfig{}, engine, nil, nil)
	h := NewHandlers(repo, intake.NewService(repo, m, time.UTC), action.NewResolver(repo, codec, m, time.UTC), sched, adminKey)

	r := gin.New()
	r.SetHTMLTemplate(Templates())
	h.SetupRoutes(r)
	return &testEnv{router: r, repo: repo, links: links}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AdminKeyHeader, testAdminKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// seed stores a processed meeting recorded on Monday 2026-02-16.
func (e *testEnv) seed(t *testing.T, id string) domain.Meeting {
	t.Helper()
	phrase := "Friday"
	due := civil.Date{Year: 2026, Month: time.February, Day: 20}
	m := domain.Meeting{
		ID:        id,
		Title:     "Budget sync",
		Timestamp: time.Date(2026, time.February, 16, 10, 0, 0, 0, time.UTC),
		Commitments: []commitment.Commitment{
			{Person: commitment.PersonSpeaker, Task: "send the budget", DeadlinePhrase: &phrase, ResolvedDate: &due},
		},
		Status:         domain.StatusDone,
		RecipientEmail: "owner@example.com",
	}
	require.NoError(t, e.repo.CreateMeeting(context.Background(), m))
	return m
}

func pathOf(t *testing.T, link string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(link, testBaseURL))
	return strings.TrimPrefix(link, testBaseURL)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, testAdminKey)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil)
	req.Header.Set(AdminKeyHeader, "wrong")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/scheduler/status", nil).Code)

	closed := newTestEnv(t, "")
	assert.Equal(t, http.StatusForbidden, closed.do(http.MethodGet, "/api/v1/scheduler/status", nil).Code)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	w := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "stopped", resp.Metrics["scheduler"])
}

func TestMeetingLifecycle(t *testing.T) {
	env := newTestEnv(t, testAdminKey)

	w := env.do(http.MethodPost, "/api/v1/meetings", gin.H{
		"title":           "Budget sync",
		"timestamp":       "2026-02-16T10:00:00Z",
		"recipient_email": "Owner@Example.com",
		"transcript_text": "I will send the budget by Friday.",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created MeetingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "done", created.Status)
	assert.Equal(t, "owner@example.com", created.RecipientEmail)
	require.Len(t, created.Commitments, 1)
	assert.Equal(t, "send the budget", created.Commitments[0].Task)
	assert.Equal(t, &civil.Date{Year: 2026, Month: time.February, Day: 20}, created.Commitments[0].DueDate)

	w = env.do(http.MethodGet, "/api/v1/meetings/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/meetings/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/meetings/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "unknown_meeting", errResp.Error)
}

func TestCreateMeetingRequiresEmail(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	w := env.do(http.MethodPost, "/api/v1/meetings", gin.H{"title": "No recipient"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordTranscriptionFailure(t *testing.T) {
	env := newTestEnv(t, testAdminKey)

	w := env.do(http.MethodPost, "/api/v1/meetings", gin.H{"recipient_email": "owner@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created MeetingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)

	w = env.do(http.MethodPost, "/api/v1/meetings/"+created.ID+"/transcription", gin.H{"ok": false})
	require.Equal(t, http.StatusOK, w.Code)
	var updated MeetingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "failed", updated.Status)
	assert.Equal(t, intake.CodeTranscriptionFailed, updated.FailureCode)
}

func TestExtractPreview(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	w := env.do(http.MethodPost, "/api/v1/extract", gin.H{
		"text":           "I will send the budget by Friday.",
		"reference_time": "2026-02-16T10:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Commitments []commitment.Commitment `json:"commitments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Commitments, 1)
	assert.Equal(t, &civil.Date{Year: 2026, Month: time.February, Day: 20}, resp.Commitments[0].ResolvedDate)
}

func TestDoneLink(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	env.seed(t, "m1")

	link, err := env.links.Action("m1", 0, token.ActionDone)
	require.NoError(t, err)

	w := env.do(http.MethodGet, pathOf(t, link), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Marked as done: send the budget")

	overrides, err := env.repo.GetOverrides(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, overrides[0].Done)

	// clicking again is harmless
	w = env.do(http.MethodGet, pathOf(t, link), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRescheduleLink(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	env.seed(t, "m1")

	link, err := env.links.Action("m1", 0, token.ActionReschedule)
	require.NoError(t, err)
	path := pathOf(t, link)

	w := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="date"`)
	assert.Contains(t, w.Body.String(), "Pick a new date for: send the budget")

	w = env.postForm(path, url.Values{"date": {"2000-01-01"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Please pick today or a later date.")

	w = env.postForm(path, url.Values{"date": {"not a date"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.postForm(path, url.Values{"date": {"2099-03-02"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Moved to")

	overrides, err := env.repo.GetOverrides(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, &civil.Date{Year: 2099, Month: time.March, Day: 2}, overrides[0].RescheduledTo)
}

func TestLinkErrors(t *testing.T) {
	env := newTestEnv(t, testAdminKey)

	w := env.do(http.MethodGet, "/a/not-a-token", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "This link is no longer valid.")

	link, err := env.links.Action("missing", 0, token.ActionDone)
	require.NoError(t, err)
	w = env.do(http.MethodGet, pathOf(t, link), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "This meeting could not be found.")

	env.seed(t, "m1")
	link, err = env.links.Action("m1", 5, token.ActionDone)
	require.NoError(t, err)
	w = env.do(http.MethodGet, pathOf(t, link), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "This task could not be found.")
}

func TestUnsubscribeLink(t *testing.T) {
	env := newTestEnv(t, testAdminKey)

	link, err := env.links.Unsubscribe("owner@example.com")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodGet, pathOf(t, link), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "owner@example.com will no longer receive reminders.")
	}

	unsubscribed, err := env.repo.IsUnsubscribed(context.Background(), "owner@example.com")
	require.NoError(t, err)
	assert.True(t, unsubscribed)
}

func TestInboxToggle(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	env.seed(t, "m1")

	link, err := env.links.Inbox("owner@example.com")
	require.NoError(t, err)
	inboxPath := pathOf(t, link)

	w := env.do(http.MethodGet, inboxPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Budget sync")
	assert.Contains(t, w.Body.String(), "send the budget")

	w = env.postForm(inboxPath+"/meetings/m1/commitments/0/toggle", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, inboxPath, w.Header().Get("Location"))

	overrides, err := env.repo.GetOverrides(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, overrides[0].Done)

	other, err := env.links.Inbox("someone@example.com")
	require.NoError(t, err)
	w = env.postForm(pathOf(t, other)+"/meetings/m1/commitments/0/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.postForm(inboxPath+"/meetings/m1/commitments/x/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunRemindersAndEvents(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	env.seed(t, "m1")

	w := env.do(http.MethodPost, "/api/v1/reminders/run", gin.H{"date": "2026-02-17", "dry_run": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report reminder.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Sent)

	w = env.do(http.MethodGet, "/api/v1/reminders/events?date=2026-02-17", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Events     []ReminderEventResponse `json:"events"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Pagination.Total)
	require.Len(t, page.Events, 1)
	assert.Equal(t, string(domain.ReminderNextDaySummary), page.Events[0].Type)
	assert.Equal(t, string(domain.EventDryRun), page.Events[0].Status)

	w = env.do(http.MethodPost, "/api/v1/reminders/run", gin.H{"date": "17/02/2026"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/reminders/events?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordTranscriptionRejectsProcessedMeeting(t *testing.T) {
	env := newTestEnv(t, testAdminKey)
	env.seed(t, "m1")

	w := env.do(http.MethodPost, "/api/v1/meetings/m1/transcription", gin.H{
		"ok":              true,
		"transcript_text": "Bob will call the vendor. I will send the report tomorrow.",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "already_processed", errResp.Error)

	meeting, err := env.repo.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, meeting.Commitments, 1)
	assert.Equal(t, "send the budget", meeting.Commitments[0].Task)
}
