package handler

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/action"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/domain"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/intake"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/scheduler"
)

// Store is the storage read directly by the admin API
type Store interface {
	Ping(ctx context.Context) error
	GetMeeting(ctx context.Context, id string) (*domain.Meeting, error)
	GetOverrides(ctx context.Context, meetingID string) (map[int]commitment.Override, error)
	DeleteMeeting(ctx context.Context, id string) error
	ListEvents(ctx context.Context, scheduledFor *civil.Date, offset, limit int) ([]domain.ReminderEvent, int64, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store     Store
	intake    *intake.Service
	resolver  *action.Resolver
	scheduler *scheduler.Scheduler
	adminKey  string
}

// NewHandlers creates new HTTP handlers
func NewHandlers(store Store, intakeSvc *intake.Service, resolver *action.Resolver, sched *scheduler.Scheduler, adminKey string) *Handlers {
	return &Handlers{
		store:     store,
		intake:    intakeSvc,
		resolver:  resolver,
		scheduler: sched,
		adminKey:  adminKey,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/a/:token", h.ResolveAction)
	router.POST("/a/:token", h.ResolveAction)
	router.GET("/u/:token", h.Unsubscribe)
	router.GET("/inbox/:token", h.Inbox)
	router.POST("/inbox/:token/meetings/:id/commitments/:ordinal/toggle", h.ToggleCommitment)

	api := router.Group("/api/v1", h.AdminAuth())
	{
		api.POST("/meetings", h.CreateMeeting)
		api.GET("/meetings/:id", h.GetMeeting)
		api.DELETE("/meetings/:id", h.DeleteMeeting)
		api.POST("/meetings/:id/transcription", h.RecordTranscription)

		api.POST("/extract", h.Extract)

		api.POST("/reminders/run", h.RunReminders)
		api.GET("/reminders/events", h.GetReminderEvents)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}
	if report := h.scheduler.LastReport(); report != nil {
		response.Metrics["last_report_date"] = report.TargetDate.String()
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch apperrors.Kind(err) {
	case "malformed_token":
		return http.StatusBadRequest
	case "expired_token":
		return http.StatusGone
	case "unknown_meeting", "commitment_not_found":
		return http.StatusNotFound
	case "invalid_date":
		return http.StatusUnprocessableEntity
	case "already_processed":
		return http.StatusConflict
	case "delivery_failure":
		return http.StatusBadGateway
	case "storage_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error, message string) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logrus.WithField("path", c.FullPath()).Errorf("%s: %v", message, err)
	}
	c.JSON(code, ErrorResponse{
		Error:   apperrors.Kind(err),
		Message: message,
		Code:    code,
	})
}
