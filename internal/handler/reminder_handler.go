package handler

import (
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
)

// RunReminders runs the reminder engine for a date, defaulting to today
func (h *Handlers) RunReminders(c *gin.Context) {
	var req RunRemindersRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
	}

	target := h.scheduler.Today()
	if req.Date != "" {
		d, err := civil.ParseDate(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: "date must be YYYY-MM-DD",
				Code:    http.StatusBadRequest,
			})
			return
		}
		target = d
	}

	report, err := h.scheduler.RunOnce(c.Request.Context(), target, req.DryRun)
	if err != nil {
		respondError(c, err, "Failed to run reminders")
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetReminderEvents returns the reminder log with pagination
func (h *Handlers) GetReminderEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	var scheduledFor *civil.Date
	if raw := c.Query("date"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_date",
				Message: "date must be YYYY-MM-DD",
				Code:    http.StatusBadRequest,
			})
			return
		}
		scheduledFor = &d
	}

	offset := (page - 1) * limit
	events, total, err := h.store.ListEvents(c.Request.Context(), scheduledFor, offset, limit)
	if err != nil {
		respondError(c, err, "Failed to fetch reminder events")
		return
	}

	response := make([]ReminderEventResponse, len(events))
	for i, ev := range events {
		response[i] = ReminderEventResponse{
			MeetingID:    ev.MeetingID,
			Ordinal:      ev.Ordinal,
			Type:         string(ev.Type),
			ScheduledFor: ev.ScheduledFor,
			Recipient:    ev.Recipient,
			Status:       string(ev.Status),
			MessageID:    ev.MessageID,
			CreatedAt:    ev.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": response,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}
