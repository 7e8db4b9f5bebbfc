package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartScheduler starts the reminder scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the reminder scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs today's reminders once
func (h *Handlers) RunOnce(c *gin.Context) {
	report, err := h.scheduler.RunOnce(c.Request.Context(), h.scheduler.Today(), false)
	if err != nil {
		respondError(c, err, "Failed to run reminders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reminder run completed",
		"report":  report,
	})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := "stopped"
	if h.scheduler.IsRunning() {
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"next_run":    h.scheduler.GetNextRun(),
		"last_run":    h.scheduler.GetLastRun(),
		"last_report": h.scheduler.LastReport(),
	})
}
