package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/intake"
)

// CreateMeeting creates a meeting, extracting commitments when a transcript
// is supplied
func (h *Handlers) CreateMeeting(c *gin.Context) {
	var req CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	in := intake.NewMeeting{
		Title:          req.Title,
		RecipientEmail: req.RecipientEmail,
		TranscriptText: req.TranscriptText,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	meeting, err := h.intake.CreateMeeting(c.Request.Context(), in, intake.SourceAPI)
	if err != nil {
		respondError(c, err, "Failed to create meeting")
		return
	}

	c.JSON(http.StatusCreated, toMeetingResponse(*meeting, commitment.Merge(meeting.Commitments, nil)))
}

// GetMeeting returns a meeting with the effective state of its commitments
func (h *Handlers) GetMeeting(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	meeting, err := h.store.GetMeeting(ctx, id)
	if err != nil {
		respondError(c, err, "Meeting not found")
		return
	}
	overrides, err := h.store.GetOverrides(ctx, id)
	if err != nil {
		respondError(c, err, "Failed to fetch commitment state")
		return
	}

	c.JSON(http.StatusOK, toMeetingResponse(*meeting, commitment.Merge(meeting.Commitments, overrides)))
}

// DeleteMeeting deletes a meeting with its overrides and reminder log
func (h *Handlers) DeleteMeeting(c *gin.Context) {
	if err := h.store.DeleteMeeting(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete meeting")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Meeting deleted successfully"})
}

// RecordTranscription stores the speech-to-text result for a meeting
func (h *Handlers) RecordTranscription(c *gin.Context) {
	var req intake.TranscriptionResult
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}
	req.MeetingID = c.Param("id")

	meeting, err := h.intake.RecordTranscription(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to record transcription")
		return
	}

	c.JSON(http.StatusOK, toMeetingResponse(*meeting, commitment.Merge(meeting.Commitments, nil)))
}

// Extract previews extraction on a transcript without storing anything
func (h *Handlers) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	ref := time.Now()
	if req.ReferenceTime != nil {
		ref = *req.ReferenceTime
	}

	c.JSON(http.StatusOK, gin.H{
		"commitments": commitment.Extract(req.Text, ref),
	})
}
