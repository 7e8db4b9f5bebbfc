package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/action"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/reminder"
)

type resultPage struct {
	Title   string
	Message string
	Error   bool
}

type reschedulePage struct {
	Title     string
	Message   string
	Error     string
	Token     string
	Suggested string
	Today     string
}

type inboxItem struct {
	Line      string
	Done      bool
	ToggleURL string
}

type inboxMeeting struct {
	Title string
	Date  string
	Items []inboxItem
}

type inboxPage struct {
	Title    string
	Email    string
	Meetings []inboxMeeting
}

// ResolveAction handles the Done, Not yet and Reschedule links in reminder
// emails. Reschedule dates come from the query string or the form.
func (h *Handlers) ResolveAction(c *gin.Context) {
	tok := c.Param("token")
	newDate := c.Query("date")
	if c.Request.Method == http.MethodPost {
		newDate = c.PostForm("date")
	}

	res := h.resolver.ResolveActionToken(c.Request.Context(), tok, newDate)
	switch res.Kind {
	case action.ResultForm:
		page := reschedulePage{
			Title:     "Reschedule",
			Message:   fmt.Sprintf("Pick a new date for: %s", res.Commitment.Commitment.Task),
			Token:     url.PathEscape(tok),
			Suggested: res.SuggestedDate.String(),
			Today:     res.Today.String(),
		}
		status := http.StatusOK
		if res.Err != nil {
			page.Error = res.Message
			status = statusFor(res.Err)
		}
		c.HTML(status, "reschedule.html", page)
	case action.ResultConfirmation:
		c.HTML(http.StatusOK, "result.html", resultPage{Title: "Thanks", Message: res.Message})
	default:
		h.errorPage(c, res.Err)
	}
}

// Unsubscribe handles the unsubscribe link in email footers
func (h *Handlers) Unsubscribe(c *gin.Context) {
	res := h.resolver.ConsumeUnsubscribeToken(c.Request.Context(), c.Param("token"))
	if res.Kind == action.ResultError {
		h.errorPage(c, res.Err)
		return
	}
	c.HTML(http.StatusOK, "result.html", resultPage{Title: "Unsubscribed", Message: res.Message})
}

// Inbox renders the recipient's meetings and commitments
func (h *Handlers) Inbox(c *gin.Context) {
	tok := c.Param("token")
	inbox, err := h.resolver.OpenInbox(c.Request.Context(), tok)
	if err != nil {
		h.errorPage(c, err)
		return
	}

	page := inboxPage{Title: "Your meetings", Email: inbox.Email}
	for _, im := range inbox.Meetings {
		title := im.Meeting.Title
		if title == "" {
			title = "Meeting"
		}
		m := inboxMeeting{Title: title, Date: im.Meeting.Timestamp.Format("Mon Jan 2, 2006")}
		for _, e := range im.Commitments {
			m.Items = append(m.Items, inboxItem{
				Line: reminder.CommitmentLine(e),
				Done: e.Done,
				ToggleURL: fmt.Sprintf("/inbox/%s/meetings/%s/commitments/%d/toggle",
					url.PathEscape(tok), url.PathEscape(im.Meeting.ID), e.Ordinal),
			})
		}
		page.Meetings = append(page.Meetings, m)
	}
	c.HTML(http.StatusOK, "inbox.html", page)
}

// ToggleCommitment flips a commitment from the inbox and returns to it
func (h *Handlers) ToggleCommitment(c *gin.Context) {
	tok := c.Param("token")
	ordinal, err := strconv.Atoi(c.Param("ordinal"))
	if err != nil {
		h.errorPage(c, fmt.Errorf("%w: %q", apperrors.ErrCommitmentNotFound, c.Param("ordinal")))
		return
	}

	if _, err := h.resolver.ToggleFromInbox(c.Request.Context(), tok, c.Param("id"), ordinal); err != nil {
		h.errorPage(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/inbox/"+url.PathEscape(tok))
}

func (h *Handlers) errorPage(c *gin.Context, err error) {
	c.Header("Cache-Control", "no-store")
	c.HTML(statusFor(err), "result.html", resultPage{
		Title:   "Something is off",
		Message: apperrors.UserMessage(err),
		Error:   true,
	})
}
