// Package apperrors defines the error taxonomy shared by the token codec,
// the action resolver and the reminder engine.
package apperrors

import "errors"

var (
	// ErrMalformedToken is returned for tokens with a bad signature, bad
	// encoding or a payload that does not match the expected shape.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned for correctly signed tokens past their exp.
	ErrExpiredToken = errors.New("expired token")
	// ErrUnknownMeeting is returned when a referenced meeting does not exist.
	ErrUnknownMeeting = errors.New("unknown meeting")
	// ErrCommitmentNotFound is returned when an ordinal is outside the
	// meeting's current commitment list.
	ErrCommitmentNotFound = errors.New("commitment not found")
	// ErrInvalidDate is returned for dates that do not parse.
	ErrInvalidDate = errors.New("invalid date")
	// ErrPastDate is an ErrInvalidDate for dates before today.
	ErrPastDate = &wrapped{msg: "date is before today", kind: ErrInvalidDate}
	// ErrAlreadyProcessed is returned when a transcription result arrives
	// for a meeting whose commitments were already extracted.
	ErrAlreadyProcessed = errors.New("meeting already processed")
	// ErrDeliveryFailure wraps mail transport failures.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrStorageUnavailable wraps storage failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotConfigured is an ErrStorageUnavailable raised when no store was
	// wired at all.
	ErrNotConfigured = &wrapped{msg: "storage not configured", kind: ErrStorageUnavailable}
)

type wrapped struct {
	msg  string
	kind error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }

// Kind returns the short taxonomy name of err, or "internal" when err does
// not belong to the taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrUnknownMeeting):
		return "unknown_meeting"
	case errors.Is(err, ErrCommitmentNotFound):
		return "commitment_not_found"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrDeliveryFailure):
		return "delivery_failure"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// UserMessage maps err onto a plain, non-technical sentence suitable for a
// page opened from an email link.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrExpiredToken):
		return "This link is no longer valid. Please use the most recent email."
	case errors.Is(err, ErrPastDate):
		return "Please pick today or a later date."
	case errors.Is(err, ErrInvalidDate):
		return "That date could not be read. Please use the YYYY-MM-DD format."
	case errors.Is(err, ErrUnknownMeeting):
		return "This meeting could not be found."
	case errors.Is(err, ErrCommitmentNotFound):
		return "This task could not be found."
	default:
		return "Something went wrong. Please try again later."
	}
}
