package token

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Links builds absolute URLs carrying freshly signed tokens.
type Links struct {
	codec     *Codec
	baseURL   string
	actionTTL time.Duration
	emailTTL  time.Duration
}

// NewLinks creates a link builder rooted at baseURL.
func NewLinks(codec *Codec, baseURL string, actionTTL, emailTTL time.Duration) *Links {
	return &Links{
		codec:     codec,
		baseURL:   strings.TrimRight(baseURL, "/"),
		actionTTL: actionTTL,
		emailTTL:  emailTTL,
	}
}

// Action returns the URL applying action to a commitment.
func (l *Links) Action(meetingID string, ordinal int, action Action) (string, error) {
	tok, err := l.codec.EncodeAction(ActionClaims{
		MeetingID:    meetingID,
		PromiseIndex: ordinal,
		Action:       action,
		Exp:          l.codec.now().Add(l.actionTTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s link: %w", action, err)
	}
	return l.baseURL + "/a/" + url.PathEscape(tok), nil
}

// Unsubscribe returns the unsubscribe URL for email.
func (l *Links) Unsubscribe(email string) (string, error) {
	tok, err := l.codec.EncodeUnsubscribe(EmailClaims{Email: email, Exp: l.codec.now().Add(l.emailTTL).Unix()})
	if err != nil {
		return "", fmt.Errorf("failed to sign unsubscribe link: %w", err)
	}
	return l.baseURL + "/u/" + url.PathEscape(tok), nil
}

// Inbox returns the "view my meetings" URL for email.
func (l *Links) Inbox(email string) (string, error) {
	tok, err := l.codec.EncodeInbox(EmailClaims{Email: email, Exp: l.codec.now().Add(l.emailTTL).Unix()})
	if err != nil {
		return "", fmt.Errorf("failed to sign inbox link: %w", err)
	}
	return l.baseURL + "/inbox/" + url.PathEscape(tok), nil
}
