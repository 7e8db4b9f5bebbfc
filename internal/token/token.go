// Package token encodes and verifies the signed capability tokens embedded
// in reminder links. A token is <base64url(payload)>.<base64url(signature)>
// with no padding; nothing about issued tokens is stored server side.
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
)

// InsecureDevSecret signs tokens when no secret is configured and insecure
// mode is explicitly allowed. Never use it in production.
const InsecureDevSecret = "meeting-memory-insecure-dev-secret"

// Action is the state transition requested by an action link.
type Action string

const (
	ActionDone       Action = "done"
	ActionNotYet     Action = "not_yet"
	ActionReschedule Action = "reschedule"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionDone, ActionNotYet, ActionReschedule:
		return true
	}
	return false
}

// ActionClaims is the payload of an action link.
type ActionClaims struct {
	MeetingID    string `json:"meetingId"`
	PromiseIndex int    `json:"promiseIndex"`
	Action       Action `json:"action"`
	Exp          int64  `json:"exp"`
}

// EmailClaims is the payload of unsubscribe and inbox links.
type EmailClaims struct {
	Email string `json:"email"`
	Exp   int64  `json:"exp"`
}

type purpose string

const (
	purposeAction      purpose = "action"
	purposeUnsubscribe purpose = "unsubscribe"
	purposeInbox       purpose = "inbox"
)

var signer = jwt.SigningMethodHS256

// Codec signs and verifies tokens with a process-wide secret. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	keys map[purpose][]byte
	now  func() time.Time
}

// NewCodec creates a codec for secret. An empty secret is rejected unless
// allowInsecure is set, in which case InsecureDevSecret is used and a
// warning is logged.
func NewCodec(secret string, allowInsecure bool) (*Codec, error) {
	if secret == "" {
		if !allowInsecure {
			return nil, fmt.Errorf("token signing secret is not configured")
		}
		logrus.Warn("TOKEN SIGNING SECRET NOT SET: using the insecure development secret. Links can be forged. Do not run this in production.")
		secret = InsecureDevSecret
	}
	c := &Codec{keys: make(map[purpose][]byte), now: time.Now}
	for _, p := range []purpose{purposeAction, purposeUnsubscribe, purposeInbox} {
		key, err := signer.Sign(string(p), []byte(secret))
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s key: %w", p, err)
		}
		c.keys[p] = key
	}
	return c, nil
}

// WithClock returns a copy of c that reads the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{keys: c.keys, now: now}
}

// EncodeAction signs an action token.
func (c *Codec) EncodeAction(claims ActionClaims) (string, error) {
	if err := validateAction(claims); err != nil {
		return "", err
	}
	return c.encode(purposeAction, claims)
}

// EncodeUnsubscribe signs an unsubscribe token.
func (c *Codec) EncodeUnsubscribe(claims EmailClaims) (string, error) {
	claims.Email = NormalizeEmail(claims.Email)
	if claims.Email == "" {
		return "", fmt.Errorf("%w: email is required", apperrors.ErrMalformedToken)
	}
	return c.encode(purposeUnsubscribe, claims)
}

// EncodeInbox signs an inbox token.
func (c *Codec) EncodeInbox(claims EmailClaims) (string, error) {
	claims.Email = NormalizeEmail(claims.Email)
	if claims.Email == "" {
		return "", fmt.Errorf("%w: email is required", apperrors.ErrMalformedToken)
	}
	return c.encode(purposeInbox, claims)
}

// VerifyAction checks an action token and returns its claims.
func (c *Codec) VerifyAction(tok string) (ActionClaims, error) {
	var raw struct {
		MeetingID    *string `json:"meetingId"`
		PromiseIndex *int    `json:"promiseIndex"`
		Action       *Action `json:"action"`
		Exp          *int64  `json:"exp"`
	}
	if err := c.decode(purposeAction, tok, &raw); err != nil {
		return ActionClaims{}, err
	}
	if raw.MeetingID == nil || raw.PromiseIndex == nil || raw.Action == nil || raw.Exp == nil {
		return ActionClaims{}, fmt.Errorf("%w: missing fields", apperrors.ErrMalformedToken)
	}
	claims := ActionClaims{
		MeetingID:    *raw.MeetingID,
		PromiseIndex: *raw.PromiseIndex,
		Action:       *raw.Action,
		Exp:          *raw.Exp,
	}
	if err := validateAction(claims); err != nil {
		return ActionClaims{}, err
	}
	if err := c.checkExpiry(claims.Exp); err != nil {
		return ActionClaims{}, err
	}
	return claims, nil
}

// VerifyUnsubscribe checks an unsubscribe token.
func (c *Codec) VerifyUnsubscribe(tok string) (EmailClaims, error) {
	return c.verifyEmail(purposeUnsubscribe, tok)
}

// VerifyInbox checks an inbox token.
func (c *Codec) VerifyInbox(tok string) (EmailClaims, error) {
	return c.verifyEmail(purposeInbox, tok)
}

func (c *Codec) verifyEmail(p purpose, tok string) (EmailClaims, error) {
	var raw struct {
		Email *string `json:"email"`
		Exp   *int64  `json:"exp"`
	}
	if err := c.decode(p, tok, &raw); err != nil {
		return EmailClaims{}, err
	}
	if raw.Email == nil || raw.Exp == nil {
		return EmailClaims{}, fmt.Errorf("%w: missing fields", apperrors.ErrMalformedToken)
	}
	email := NormalizeEmail(*raw.Email)
	if email == "" || email != *raw.Email {
		return EmailClaims{}, fmt.Errorf("%w: email is not normalized", apperrors.ErrMalformedToken)
	}
	if err := c.checkExpiry(*raw.Exp); err != nil {
		return EmailClaims{}, err
	}
	return EmailClaims{Email: email, Exp: *raw.Exp}, nil
}

func (c *Codec) encode(p purpose, claims any) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	segment := base64.RawURLEncoding.EncodeToString(payload)
	sig, err := signer.Sign(segment, c.keys[p])
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return segment + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (c *Codec) decode(p purpose, tok string, into any) error {
	segment, sigPart, ok := strings.Cut(strings.TrimSpace(tok), ".")
	if !ok || segment == "" || sigPart == "" || strings.Contains(sigPart, ".") {
		return fmt.Errorf("%w: expected two segments", apperrors.ErrMalformedToken)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", apperrors.ErrMalformedToken)
	}
	// Verify compares with hmac.Equal, which is constant time.
	if err := signer.Verify(segment, sig, c.keys[p]); err != nil {
		return fmt.Errorf("%w: signature mismatch", apperrors.ErrMalformedToken)
	}
	payload, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return fmt.Errorf("%w: bad payload encoding", apperrors.ErrMalformedToken)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: bad payload", apperrors.ErrMalformedToken)
	}
	return nil
}

func (c *Codec) checkExpiry(exp int64) error {
	if exp <= c.now().Unix() {
		return apperrors.ErrExpiredToken
	}
	return nil
}

func validateAction(claims ActionClaims) error {
	switch {
	case strings.TrimSpace(claims.MeetingID) == "":
		return fmt.Errorf("%w: meetingId is required", apperrors.ErrMalformedToken)
	case claims.PromiseIndex < 0:
		return fmt.Errorf("%w: promiseIndex must not be negative", apperrors.ErrMalformedToken)
	case !claims.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", apperrors.ErrMalformedToken, claims.Action)
	}
	return nil
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
