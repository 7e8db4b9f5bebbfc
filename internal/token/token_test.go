package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/apperrors"
)

var fixedNow = time.Date(2026, time.February, 17, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret", false)
	require.NoError(t, err)
	return c.WithClock(func() time.Time { return fixedNow })
}

func TestActionRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := ActionClaims{MeetingID: "m-1", PromiseIndex: 2, Action: ActionNotYet, Exp: fixedNow.Add(time.Hour).Unix()}

	tok, err := c.EncodeAction(in)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(tok, "."))
	assert.NotContains(t, tok, "=")

	out, err := c.VerifyAction(tok)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestActionExpired(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.EncodeAction(ActionClaims{MeetingID: "m-1", Action: ActionDone, Exp: fixedNow.Add(-time.Second).Unix()})
	require.NoError(t, err)

	_, err = c.VerifyAction(tok)
	assert.ErrorIs(t, err, apperrors.ErrExpiredToken)

	later := c.WithClock(func() time.Time { return fixedNow.Add(2 * time.Hour) })
	tok, err = c.EncodeAction(ActionClaims{MeetingID: "m-1", Action: ActionDone, Exp: fixedNow.Add(time.Hour).Unix()})
	require.NoError(t, err)
	_, err = later.VerifyAction(tok)
	assert.ErrorIs(t, err, apperrors.ErrExpiredToken)
}

func TestActionTamperedSignature(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.EncodeAction(ActionClaims{MeetingID: "m-1", Action: ActionDone, Exp: fixedNow.Add(time.Hour).Unix()})
	require.NoError(t, err)

	dot := strings.Index(tok, ".")
	i := dot + 1
	replacement := byte('A')
	if tok[i] == 'A' {
		replacement = 'B'
	}
	tampered := tok[:i] + string(replacement) + tok[i+1:]

	_, err = c.VerifyAction(tampered)
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
}

func TestActionTamperedPayload(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.EncodeAction(ActionClaims{MeetingID: "m-1", Action: ActionDone, Exp: fixedNow.Add(time.Hour).Unix()})
	require.NoError(t, err)

	_, sig, _ := strings.Cut(tok, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"meetingId":"m-2","promiseIndex":0,"action":"done","exp":9999999999}`))
	_, err = c.VerifyAction(forged + "." + sig)
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
}

func TestActionRejectsOtherSecret(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec("another-secret", false)
	require.NoError(t, err)

	tok, err := other.EncodeAction(ActionClaims{MeetingID: "m-1", Action: ActionDone, Exp: fixedNow.Add(time.Hour).Unix()})
	require.NoError(t, err)
	_, err = c.VerifyAction(tok)
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
}

func TestActionStructuralValidation(t *testing.T) {
	c := newTestCodec(t)
	exp := fixedNow.Add(time.Hour).Unix()

	_, err := c.EncodeAction(ActionClaims{MeetingID: "", Action: ActionDone, Exp: exp})
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
	_, err = c.EncodeAction(ActionClaims{MeetingID: "m", PromiseIndex: -1, Action: ActionDone, Exp: exp})
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
	_, err = c.EncodeAction(ActionClaims{MeetingID: "m", Action: "archive", Exp: exp})
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)

	// Correctly signed payloads with the wrong shape are still rejected.
	for _, payload := range []string{
		`{"meetingId":"m","action":"done","exp":9999999999}`,
		`{"meetingId":"m","promiseIndex":"1","action":"done","exp":9999999999}`,
		`{"meetingId":"m","promiseIndex":1,"action":"done","exp":9999999999,"admin":true}`,
		`not json`,
	} {
		segment := base64.RawURLEncoding.EncodeToString([]byte(payload))
		sig, err := signer.Sign(segment, c.keys[purposeAction])
		require.NoError(t, err)
		_, err = c.VerifyAction(segment + "." + base64.RawURLEncoding.EncodeToString(sig))
		assert.ErrorIs(t, err, apperrors.ErrMalformedToken, payload)
	}
}

func TestMalformedShapes(t *testing.T) {
	c := newTestCodec(t)
	for _, tok := range []string{"", ".", "abc", "abc.", ".abc", "a.b.c", "!!!.???"} {
		_, err := c.VerifyAction(tok)
		assert.ErrorIs(t, err, apperrors.ErrMalformedToken, tok)
	}
}

func TestEmailTokens(t *testing.T) {
	c := newTestCodec(t)
	exp := fixedNow.Add(24 * time.Hour).Unix()

	unsub, err := c.EncodeUnsubscribe(EmailClaims{Email: "  Alex@Example.COM ", Exp: exp})
	require.NoError(t, err)
	got, err := c.VerifyUnsubscribe(unsub)
	require.NoError(t, err)
	assert.Equal(t, "alex@example.com", got.Email)

	inbox, err := c.EncodeInbox(EmailClaims{Email: "alex@example.com", Exp: exp})
	require.NoError(t, err)
	_, err = c.VerifyInbox(inbox)
	require.NoError(t, err)

	_, err = c.VerifyUnsubscribe(inbox)
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken, "inbox token must not unsubscribe")
	_, err = c.VerifyInbox(unsub)
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken, "unsubscribe token must not open the inbox")

	_, err = c.EncodeInbox(EmailClaims{Email: " ", Exp: exp})
	assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
}

func TestNewCodecSecret(t *testing.T) {
	_, err := NewCodec("", false)
	assert.Error(t, err)

	c, err := NewCodec("", true)
	require.NoError(t, err)
	dev, err := NewCodec(InsecureDevSecret, false)
	require.NoError(t, err)
	assert.Equal(t, dev.keys, c.keys)
}

func TestLinks(t *testing.T) {
	c := newTestCodec(t)
	links := NewLinks(c, "https://mm.example.com/", time.Hour, 24*time.Hour)

	u, err := links.Action("m-1", 0, ActionDone)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "https://mm.example.com/a/"))
	claims, err := c.VerifyAction(strings.TrimPrefix(u, "https://mm.example.com/a/"))
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), claims.Exp)

	u, err = links.Unsubscribe("x@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://mm.example.com/u/"))

	u, err = links.Inbox("x@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://mm.example.com/inbox/"))
}
