package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/config"
)

const maxSendAttempts = 3

// GmailSender sends mail through the Gmail API.
type GmailSender struct {
	service   *gmail.Service
	userEmail string
	backoff   func(attempt int) time.Duration
}

// NewGmailSender creates a sender authorised by a stored refresh token.
func NewGmailSender(cfg *config.GmailConfig) (*GmailSender, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailSender{
		service:   service,
		userEmail: cfg.UserEmail,
		backoff:   func(attempt int) time.Duration { return time.Duration(attempt*attempt) * time.Second },
	}, nil
}

// Send implements Sender. Quota and rate limit errors are retried with
// quadratic backoff; anything else fails immediately.
func (s *GmailSender) Send(ctx context.Context, msg Message) (string, error) {
	raw, _, err := Compose(s.userEmail, msg, time.Now())
	if err != nil {
		return "", err
	}
	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		sent, err := s.service.Users.Messages.Send(s.userEmail, message).Context(ctx).Do()
		if err == nil {
			logrus.Infof("Sent reminder to %s (gmail id %s)", msg.To, sent.Id)
			return sent.Id, nil
		}

		lastErr = err
		logrus.Warnf("Failed to send reminder (attempt %d/%d): %v", attempt, maxSendAttempts, err)

		if !isRateLimited(err) {
			break
		}
		wait := s.backoff(attempt)
		logrus.Infof("Rate limited, waiting %v before retry", wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	return "", fmt.Errorf("failed to send mail: %w", lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate")
}

// TestConnection checks that the account is reachable.
func (s *GmailSender) TestConnection(ctx context.Context) error {
	if _, err := s.service.Users.GetProfile(s.userEmail).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to test Gmail API connection: %w", err)
	}
	return nil
}
