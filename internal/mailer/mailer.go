// Package mailer delivers plain-text reminder mail.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Compose renders msg as an RFC 5322 message from the given sender.
func Compose(from string, msg Message, now time.Time) ([]byte, string, error) {
	messageID := uuid.NewString() + "@meeting-memory"

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.Set("Message-Id", "<"+messageID+">")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, "", fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	From string
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	raw, id, err := Compose(s.From, msg, time.Now())
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"to":         msg.To,
		"subject":    msg.Subject,
		"message_id": id,
		"bytes":      len(raw),
	}).Info("Mail transport disabled, logging message instead of sending")
	logrus.Debug(msg.Body)
	return id, nil
}
