package intake

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/config"
)

// Source yields transcript messages that have not been read yet.
type Source interface {
	FetchNew(ctx context.Context) ([]Message, error)
}

// IMAPSource reads unseen messages from a mailbox. Fetching the body marks a
// message seen, so each message is returned once.
type IMAPSource struct {
	cfg config.IntakeConfig
}

// NewIMAPSource creates a mailbox source. It connects on every fetch.
func NewIMAPSource(cfg config.IntakeConfig) *IMAPSource {
	return &IMAPSource{cfg: cfg}
}

func (s *IMAPSource) dial() (*client.Client, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", s.cfg.IMAPHost, s.cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(s.cfg.IMAPUser, s.cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	return c, nil
}

// FetchNew returns the unseen messages of the configured mailbox.
func (s *IMAPSource) FetchNew(ctx context.Context) ([]Message, error) {
	c, err := s.dial()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(s.cfg.Mailbox, false); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return []Message{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope}, messages)
	}()

	var out []Message
	for raw := range messages {
		body := raw.GetBody(section)
		if body == nil {
			logrus.Warnf("IMAP message %d has no body", raw.SeqNum)
			continue
		}
		msg, err := ParseMessage(body)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message %d: %v", raw.SeqNum, err)
			continue
		}
		if msg.MessageID == "" && raw.Envelope != nil {
			msg.MessageID = raw.Envelope.MessageId
		}
		out = append(out, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}
