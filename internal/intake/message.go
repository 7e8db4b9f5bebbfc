package intake

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
)

// Message is a transcript delivered by email.
type Message struct {
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	PlainBody string
	HTMLBody  string
}

// Text returns the plain-text body, falling back to the HTML body converted
// to text.
func (m Message) Text() string {
	if strings.TrimSpace(m.PlainBody) != "" {
		return m.PlainBody
	}
	if m.HTMLBody == "" {
		return ""
	}
	text, err := htmlToText(m.HTMLBody)
	if err != nil {
		logrus.Warnf("Failed to convert HTML body of %s: %v", m.MessageID, err)
		return ""
	}
	return text
}

// ParseMessage reads an RFC 5322 message.
func ParseMessage(r io.Reader) (Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return Message{}, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	var msg Message
	h := mr.Header
	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, fmt.Errorf("failed to read part: %w", err)
		}

		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return msg, fmt.Errorf("failed to read part body: %w", err)
		}

		switch contentType {
		case "text/plain":
			if msg.PlainBody == "" {
				msg.PlainBody = string(content)
			}
		case "text/html":
			if msg.HTMLBody == "" {
				msg.HTMLBody = string(content)
			}
		}
	}
	return msg, nil
}

// htmlToText keeps the text of block elements, one per line.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
