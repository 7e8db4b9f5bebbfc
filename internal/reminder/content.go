package reminder

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/commitment"
)

// Link is a labelled action URL.
type Link struct {
	Label string
	URL   string
}

// Item is one commitment line with the links rendered under it.
type Item struct {
	Line  string
	Links []Link
}

// Footer holds the trailing links of every reminder.
type Footer struct {
	UnsubscribeURL string
	InboxURL       string
}

// Content is a rendered reminder email.
type Content struct {
	Subject string
	Body    string
}

// CommitmentLine renders "<Person>: <task> by <deadline>", dropping the
// deadline part when there is none.
func CommitmentLine(e commitment.Effective) string {
	line := fmt.Sprintf("%s: %s", e.Commitment.Person, e.Commitment.Task)
	if label := e.DeadlineLabel(); label != "" {
		line += " by " + label
	}
	return line
}

// SummaryContent renders the next-day summary of a meeting.
func SummaryContent(title string, meetingDate civil.Date, items []Item, footer Footer) Content {
	name := meetingName(title, meetingDate)

	var b strings.Builder
	fmt.Fprintf(&b, "Here is what was promised in %s.\n", name)
	for _, item := range items {
		b.WriteString("\n")
		writeItem(&b, item)
	}
	writeFooter(&b, footer)

	return Content{
		Subject: "Your commitments from " + name,
		Body:    b.String(),
	}
}

// DueTomorrowContent renders the nudge sent the day before a due date.
func DueTomorrowContent(task string, item Item, footer Footer) Content {
	var b strings.Builder
	b.WriteString("This is due tomorrow.\n\n")
	writeItem(&b, item)
	writeFooter(&b, footer)

	return Content{
		Subject: "Due tomorrow: " + task,
		Body:    b.String(),
	}
}

// OverdueContent renders the nudge sent the day after a due date passed.
func OverdueContent(task string, item Item, footer Footer) Content {
	var b strings.Builder
	b.WriteString("This was due yesterday and is still open.\n\n")
	writeItem(&b, item)
	writeFooter(&b, footer)

	return Content{
		Subject: "Overdue: " + task,
		Body:    b.String(),
	}
}

func meetingName(title string, date civil.Date) string {
	day := date.In(time.UTC).Format("Mon Jan 2")
	if strings.TrimSpace(title) == "" {
		return "your meeting on " + day
	}
	return fmt.Sprintf("%q on %s", title, day)
}

func writeItem(b *strings.Builder, item Item) {
	b.WriteString(item.Line)
	b.WriteString("\n")
	for _, l := range item.Links {
		fmt.Fprintf(b, "%s: %s\n", l.Label, l.URL)
	}
}

func writeFooter(b *strings.Builder, footer Footer) {
	b.WriteString("\n")
	fmt.Fprintf(b, "Unsubscribe: %s\n", footer.UnsubscribeURL)
	fmt.Fprintf(b, "View your meetings: %s\n", footer.InboxURL)
}
