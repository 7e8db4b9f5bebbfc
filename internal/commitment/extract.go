package commitment

import (
	"regexp"
	"strings"
	"time"
)

const actionVerbPattern = `send|do|make|update|check|create|finish|review|share|prepare|call|email|draft|fix|deliver|design`

var (
	apostrophes     = strings.NewReplacer("\u2019", "'", "\u2018", "'")
	sentenceSplitRe = regexp.MustCompile(`[.!?]+(?:\s+|$)|[\r\n]+`)

	markerRe = regexp.MustCompile(`(?i)\b(?:will|won't|going\s+to|tomorrow|next\s+(?:week|month)|by\s+\S+|on\s+(?:` +
		weekdayPattern + `)|can\s+you)\b|'ll\b`)
	actionVerbRe = regexp.MustCompile(`(?i)\b(?:` + actionVerbPattern + `)\b`)

	addressLeadRe  = regexp.MustCompile(`\b([A-Z][a-zA-Z'-]+),\s*(?i:can\s+you)\b`)
	addressTrailRe = regexp.MustCompile(`(?i:\bcan\s+you\b).*,\s*([A-Z][a-zA-Z'-]+)\s*$`)
	namedFutureRe  = regexp.MustCompile(`\b([A-Z][a-zA-Z'-]+)(?i:\s+will\b|'ll\b|\s+is\s+going\s+to\b|\s+can\s+you\b|\s+should\b)`)
	weFutureRe     = regexp.MustCompile(`(?i)\bwe(?:\s+will\b|'ll\b|\s+are\s+going\s+to\b)`)
	iFutureRe      = regexp.MustCompile(`(?i)\bi(?:\s+will\b|'ll\b|\s+am\s+going\s+to\b|'m\s+going\s+to\b)`)

	canYouTaskRe = regexp.MustCompile(`(?i)\bcan\s+you\s+(.+)`)
	futureTaskRe = regexp.MustCompile(`(?i)(?:\bwill|'ll|\bgoing\s+to)\s+(.+)`)
	verbTaskRe   = regexp.MustCompile(`(?i)\b((?:` + actionVerbPattern + `)\b.*)`)

	taskStopRe = regexp.MustCompile(`(?i)\s+(?:by\b|before\b|tomorrow\b|on\s+(?:next\s+)?(?:` + weekdayPattern +
		`|\d)|next\s+(?:week|month|` + weekdayPattern + `)\b|(?:` + weekdayPattern + `)\b\s*(?:[,;:!?]|$)|\d{1,2}/\d{1,2})|[,;:!?]`)
	articleOnlyRe = regexp.MustCompile(`(?i)^(` + actionVerbPattern + `)\s+(?:the|a|an)$`)
)

// Capitalised words that precede "will" or "can you" without naming anyone.
var notNames = map[string]bool{
	"I": true, "We": true, "You": true, "They": true, "He": true, "She": true, "It": true,
	"This": true, "That": true, "These": true, "Those": true, "There": true, "Then": true,
	"So": true, "And": true, "But": true, "Also": true, "Maybe": true, "Perhaps": true,
	"Tomorrow": true, "Today": true, "Everyone": true, "Everybody": true, "Someone": true,
	"Somebody": true, "Nobody": true, "Who": true, "What": true, "Which": true, "Next": true,
	"Ok": true, "Okay": true, "Yes": true, "No": true, "Please": true, "Thanks": true,
	"Great": true, "Sure": true, "Right": true, "Cool": true, "Alright": true, "Hey": true,
	"Can": true, "Could": true, "Would": true, "Should": true, "Will": true, "Let's": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true, "Friday": true,
	"Saturday": true, "Sunday": true,
}

var genericTasks = map[string]bool{
	"do that":   true,
	"do it":     true,
	"handle it": true,
}

// Extract parses transcript text into commitments in sentence order. ref is
// the meeting time used to resolve relative deadlines; the zero time falls
// back to now. The same input always yields the same output.
func Extract(text string, ref time.Time) []Commitment {
	if ref.IsZero() {
		ref = time.Now()
	}

	out := []Commitment{}
	seen := make(map[string]bool)
	for _, sentence := range splitSentences(text) {
		c, ok := extractSentence(sentence, ref)
		if !ok {
			continue
		}
		key := dedupKey(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func splitSentences(text string) []string {
	text = apostrophes.Replace(text)
	var sentences []string
	for _, part := range sentenceSplitRe.Split(text, -1) {
		s := strings.Join(strings.Fields(part), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// IsActionable reports whether a sentence carries both a commitment marker
// and an action verb.
func IsActionable(sentence string) bool {
	return markerRe.MatchString(sentence) && actionVerbRe.MatchString(sentence)
}

func extractSentence(sentence string, ref time.Time) (Commitment, bool) {
	if !IsActionable(sentence) {
		return Commitment{}, false
	}

	person := findPerson(sentence)
	task := findTask(sentence)
	if task == "" {
		return Commitment{}, false
	}
	if person == PersonUnknown && genericTasks[strings.ToLower(task)] {
		return Commitment{}, false
	}

	c := Commitment{Person: person, Task: task}
	if phrase := findDeadlinePhrase(sentence); phrase != nil {
		c.DeadlinePhrase = phrase
		c.ResolvedDate = ResolveDeadline(*phrase, ref)
	}
	return c, true
}

func findPerson(sentence string) string {
	if m := addressLeadRe.FindStringSubmatch(sentence); m != nil && !notNames[m[1]] {
		return m[1]
	}
	if m := addressTrailRe.FindStringSubmatch(sentence); m != nil && !notNames[m[1]] {
		return m[1]
	}
	for _, m := range namedFutureRe.FindAllStringSubmatch(sentence, -1) {
		if !notNames[m[1]] {
			return m[1]
		}
	}
	if weFutureRe.MatchString(sentence) {
		return PersonWe
	}
	if iFutureRe.MatchString(sentence) {
		return PersonSpeaker
	}
	return PersonUnknown
}

func findTask(sentence string) string {
	for _, re := range []*regexp.Regexp{canYouTaskRe, futureTaskRe, verbTaskRe} {
		m := re.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}
		if task := cleanTask(m[1]); task != "" {
			return task
		}
	}
	return ""
}

func cleanTask(clause string) string {
	if loc := taskStopRe.FindStringIndex(clause); loc != nil {
		clause = clause[:loc[0]]
	}
	task := strings.TrimSpace(clause)
	lower := strings.ToLower(task)
	if strings.HasPrefix(lower, "please ") {
		task = strings.TrimSpace(task[len("please "):])
		lower = strings.ToLower(task)
	}
	if strings.HasPrefix(lower, "to ") {
		task = strings.TrimSpace(task[len("to "):])
	}
	task = strings.TrimRight(task, ".,;:!?\"' ")
	if m := articleOnlyRe.FindStringSubmatch(task); m != nil {
		task = m[1]
	}
	return task
}

func dedupKey(c Commitment) string {
	deadline := ""
	switch {
	case c.ResolvedDate != nil:
		deadline = c.ResolvedDate.String()
	case c.DeadlinePhrase != nil:
		deadline = strings.ToLower(*c.DeadlinePhrase)
	}
	return strings.ToLower(c.Person) + "\x00" + strings.ToLower(c.Task) + "\x00" + deadline
}
