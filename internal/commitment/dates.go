package commitment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const weekdayPattern = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	deadlineRe = regexp.MustCompile(`(?i)\b(?:(?:by|on)\s+)?(tomorrow|next\s+week|next\s+month|(?:next\s+)?(?:` +
		weekdayPattern + `)|\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)
	numericDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?$`)
)

// findDeadlinePhrase returns the canonical deadline phrase of a sentence, or
// nil when it has none.
func findDeadlinePhrase(sentence string) *string {
	m := deadlineRe.FindStringSubmatch(sentence)
	if m == nil {
		return nil
	}
	phrase := canonicalPhrase(m[1])
	return &phrase
}

// canonicalPhrase lowercases relative phrases and title-cases weekday
// phrases. Numeric dates are returned unchanged.
func canonicalPhrase(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	if len(words) == 0 {
		return ""
	}
	if _, ok := weekdays[words[len(words)-1]]; ok {
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ResolveDeadline turns a canonical deadline phrase into a calendar date
// relative to ref. It returns nil when the phrase cannot be resolved.
func ResolveDeadline(phrase string, ref time.Time) *civil.Date {
	noon := time.Date(ref.Year(), ref.Month(), ref.Day(), 12, 0, 0, 0, ref.Location())
	today := civil.DateOf(noon)
	lower := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")

	switch lower {
	case "":
		return nil
	case "tomorrow":
		d := today.AddDays(1)
		return &d
	case "next week":
		d := today.AddDays(7)
		return &d
	case "next month":
		d := civil.DateOf(noon.AddDate(0, 1, 0))
		return &d
	}

	next := false
	if strings.HasPrefix(lower, "next ") {
		next = true
		lower = strings.TrimPrefix(lower, "next ")
	}
	if wd, ok := weekdays[lower]; ok {
		delta := (int(wd) - int(noon.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		if next {
			delta += 7
		}
		d := today.AddDays(delta)
		return &d
	}
	if next {
		return nil
	}

	return resolveNumeric(lower, today)
}

func resolveNumeric(phrase string, today civil.Date) *civil.Date {
	m := numericDateRe.FindStringSubmatch(phrase)
	if m == nil {
		return nil
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])

	if m[3] != "" {
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		return validDate(year, month, day)
	}

	d := validDate(today.Year, month, day)
	if d != nil && d.Before(today) {
		d = validDate(today.Year+1, month, day)
	}
	return d
}

func validDate(year, month, day int) *civil.Date {
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if !d.IsValid() {
		return nil
	}
	return &d
}
