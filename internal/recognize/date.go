package recognize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const monthNames = `Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sept?(?:ember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?`

var (
	dateRegexps = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+\-]\d{2}:?\d{2})?)?`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`(?i)(?:` + monthNames + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?(?:,?\s+(?:at\s+)?\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?)?`),
		regexp.MustCompile(`(?i)\d{1,2}(?:st|nd|rd|th)?\s+(?:` + monthNames + `)\.?(?:,?\s+\d{4})?`),
	}
	relativeRegexp = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday)\b`)
	ordinalRegexp  = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
	yearRegexp     = regexp.MustCompile(`\d{4}`)
	meridiemRegexp = regexp.MustCompile(`(?i)(\d)\s*([ap])\.?m\.?$`)
)

func findDates(text string, now time.Time, loc *time.Location) []Finding {
	out := make([]Finding, 0)
	for _, re := range dateRegexps {
		for _, idx := range re.FindAllStringIndex(text, -1) {
			start, end := idx[0], idx[1]
			if !bounded(text, start, end) {
				continue
			}
			raw := text[start:end]
			f := Finding{Kind: KindDate, Start: start, End: end, Value: raw, Score: 0.9}
			if t, ok := ParseDate(raw, now, loc); ok {
				f.Time, f.HasTime = t, true
			} else {
				f.Score = 0.5
			}
			out = append(out, f)
		}
	}
	for _, m := range relativeRegexp.FindAllStringSubmatchIndex(text, -1) {
		day, _ := relativeDay(text[m[2]:m[3]], now, loc)
		out = append(out, Finding{
			Kind:    KindDate,
			Start:   m[0],
			End:     m[1],
			Value:   text[m[0]:m[1]],
			Time:    day,
			HasTime: true,
			Score:   0.75,
		})
	}
	return out
}

// ParseDate resolves a date phrase. Phrases without a year take the
// year of now.
func ParseDate(raw string, now time.Time, loc *time.Location) (time.Time, bool) {
	if day, ok := relativeDay(raw, now, loc); ok {
		return day, true
	}
	s := ordinalRegexp.ReplaceAllString(raw, "$1")
	s = strings.ReplaceAll(s, " at ", " ")
	s = meridiemRegexp.ReplaceAllString(s, "$1 ${2}m")
	if !yearRegexp.MatchString(s) && !strings.Contains(s, "/") {
		s = insertYear(s, now.Year())
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// insertYear puts the year right after the day so "March 15 3 pm" becomes
// "March 15, 2026 3 pm".
func insertYear(s string, year int) string {
	y := strconv.Itoa(year)
	fields := strings.Fields(s)
	if len(fields) < 2 || isDigit(s[0]) {
		return s + " " + y
	}
	head := strings.TrimSuffix(strings.Join(fields[:2], " "), ",")
	rest := strings.Join(fields[2:], " ")
	if rest == "" {
		return head + ", " + y
	}
	return head + ", " + y + " " + rest
}

// relativeDay resolves today, tonight, tomorrow and yesterday to midnight
// in loc.
func relativeDay(word string, now time.Time, loc *time.Location) (time.Time, bool) {
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "today", "tonight":
		return day, true
	case "tomorrow":
		return day.AddDate(0, 0, 1), true
	case "yesterday":
		return day.AddDate(0, 0, -1), true
	}
	return time.Time{}, false
}
