package recognize

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var phoneRegexp = regexp.MustCompile(`(?:\+\d{1,3}[ .\-]?)?(?:\(\d{2,4}\)[ .\-]?|\d{2,4}[ .\-]?)\d{3,4}[ .\-]?\d{3,4}`)

func findPhones(text, region string) []Finding {
	idxs := phoneRegexp.FindAllStringIndex(text, -1)
	out := make([]Finding, 0, len(idxs))
	for _, idx := range idxs {
		start, end := idx[0], idx[1]
		candidate := text[start:end]
		if !bounded(text, start, end) {
			continue
		}
		if start > 0 && (text[start-1] == '+' || text[start-1] == '-' || text[start-1] == '/') {
			continue
		}
		if end < len(text) && (text[end] == '-' || text[end] == '/') {
			continue
		}
		if !isPossiblePhone(candidate, region) {
			continue
		}
		out = append(out, Finding{
			Kind:  KindPhone,
			Start: start,
			End:   end,
			Value: candidate,
			Phone: strings.TrimSpace(candidate),
			Score: 0.8,
		})
	}
	return out
}

func isPossiblePhone(candidate, region string) bool {
	digits := 0
	for i := 0; i < len(candidate); i++ {
		if isDigit(candidate[i]) {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return false
	}
	num, err := phonenumbers.Parse(candidate, region)
	if err != nil {
		return false
	}
	return phonenumbers.IsPossibleNumber(num)
}
