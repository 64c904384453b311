package recognize

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	emailRegexp = regexp.MustCompile(`(?i)(?:mailto:)?[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	urlRegexp   = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s<>"'` + "`" + `]+`)
	// bare hosts are only recognized on well known TLDs
	hostRegexp = regexp.MustCompile(`(?i)[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.(?:com|org|net|io|dev|edu|gov|co|app|info|me)(?:/[^\s<>"']*)?`)
)

const trailingPunct = `.,;:!?'"]}>`

func findEmails(text string) []Finding {
	idxs := emailRegexp.FindAllStringIndex(text, -1)
	out := make([]Finding, 0, len(idxs))
	for _, idx := range idxs {
		start, end := idx[0], idx[1]
		for end > start && strings.IndexByte(".-", text[end-1]) >= 0 {
			end--
		}
		if !bounded(text, start, end) {
			continue
		}
		raw := text[start:end]
		addr := raw
		if len(addr) >= 7 && strings.EqualFold(addr[:7], "mailto:") {
			addr = addr[7:]
		}
		out = append(out, Finding{
			Kind:  KindEmail,
			Start: start,
			End:   end,
			Value: raw,
			URL:   &url.URL{Scheme: "mailto", Opaque: addr},
			Score: 0.99,
		})
	}
	return out
}

func findURLs(text string) []Finding {
	out := make([]Finding, 0)
	covered := func(pos int) bool {
		for _, f := range out {
			if pos >= f.Start && pos < f.End {
				return true
			}
		}
		return false
	}
	for _, idx := range urlRegexp.FindAllStringIndex(text, -1) {
		if f, ok := urlFinding(text, idx[0], idx[1], false); ok {
			out = append(out, f)
		}
	}
	for _, idx := range hostRegexp.FindAllStringIndex(text, -1) {
		start := idx[0]
		if covered(start) {
			continue
		}
		if start > 0 && (text[start-1] == '@' || text[start-1] == '/' || text[start-1] == '.' || isWordByte(text[start-1])) {
			continue
		}
		if f, ok := urlFinding(text, start, idx[1], true); ok {
			out = append(out, f)
		}
	}
	return out
}

func urlFinding(text string, start, end int, bare bool) (Finding, bool) {
	end = trimURLEnd(text, start, end)
	raw := text[start:end]
	if raw == "" {
		return Finding{}, false
	}
	target := raw
	lower := strings.ToLower(raw)
	if bare || strings.HasPrefix(lower, "www.") {
		target = "http://" + raw
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return Finding{}, false
	}
	if end < len(text) && (isWordByte(text[end]) || text[end] == '@') {
		return Finding{}, false
	}
	score := 0.95
	if bare {
		score = 0.7
	}
	return Finding{Kind: KindURL, Start: start, End: end, Value: raw, URL: u, Score: score}, true
}

// trimURLEnd drops sentence punctuation and an unbalanced closing paren.
func trimURLEnd(text string, start, end int) int {
	for end > start {
		c := text[end-1]
		if strings.IndexByte(trailingPunct, c) >= 0 {
			end--
			continue
		}
		if c == ')' && strings.Count(text[start:end], "(") < strings.Count(text[start:end], ")") {
			end--
			continue
		}
		break
	}
	return end
}
