package recognize

import (
	"math/big"
	"regexp"
	"strings"
)

var (
	ibanRegexp   = regexp.MustCompile(`[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?`)
	cardRegexp   = regexp.MustCompile(`\d(?:[ \-]?\d){12,18}`)
	flightRegexp = regexp.MustCompile(`(?i:flight)\s+(?:#\s*)?((?:[A-Z]{2}|[A-Z]\d|\d[A-Z])\s?\d{1,4})`)
)

func findIBANs(text string) []Finding {
	out := make([]Finding, 0)
	for _, idx := range ibanRegexp.FindAllStringIndex(text, -1) {
		start, end := idx[0], idx[1]
		if !bounded(text, start, end) {
			continue
		}
		raw := text[start:end]
		if !validIBAN(strings.ReplaceAll(raw, " ", "")) {
			continue
		}
		out = append(out, Finding{Kind: KindIBAN, Start: start, End: end, Value: raw, Score: 0.95})
	}
	return out
}

// validIBAN applies the ISO 13616 mod-97 check.
func validIBAN(iban string) bool {
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			digits.WriteString(big.NewInt(int64(r - 'A' + 10)).String())
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

func findPaymentCards(text string) []Finding {
	out := make([]Finding, 0)
	for _, idx := range cardRegexp.FindAllStringIndex(text, -1) {
		start, end := idx[0], idx[1]
		if !bounded(text, start, end) {
			continue
		}
		raw := text[start:end]
		digits := strings.NewReplacer(" ", "", "-", "").Replace(raw)
		if len(digits) < 13 || len(digits) > 19 || !luhn(digits) {
			continue
		}
		out = append(out, Finding{Kind: KindPaymentCard, Start: start, End: end, Value: raw, Score: 0.9})
	}
	return out
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func findFlights(text string) []Finding {
	out := make([]Finding, 0)
	for _, m := range flightRegexp.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if !bounded(text, m[0], end) {
			continue
		}
		out = append(out, Finding{Kind: KindFlight, Start: start, End: end, Value: text[start:end], Score: 0.8})
	}
	return out
}
