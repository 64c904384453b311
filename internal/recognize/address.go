package recognize

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

const streetSuffixes = `Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl|Terrace|Ter|Parkway|Pkwy|Circle|Cir|Highway|Hwy|Square|Sq|Loop|Plaza`

var (
	addressRegexp = regexp.MustCompile(
		`(?P<street>\d{1,6}(?:\s+[A-Z][A-Za-z0-9.'\-]*){1,5}\s+(?:` + streetSuffixes + `)\b\.?` +
			`(?:,?\s+(?:Apt|Suite|Ste|Unit|#)\.?\s*[A-Za-z0-9\-]+)?)` +
			`(?:,?\s+(?P<city>[A-Z][A-Za-z.'\-]*(?:\s+[A-Z][A-Za-z.'\-]*){0,3}),\s*(?P<state>[A-Z]{2})(?:\s+(?P<zip>\d{5}(?:-\d{4})?))?\b)?`)

	countryTail = regexp.MustCompile(`^,?\s+(\p{Lu}[\pL.]*(?: \pL[\pL.]*){0,4})`)
)

// countries is keyed by the folded form produced by foldCountry.
var countries = map[string]string{
	"us":                       "United States",
	"usa":                      "United States",
	"united states":            "United States",
	"united states of america": "United States",
	"america":                  "United States",
	"canada":                   "Canada",
	"mexico":                   "Mexico",
	"uk":                       "United Kingdom",
	"united kingdom":           "United Kingdom",
	"great britain":            "United Kingdom",
	"england":                  "United Kingdom",
	"ireland":                  "Ireland",
	"germany":                  "Germany",
	"deutschland":              "Germany",
	"france":                   "France",
	"spain":                    "Spain",
	"espana":                   "Spain",
	"italy":                    "Italy",
	"italia":                   "Italy",
	"netherlands":              "Netherlands",
	"osterreich":               "Austria",
	"austria":                  "Austria",
	"switzerland":              "Switzerland",
	"australia":                "Australia",
	"japan":                    "Japan",
}

func foldCountry(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	s = strings.ReplaceAll(s, ".", "")
	return strings.Join(strings.Fields(s), " ")
}

// lookupCountry finds the longest word prefix of tail naming a country and
// returns its canonical name and byte length.
func lookupCountry(tail string) (string, int) {
	m := countryTail.FindStringSubmatchIndex(tail)
	if m == nil {
		return "", 0
	}
	words := tail[m[2]:m[3]]
	for {
		if name, ok := countries[foldCountry(words)]; ok {
			end := m[2] + len(words)
			if end < len(tail) && isWordByte(tail[end]) {
				return "", 0
			}
			return name, end
		}
		cut := strings.LastIndexByte(words, ' ')
		if cut < 0 {
			return "", 0
		}
		words = words[:cut]
	}
}

func findAddresses(text string) []Finding {
	names := addressRegexp.SubexpNames()
	idxs := addressRegexp.FindAllStringSubmatchIndex(text, -1)
	out := make([]Finding, 0, len(idxs))
	for _, m := range idxs {
		start, end := m[0], m[1]
		if !bounded(text, start, end) {
			continue
		}
		var addr Address
		for i, name := range names {
			if name == "" || m[2*i] < 0 {
				continue
			}
			v := strings.TrimSpace(text[m[2*i]:m[2*i+1]])
			switch name {
			case "street":
				addr.Street = strings.TrimSuffix(v, ",")
			case "city":
				addr.City = v
			case "state":
				addr.State = v
			case "zip":
				addr.Zip = v
			}
		}
		if addr.State != "" {
			if country, n := lookupCountry(text[end:]); n > 0 {
				addr.Country = country
				end += n
			}
		}
		out = append(out, Finding{
			Kind:    KindAddress,
			Start:   start,
			End:     end,
			Value:   text[start:end],
			Address: addr,
			Score:   0.85,
		})
	}
	return out
}
