package detect

import (
	"strings"
	"time"
)

type fieldExtractor func(c Candidate, matched string, loc *time.Location) map[string]string

var fieldExtractors = map[Type]fieldExtractor{
	PhoneNumber: phoneFields,
	Link:        linkFields,
	Email:       emailFields,
	Address:     addressFields,
	Date:        dateFields,
}

func extractFields(t Type, c Candidate, matched string, loc *time.Location) map[string]string {
	fn, ok := fieldExtractors[t]
	if !ok {
		return map[string]string{}
	}
	data := fn(c, matched, loc)
	if data == nil {
		data = map[string]string{}
	}
	return data
}

func phoneFields(c Candidate, matched string, _ *time.Location) map[string]string {
	if p, ok := c.(PhoneNumberer); ok {
		if v, ok := p.PhoneNumber(); ok && v != "" {
			return map[string]string{"phoneNumber": v}
		}
	}
	return map[string]string{"phoneNumber": matched}
}

func linkFields(c Candidate, matched string, _ *time.Location) map[string]string {
	if u, ok := c.(URLer); ok {
		if v, ok := u.URL(); ok && v != nil {
			return map[string]string{"url": v.String()}
		}
	}
	return map[string]string{"url": matched}
}

func emailFields(c Candidate, matched string, _ *time.Location) map[string]string {
	if u, ok := c.(URLer); ok {
		if v, ok := u.URL(); ok && v != nil {
			if v.Scheme == "mailto" {
				return map[string]string{"email": v.Opaque}
			}
			return map[string]string{"email": stripMailto(v.String())}
		}
	}
	return map[string]string{"email": stripMailto(matched)}
}

func stripMailto(s string) string {
	if len(s) >= len("mailto:") && strings.EqualFold(s[:len("mailto:")], "mailto:") {
		return s[len("mailto:"):]
	}
	return s
}

func addressFields(c Candidate, _ string, _ *time.Location) map[string]string {
	data := map[string]string{}
	a, ok := c.(Addresser)
	if !ok {
		return data
	}
	comp, ok := a.AddressComponents()
	if !ok {
		return data
	}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			data[k] = v
		}
	}
	set("street", comp.Street)
	set("city", comp.City)
	set("state", comp.State)
	set("zip", comp.Zip)
	set("country", comp.Country)
	return data
}

func dateFields(c Candidate, _ string, loc *time.Location) map[string]string {
	t, ok := c.(Timer)
	if !ok {
		return map[string]string{}
	}
	v, ok := t.Time()
	if !ok || v.IsZero() {
		return map[string]string{}
	}
	if loc != nil {
		v = v.In(loc)
	}
	return map[string]string{"date": v.Format(time.RFC3339)}
}
