package textcheck

import (
	"context"
	"net/url"
	"time"

	"datadetector/internal/detect"
)

const Name = "textcheck"

const (
	CategoryPhoneNumber = "phoneNumber"
	CategoryLink        = "link"
	CategoryMailto      = "link:mailto"
	CategoryAddress     = "address"
	CategoryDate        = "date"
	CategoryTransit     = "transitInformation"
)

var taxonomy = detect.Taxonomy{
	CategoryPhoneNumber: detect.PhoneNumber,
	CategoryLink:        detect.Link,
	CategoryMailto:      detect.Email,
	CategoryAddress:     detect.Address,
	CategoryDate:        detect.Date,
}

type Backend struct {
	opts Options
}

func NewBackend(opts Options) *Backend {
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Taxonomy() detect.Taxonomy { return taxonomy }

// Open never fails for a non-empty type set; there is nothing to install.
func (b *Backend) Open(_ context.Context, opts detect.SessionOptions) (detect.Session, error) {
	types := CheckingTypesFor(opts.Types)
	if types == 0 {
		types = AllTypes
	}
	c, err := NewChecker(types, b.opts)
	if err != nil {
		return nil, err
	}
	return &session{checker: c}, nil
}

// CheckingTypesFor derives the checker mask for the wanted types. Emails
// come back as links with a mailto scheme.
func CheckingTypesFor(wanted detect.TypeSet) CheckingType {
	var t CheckingType
	if wanted.Has(detect.PhoneNumber) {
		t |= TypePhoneNumber
	}
	if wanted.Has(detect.Link) || wanted.Has(detect.Email) {
		t |= TypeLink
	}
	if wanted.Has(detect.Address) {
		t |= TypeAddress
	}
	if wanted.Has(detect.Date) {
		t |= TypeDate
	}
	return t
}

type session struct {
	checker *Checker
}

func (s *session) Annotate(ctx context.Context, text string) ([]detect.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := s.checker.Matches(text)
	out := make([]detect.Annotation, 0, len(results))
	for _, r := range results {
		out = append(out, detect.Annotation{
			Start:      r.Range.Location,
			End:        r.Range.End(),
			Candidates: []detect.Candidate{candidate{r}},
		})
	}
	return out, nil
}

func (s *session) Close() error { return nil }

type candidate struct {
	r Result
}

func (c candidate) Category() string {
	switch c.r.ResultType {
	case TypePhoneNumber:
		return CategoryPhoneNumber
	case TypeLink:
		if c.r.URL != nil && c.r.URL.Scheme == "mailto" {
			return CategoryMailto
		}
		return CategoryLink
	case TypeAddress:
		return CategoryAddress
	case TypeDate:
		return CategoryDate
	case TypeTransitInformation:
		return CategoryTransit
	}
	return ""
}

func (c candidate) PhoneNumber() (string, bool) {
	return c.r.PhoneNumber, c.r.PhoneNumber != ""
}

func (c candidate) URL() (*url.URL, bool) {
	return c.r.URL, c.r.URL != nil
}

func (c candidate) AddressComponents() (detect.AddressComponents, bool) {
	if len(c.r.AddressComponents) == 0 {
		return detect.AddressComponents{}, false
	}
	m := c.r.AddressComponents
	return detect.AddressComponents{
		Street:  m[AddressStreet],
		City:    m[AddressCity],
		State:   m[AddressState],
		Zip:     m[AddressZIP],
		Country: m[AddressCountry],
	}, true
}

func (c candidate) Time() (time.Time, bool) {
	return c.r.Date, c.r.HasDate
}
