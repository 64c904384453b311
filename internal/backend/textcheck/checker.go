// Package textcheck is the built-in text-checking engine. A Checker is
// configured with a bitmask of result types and reports one Result per
// recognized range.
package textcheck

import (
	"errors"
	"net/url"
	"time"

	"datadetector/internal/recognize"
)

type CheckingType uint64

const (
	TypeDate               CheckingType = 1 << 3
	TypeAddress            CheckingType = 1 << 4
	TypeLink               CheckingType = 1 << 5
	TypePhoneNumber        CheckingType = 1 << 11
	TypeTransitInformation CheckingType = 1 << 12

	AllTypes = TypeDate | TypeAddress | TypeLink | TypePhoneNumber | TypeTransitInformation
)

var ErrNoTypes = errors.New("textcheck: no supported checking types")

// Range is a byte range: Location is the start offset.
type Range struct {
	Location int
	Length   int
}

func (r Range) End() int { return r.Location + r.Length }

// Result is one match. Only the payload field belonging to ResultType is set.
type Result struct {
	ResultType        CheckingType
	Range             Range
	PhoneNumber       string
	URL               *url.URL
	AddressComponents map[string]string
	Date              time.Time
	HasDate           bool
	Components        map[string]string
}

const (
	AddressStreet  = "Street"
	AddressCity    = "City"
	AddressState   = "State"
	AddressZIP     = "ZIP"
	AddressCountry = "Country"

	TransitFlight = "Flight"
)

type Options struct {
	Region   string
	Location *time.Location
	Now      func() time.Time
}

type Checker struct {
	types CheckingType
	rec   *recognize.Recognizer
}

func NewChecker(types CheckingType, opts Options) (*Checker, error) {
	types &= AllTypes
	if types == 0 {
		return nil, ErrNoTypes
	}
	var kinds []recognize.Kind
	if types&TypeDate != 0 {
		kinds = append(kinds, recognize.KindDate)
	}
	if types&TypeAddress != 0 {
		kinds = append(kinds, recognize.KindAddress)
	}
	if types&TypeLink != 0 {
		kinds = append(kinds, recognize.KindURL, recognize.KindEmail)
	}
	if types&TypePhoneNumber != 0 {
		kinds = append(kinds, recognize.KindPhone)
	}
	if types&TypeTransitInformation != 0 {
		kinds = append(kinds, recognize.KindFlight)
	}
	rec := recognize.New(recognize.Config{
		Region:   opts.Region,
		Location: opts.Location,
		Now:      opts.Now,
		Kinds:    recognize.KindsOf(kinds...),
	})
	return &Checker{types: types, rec: rec}, nil
}

func (c *Checker) Types() CheckingType { return c.types }

// Matches returns non-overlapping results in text order.
func (c *Checker) Matches(text string) []Result {
	findings := c.rec.Find(text)
	out := make([]Result, 0, len(findings))
	for _, f := range findings {
		r := Result{Range: Range{Location: f.Start, Length: f.Len()}}
		switch f.Kind {
		case recognize.KindPhone:
			r.ResultType = TypePhoneNumber
			r.PhoneNumber = f.Phone
		case recognize.KindURL, recognize.KindEmail:
			r.ResultType = TypeLink
			r.URL = f.URL
		case recognize.KindAddress:
			r.ResultType = TypeAddress
			r.AddressComponents = addressComponents(f.Address)
		case recognize.KindDate:
			r.ResultType = TypeDate
			r.Date, r.HasDate = f.Time, f.HasTime
		case recognize.KindFlight:
			r.ResultType = TypeTransitInformation
			r.Components = map[string]string{TransitFlight: f.Value}
		default:
			continue
		}
		out = append(out, r)
	}
	return out
}

func addressComponents(a recognize.Address) map[string]string {
	m := make(map[string]string, 5)
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set(AddressStreet, a.Street)
	set(AddressCity, a.City)
	set(AddressState, a.State)
	set(AddressZIP, a.Zip)
	set(AddressCountry, a.Country)
	return m
}
