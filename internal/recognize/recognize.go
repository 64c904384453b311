// Package recognize holds the rule based recognizers both detection engines
// are built from. Offsets are byte offsets into the scanned text.
package recognize

import (
	"net/url"
	"sort"
	"time"
)

type Kind int

const (
	KindEmail Kind = iota + 1
	KindURL
	KindAddress
	KindDate
	KindPhone
	KindIBAN
	KindPaymentCard
	KindFlight
)

var kindNames = map[Kind]string{
	KindEmail:       "email",
	KindURL:         "url",
	KindAddress:     "address",
	KindDate:        "date",
	KindPhone:       "phone",
	KindIBAN:        "iban",
	KindPaymentCard: "payment_card",
	KindFlight:      "flight",
}

func (k Kind) String() string { return kindNames[k] }

// Kinds is a bitmask of enabled recognizers.
type Kinds uint16

const AllKinds Kinds = 1<<KindEmail | 1<<KindURL | 1<<KindAddress | 1<<KindDate |
	1<<KindPhone | 1<<KindIBAN | 1<<KindPaymentCard | 1<<KindFlight

func KindsOf(kinds ...Kind) Kinds {
	var k Kinds
	for _, kind := range kinds {
		k |= 1 << kind
	}
	return k
}

func (k Kinds) Has(kind Kind) bool { return k&(1<<kind) != 0 }

type Address struct {
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

// Finding is one recognized span with whatever payload its kind carries.
type Finding struct {
	Kind  Kind
	Start int
	End   int
	Value string
	Score float64
	// Source is empty for rule findings; callers merging other producers
	// tag theirs.
	Source string

	Phone   string
	URL     *url.URL
	Address Address
	Time    time.Time
	HasTime bool
}

func (f Finding) Len() int { return f.End - f.Start }

type Config struct {
	// Region is the default phone region (ISO 3166 alpha-2), "US" when empty.
	Region   string
	Location *time.Location
	Now      func() time.Time
	Kinds    Kinds
}

type Recognizer struct {
	cfg Config
}

func New(cfg Config) *Recognizer {
	if cfg.Region == "" {
		cfg.Region = "US"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Kinds == 0 {
		cfg.Kinds = AllKinds
	}
	return &Recognizer{cfg: cfg}
}

// FindAll runs every enabled recognizer and returns the raw, possibly
// overlapping findings.
func (r *Recognizer) FindAll(text string) []Finding {
	if text == "" {
		return nil
	}
	out := make([]Finding, 0)
	k := r.cfg.Kinds
	if k.Has(KindEmail) {
		out = append(out, findEmails(text)...)
	}
	if k.Has(KindURL) {
		out = append(out, findURLs(text)...)
	}
	if k.Has(KindAddress) {
		out = append(out, findAddresses(text)...)
	}
	if k.Has(KindDate) {
		out = append(out, findDates(text, r.cfg.Now().In(r.cfg.Location), r.cfg.Location)...)
	}
	if k.Has(KindPhone) {
		out = append(out, findPhones(text, r.cfg.Region)...)
	}
	if k.Has(KindIBAN) {
		out = append(out, findIBANs(text)...)
	}
	if k.Has(KindPaymentCard) {
		out = append(out, findPaymentCards(text)...)
	}
	if k.Has(KindFlight) {
		out = append(out, findFlights(text)...)
	}
	return out
}

// Find returns non-overlapping findings in text order.
func (r *Recognizer) Find(text string) []Finding {
	return Merge(r.FindAll(text))
}

func sortFindings(all []Finding) {
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start == all[j].Start {
			if all[i].End == all[j].End {
				return all[i].Kind < all[j].Kind
			}
			return all[i].End > all[j].End
		}
		return all[i].Start < all[j].Start
	})
}

// Merge drops overlapping findings. The longer span wins; for equal spans the
// kind declared first wins.
func Merge(all []Finding) []Finding {
	if len(all) == 0 {
		return nil
	}
	sortFindings(all)
	chosen := make([]Finding, 0, len(all))
	for _, f := range all {
		if len(chosen) == 0 {
			chosen = append(chosen, f)
			continue
		}
		last := chosen[len(chosen)-1]
		if f.Start < last.End {
			if prefer(f, last) {
				chosen[len(chosen)-1] = f
			}
			continue
		}
		chosen = append(chosen, f)
	}
	return chosen
}

func prefer(a, b Finding) bool {
	if a.Len() != b.Len() {
		return a.Len() > b.Len()
	}
	return a.Kind < b.Kind
}

// Cluster groups overlapping findings. Each cluster is led by the finding
// Merge would keep and also carries every other finding with exactly the
// same span, ordered by score.
func Cluster(all []Finding) [][]Finding {
	if len(all) == 0 {
		return nil
	}
	kept := Merge(append([]Finding(nil), all...))
	out := make([][]Finding, 0, len(kept))
	for _, lead := range kept {
		group := []Finding{}
		for _, f := range all {
			if f.Start == lead.Start && f.End == lead.End {
				group = append(group, f)
			}
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score == group[j].Score {
				return group[i].Kind < group[j].Kind
			}
			return group[i].Score > group[j].Score
		})
		out = append(out, group)
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// bounded reports whether text[start:end] is not glued to a neighbouring
// word character.
func bounded(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return false
	}
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}
