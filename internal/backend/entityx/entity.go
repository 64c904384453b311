// Package entityx is the model-backed entity extraction engine. A Client is
// bound to one language model which it installs on demand, and reports
// annotations that may carry several entity interpretations each.
package entityx

import (
	"errors"
	"net/url"
	"time"

	"datadetector/internal/recognize"
)

type EntityType string

const (
	TypeAddress        EntityType = "address"
	TypeDateTime       EntityType = "date_time"
	TypeEmail          EntityType = "email"
	TypeFlightNumber   EntityType = "flight_number"
	TypeIBAN           EntityType = "iban"
	TypeISBN           EntityType = "isbn"
	TypePaymentCard    EntityType = "payment_card"
	TypePhone          EntityType = "phone"
	TypeTrackingNumber EntityType = "tracking_number"
	TypeURL            EntityType = "url"
	TypeMoney          EntityType = "money"
)

var (
	ErrTextTooLarge       = errors.New("entityx: text exceeds size limit")
	ErrModelNotDownloaded = errors.New("entityx: model not downloaded")
)

const (
	SourceRules = "rules"
	SourceNER   = "ner"
)

// Entity is one interpretation of an annotated span.
type Entity struct {
	Type   EntityType
	Score  float64
	Source string

	Phone   string
	URL     *url.URL
	Address recognize.Address
	Time    time.Time
	HasTime bool
}

// EntityAnnotation is a byte span with its interpretations, best first.
type EntityAnnotation struct {
	Start    int
	End      int
	Text     string
	Entities []Entity
}

var kindTypes = map[recognize.Kind]EntityType{
	recognize.KindEmail:       TypeEmail,
	recognize.KindURL:         TypeURL,
	recognize.KindAddress:     TypeAddress,
	recognize.KindDate:        TypeDateTime,
	recognize.KindPhone:       TypePhone,
	recognize.KindIBAN:        TypeIBAN,
	recognize.KindPaymentCard: TypePaymentCard,
	recognize.KindFlight:      TypeFlightNumber,
}

// nerKinds maps tagger labels onto the rule kinds they overlap with.
var nerKinds = map[string]recognize.Kind{
	"ADDRESS":   recognize.KindAddress,
	"DATE_TIME": recognize.KindDate,
	"DATE":      recognize.KindDate,
	"PHONE":     recognize.KindPhone,
	"URL":       recognize.KindURL,
	"EMAIL":     recognize.KindEmail,
}

func kindsFor(types []EntityType) recognize.Kinds {
	if len(types) == 0 {
		return recognize.AllKinds
	}
	var kinds []recognize.Kind
	for k, t := range kindTypes {
		for _, want := range types {
			if t == want {
				kinds = append(kinds, k)
			}
		}
	}
	return recognize.KindsOf(kinds...)
}
