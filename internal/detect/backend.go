package detect

import (
	"context"
	"net/url"
	"time"
)

// Backend is a detection engine with its own category vocabulary.
type Backend interface {
	Name() string
	Taxonomy() Taxonomy
	// Open performs any one-time setup (model materialization) and returns a
	// session scoped to a single Detect call.
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

type SessionOptions struct {
	Language string
	// Types is a hint; backends may skip work for types nobody asked for.
	// The normalizer filters regardless.
	Types TypeSet
}

type Session interface {
	Annotate(ctx context.Context, text string) ([]Annotation, error)
	Close() error
}

// Annotation is one raw match. Start and End are byte offsets into the
// annotated text. Candidates are ordered by the backend's preference.
type Annotation struct {
	Start      int
	End        int
	Candidates []Candidate
}

// Candidate is one possible classification of an annotation. Payload is
// exposed through the optional accessor interfaces below.
type Candidate interface {
	Category() string
}

type PhoneNumberer interface {
	PhoneNumber() (string, bool)
}

type URLer interface {
	URL() (*url.URL, bool)
}

type Addresser interface {
	AddressComponents() (AddressComponents, bool)
}

type Timer interface {
	Time() (time.Time, bool)
}

// AddressComponents holds whatever parts of a postal address a backend
// could split out. Empty fields are omitted from Entity.Data.
type AddressComponents struct {
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

func (a AddressComponents) IsZero() bool {
	return a == AddressComponents{}
}

// Category is a Candidate with no payload.
type Category string

func (c Category) Category() string { return string(c) }

// Taxonomy maps a backend's raw category codes to the shared vocabulary.
type Taxonomy map[string]Type

// Classify is total: anything not in the table reports false.
func (t Taxonomy) Classify(category string) (Type, bool) {
	typ, ok := t[category]
	if !ok || !typ.Valid() {
		return 0, false
	}
	return typ, true
}
