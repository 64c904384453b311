package entityx

import (
	"context"
	"net/url"
	"time"

	"datadetector/internal/detect"
	"datadetector/internal/models"
)

const Name = "entityx"

var taxonomy = detect.Taxonomy{
	string(TypePhone):    detect.PhoneNumber,
	string(TypeURL):      detect.Link,
	string(TypeEmail):    detect.Email,
	string(TypeAddress):  detect.Address,
	string(TypeDateTime): detect.Date,
}

// Backend opens one Client per session, as each Detect call is independent.
// The shared Downloader keeps concurrent installs of the same model from
// racing.
type Backend struct {
	opts Options
}

func NewBackend(opts Options) *Backend {
	if opts.Downloader == nil {
		opts.Downloader = models.NewDownloader()
	}
	if opts.Registry == nil {
		if reg, err := models.LoadEmbeddedRegistry(); err == nil {
			opts.Registry = &reg
		}
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Taxonomy() detect.Taxonomy { return taxonomy }

func (b *Backend) Open(ctx context.Context, so detect.SessionOptions) (detect.Session, error) {
	opts := b.opts
	if so.Language != "" {
		opts.Language = so.Language
	}
	if !so.Types.Empty() {
		opts.Types = TypesFor(so.Types)
	}
	c := NewClient(opts)
	if err := c.DownloadModelIfNeeded(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &session{client: c}, nil
}

// TypesFor lists the entity types feeding the wanted shared types.
func TypesFor(wanted detect.TypeSet) []EntityType {
	out := make([]EntityType, 0, len(taxonomy))
	for _, t := range []EntityType{TypePhone, TypeURL, TypeEmail, TypeAddress, TypeDateTime} {
		if wanted.Has(taxonomy[string(t)]) {
			out = append(out, t)
		}
	}
	return out
}

type session struct {
	client *Client
}

func (s *session) Annotate(ctx context.Context, text string) ([]detect.Annotation, error) {
	anns, err := s.client.Annotate(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]detect.Annotation, 0, len(anns))
	for _, a := range anns {
		cands := make([]detect.Candidate, 0, len(a.Entities))
		for _, e := range a.Entities {
			cands = append(cands, candidate{e})
		}
		out = append(out, detect.Annotation{Start: a.Start, End: a.End, Candidates: cands})
	}
	return out, nil
}

func (s *session) Close() error { return s.client.Close() }

type candidate struct {
	e Entity
}

func (c candidate) Category() string { return string(c.e.Type) }

func (c candidate) PhoneNumber() (string, bool) { return c.e.Phone, c.e.Phone != "" }

func (c candidate) URL() (*url.URL, bool) { return c.e.URL, c.e.URL != nil }

func (c candidate) AddressComponents() (detect.AddressComponents, bool) {
	a := c.e.Address
	comp := detect.AddressComponents{Street: a.Street, City: a.City, State: a.State, Zip: a.Zip, Country: a.Country}
	return comp, !comp.IsZero()
}

func (c candidate) Time() (time.Time, bool) { return c.e.Time, c.e.HasTime }
