package detect

import (
	"context"
	"time"

	"datadetector/internal/logging"
)

type Config struct {
	// Language is handed to the backend; "" lets the backend pick its default.
	Language string
	// Location is the zone date values are rendered in. Nil keeps the
	// backend's own zone.
	Location *time.Location
	Logger   logging.Logger
}

// Normalizer turns raw backend annotations into the shared Entity contract.
// It keeps no state between calls and is safe for concurrent use.
type Normalizer struct {
	backend Backend
	cfg     Config
}

func New(backend Backend, cfg Config) *Normalizer {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Normalizer{backend: backend, cfg: cfg}
}

func (n *Normalizer) Backend() Backend { return n.backend }

func (n *Normalizer) Detect(ctx context.Context, text string, opts *Options) ([]Entity, error) {
	unit, err := ParseOffsetUnit(string(opts.offsetUnit()))
	if err != nil {
		return nil, err
	}
	wanted := opts.TypeSet()
	if wanted.Empty() {
		return []Entity{}, nil
	}

	session, err := n.backend.Open(ctx, SessionOptions{Language: n.cfg.Language, Types: wanted})
	if err != nil {
		return nil, &Error{Kind: ModelUnavailable, Backend: n.backend.Name(), Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			n.cfg.Logger.Warn("backend session close failed", "backend", n.backend.Name(), "error", cerr)
		}
	}()

	annotations, err := session.Annotate(ctx, text)
	if err != nil {
		return nil, &Error{Kind: DetectionFailed, Backend: n.backend.Name(), Err: err}
	}
	return n.normalize(text, annotations, wanted, unit), nil
}

func (n *Normalizer) normalize(text string, annotations []Annotation, wanted TypeSet, unit OffsetUnit) []Entity {
	taxonomy := n.backend.Taxonomy()
	offsets := newOffsetMapper(text, unit)
	seen := make(map[[2]int]struct{}, len(annotations))
	out := make([]Entity, 0, len(annotations))

	for _, a := range annotations {
		typ, cand, ok := pick(taxonomy, a.Candidates, wanted)
		if !ok {
			continue
		}
		if !validSpan(text, a.Start, a.End) {
			n.cfg.Logger.Debug("dropping out-of-range annotation", "backend", n.backend.Name(), "start", a.Start, "end", a.End, "len", len(text))
			continue
		}
		span := [2]int{a.Start, a.End}
		if _, dup := seen[span]; dup {
			continue
		}
		seen[span] = struct{}{}

		matched := text[a.Start:a.End]
		out = append(out, Entity{
			Type:  typ,
			Text:  matched,
			Start: offsets.convert(a.Start),
			End:   offsets.convert(a.End),
			Data:  extractFields(typ, cand, matched, n.cfg.Location),
		})
	}
	return out
}

// pick returns the first candidate that is both mapped and wanted.
func pick(taxonomy Taxonomy, candidates []Candidate, wanted TypeSet) (Type, Candidate, bool) {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		typ, ok := taxonomy.Classify(c.Category())
		if !ok || !wanted.Has(typ) {
			continue
		}
		return typ, c, true
	}
	return 0, nil, false
}
