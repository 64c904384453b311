// Package redact replaces detected entities with numbered placeholders such
// as [PHONENUMBER_1] and puts the originals back afterwards.
package redact

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"datadetector/internal/detect"
)

// Detector is satisfied by *detect.Normalizer.
type Detector interface {
	Detect(ctx context.Context, text string, opts *detect.Options) ([]detect.Entity, error)
}

type Item struct {
	Type        string `json:"type"`
	Original    string `json:"original"`
	Placeholder string `json:"placeholder"`
}

type Redactor struct {
	detector        Detector
	types           []detect.Type
	maxReplacements int
	jsonKeys        map[string]struct{}
}

func New(d Detector) *Redactor {
	return &Redactor{detector: d, jsonKeys: defaultJSONKeys()}
}

// WithTypes limits redaction to the given types; nil redacts everything.
func (r *Redactor) WithTypes(types []detect.Type) *Redactor {
	r.types = types
	return r
}

func (r *Redactor) WithMaxReplacements(v int) *Redactor {
	r.maxReplacements = v
	return r
}

// Redact detects entities in text and replaces each distinct value with a
// placeholder. The same value always maps to the same placeholder.
func (r *Redactor) Redact(ctx context.Context, text string) (string, []Item, error) {
	if text == "" {
		return text, nil, nil
	}
	entities, err := r.detect(ctx, text)
	if err != nil {
		return text, nil, err
	}
	st := newState(r.maxReplacements)
	out := st.apply(text, entities)
	return out, st.items(), nil
}

func (r *Redactor) detect(ctx context.Context, text string) ([]detect.Entity, error) {
	return r.detector.Detect(ctx, text, &detect.Options{Types: r.types, Offsets: detect.OffsetBytes})
}

// Apply redacts text using entities already detected with byte offsets.
func Apply(text string, entities []detect.Entity) (string, []Item) {
	st := newState(0)
	out := st.apply(text, entities)
	return out, st.items()
}

func Restore(text string, items []Item) string {
	restored := text
	for _, item := range items {
		restored = strings.ReplaceAll(restored, item.Placeholder, item.Original)
	}
	return restored
}

// Mapping indexes items by placeholder, the shape StreamingRestorer takes.
func Mapping(items []Item) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		out[item.Placeholder] = item.Original
	}
	return out
}

func Placeholder(t detect.Type, n int) string {
	return "[" + strings.ToUpper(t.String()) + "_" + strconv.Itoa(n) + "]"
}

// state numbers placeholders per type and is shared across every string of
// one JSON document.
type state struct {
	maxReplacements int
	replacements    int
	counters        map[detect.Type]int
	byKey           map[string]string
	byPlaceholder   map[string]Item
}

func newState(maxReplacements int) *state {
	return &state{
		maxReplacements: maxReplacements,
		counters:        map[detect.Type]int{},
		byKey:           map[string]string{},
		byPlaceholder:   map[string]Item{},
	}
}

func (s *state) apply(input string, entities []detect.Entity) string {
	if len(entities) == 0 {
		return input
	}
	sorted := append([]detect.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End > sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})

	var b strings.Builder
	cursor := 0
	for _, e := range sorted {
		if e.Start < cursor || e.End > len(input) || e.Start >= e.End {
			continue
		}
		if s.maxReplacements > 0 && s.replacements >= s.maxReplacements {
			break
		}
		value := input[e.Start:e.End]
		if strings.TrimSpace(value) == "" {
			continue
		}
		key := e.Type.String() + "|" + value
		placeholder, ok := s.byKey[key]
		if !ok {
			s.counters[e.Type]++
			placeholder = Placeholder(e.Type, s.counters[e.Type])
			s.byKey[key] = placeholder
			s.byPlaceholder[placeholder] = Item{Type: e.Type.String(), Original: value, Placeholder: placeholder}
		}
		b.WriteString(input[cursor:e.Start])
		b.WriteString(placeholder)
		cursor = e.End
		s.replacements++
	}
	b.WriteString(input[cursor:])
	return b.String()
}

func (s *state) items() []Item {
	out := make([]Item, 0, len(s.byPlaceholder))
	for _, item := range s.byPlaceholder {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Placeholder < out[j].Placeholder })
	return out
}
