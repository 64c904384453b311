package entityx

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode"

	"datadetector/internal/backend/entityx/ner"
	"datadetector/internal/logging"
	"datadetector/internal/recognize"
)

type tagger interface {
	Tag(ctx context.Context, text string) ([]ner.Span, error)
}

type hybridConfig struct {
	NEREnabled bool
	Timeout    time.Duration
	MinScore   float64
	Kinds      recognize.Kinds
	Location   *time.Location
	Now        func() time.Time
}

// annotator runs the rule recognizers and, when a tagger is loaded, the NER
// model; tagger failures degrade to rules only.
type annotator struct {
	rules  *recognize.Recognizer
	tagger tagger
	cfg    hybridConfig
	logger logging.Logger
}

func (a *annotator) annotate(ctx context.Context, text string) []EntityAnnotation {
	if a.cfg.Kinds == 0 {
		return []EntityAnnotation{}
	}
	findings := a.rules.FindAll(text)
	if a.cfg.NEREnabled && a.tagger != nil && shouldRunNER(text) {
		findings = append(findings, a.tag(ctx, text)...)
	}
	clusters := recognize.Cluster(findings)
	out := make([]EntityAnnotation, 0, len(clusters))
	for _, group := range clusters {
		lead := group[0]
		ann := EntityAnnotation{Start: lead.Start, End: lead.End, Text: text[lead.Start:lead.End]}
		seen := map[EntityType]bool{}
		for _, f := range group {
			e := toEntity(f)
			if seen[e.Type] {
				continue
			}
			seen[e.Type] = true
			ann.Entities = append(ann.Entities, e)
		}
		out = append(out, ann)
	}
	return out
}

func (a *annotator) tag(ctx context.Context, text string) []recognize.Finding {
	nerCtx := ctx
	cancel := func() {}
	if a.cfg.Timeout > 0 {
		nerCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
	}
	spans, err := a.tagger.Tag(nerCtx, text)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		a.logger.Warn("ner inference timed out, using rules only", "timeout", a.cfg.Timeout.String())
		return nil
	default:
		a.logger.Warn("ner inference failed, using rules only", "error", err)
		return nil
	}

	now := a.cfg.Now().In(a.cfg.Location)
	out := make([]recognize.Finding, 0, len(spans))
	dropped := 0
	for _, s := range spans {
		kind, ok := nerKinds[strings.ToUpper(s.Label)]
		if !ok || !a.cfg.Kinds.Has(kind) {
			continue
		}
		if s.Score < a.cfg.MinScore {
			dropped++
			continue
		}
		out = append(out, nerFinding(kind, s, text[s.Start:s.End], now, a.cfg.Location))
	}
	if len(spans) > 0 && len(out) == 0 && dropped > 0 {
		a.logger.Debug("ner spans all below min score", "spans", len(spans), "min_score", a.cfg.MinScore)
	}
	return out
}

// nerFinding fills in whatever payload can be recovered from the raw span.
func nerFinding(kind recognize.Kind, s ner.Span, raw string, now time.Time, loc *time.Location) recognize.Finding {
	f := recognize.Finding{Kind: kind, Start: s.Start, End: s.End, Value: raw, Score: s.Score * 0.9, Source: SourceNER}
	switch kind {
	case recognize.KindPhone:
		f.Phone = raw
	case recognize.KindURL:
		target := raw
		if !strings.Contains(raw, "://") {
			target = "http://" + raw
		}
		if u, err := url.Parse(target); err == nil && u.Host != "" {
			f.URL = u
		}
	case recognize.KindEmail:
		f.URL = &url.URL{Scheme: "mailto", Opaque: strings.TrimPrefix(raw, "mailto:")}
	case recognize.KindDate:
		f.Time, f.HasTime = recognize.ParseDate(raw, now, loc)
	}
	return f
}

func toEntity(f recognize.Finding) Entity {
	source := f.Source
	if source == "" {
		source = SourceRules
	}
	return Entity{
		Type:    kindTypes[f.Kind],
		Score:   f.Score,
		Source:  source,
		Phone:   f.Phone,
		URL:     f.URL,
		Address: f.Address,
		Time:    f.Time,
		HasTime: f.HasTime,
	}
}

// shouldRunNER skips the model for text that does not read like prose.
func shouldRunNER(text string) bool {
	if len(text) < 8 {
		return false
	}
	var total, letters, spaces float64
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			letters++
		}
		if unicode.IsSpace(r) {
			spaces++
		}
	}
	return letters/total > 0.4 && spaces/total > 0.05
}
