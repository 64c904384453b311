// Package ner tags entities with an ONNX token classification model using
// BIO labels.
package ner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	ModelFile     = "model.onnx"
	LabelsFile    = "labels.json"
	TokenizerFile = "tokenizer.json"
)

var ErrUnavailable = errors.New("ner model unavailable")

// Span is a merged BIO entity with the mean score of its words.
type Span struct {
	Label string
	Start int
	End   int
	Score float64
}

type Options struct {
	SeqLen int
	// NewSession overrides the runtime; OpenSession when nil.
	NewSession SessionFactory
}

type Tagger struct {
	labels    []string
	tokenizer *Tokenizer
	session   Session
}

// Open loads labels, tokenizer and model from dir. Missing files are
// reported wrapped in ErrUnavailable.
func Open(dir string, opts Options) (*Tagger, error) {
	modelPath := filepath.Join(dir, ModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	labels, err := LoadLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	tok, err := LoadTokenizer(filepath.Join(dir, TokenizerFile), opts.SeqLen)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	factory := opts.NewSession
	if factory == nil {
		factory = OpenSession
	}
	session, err := factory(modelPath, tok.MaxSeqLen(), len(labels))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Tagger{labels: labels, tokenizer: tok, session: session}, nil
}

func (t *Tagger) Labels() []string { return t.labels }

func (t *Tagger) Close() error {
	if t == nil || t.session == nil {
		return nil
	}
	return t.session.Close()
}

// Tag labels every word by its first word piece and merges BIO runs.
func (t *Tagger) Tag(ctx context.Context, text string) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc := t.tokenizer.Encode(text)
	if len(enc.Words) == 0 {
		return nil, nil
	}
	logits, err := t.session.Run(ctx, enc.InputIDs, enc.AttentionMask, enc.TokenTypeIDs)
	if err != nil {
		return nil, err
	}
	if len(logits) < enc.Len() {
		return nil, fmt.Errorf("model returned %d rows for %d tokens", len(logits), enc.Len())
	}

	words := make([]Word, 0, len(enc.Words))
	labels := make([]string, 0, len(enc.Words))
	scores := make([]float64, 0, len(enc.Words))
	lastWord := -1
	for pos, wi := range enc.TokenToWordIdx {
		if wi < 0 || wi == lastWord {
			continue
		}
		lastWord = wi
		idx, p := argmax(softmax(logits[pos]))
		label := "O"
		if idx < len(t.labels) {
			label = t.labels[idx]
		}
		words = append(words, enc.Words[wi])
		labels = append(labels, label)
		scores = append(scores, p)
	}
	return mergeBIO(words, labels, scores), nil
}

// LoadLabels accepts either a JSON array or an {"index": "label"} object.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("no labels")
	}
	out := make([]string, len(m))
	for k, v := range m {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, err)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

func mergeBIO(words []Word, labels []string, scores []float64) []Span {
	out := make([]Span, 0)
	var cur *Span
	count := 0.0
	flush := func() {
		if cur != nil {
			cur.Score /= math.Max(1, count)
			out = append(out, *cur)
			cur = nil
			count = 0
		}
	}
	for i := range words {
		prefix, typ, ok := strings.Cut(labels[i], "-")
		if !ok || (prefix != "B" && prefix != "I") {
			flush()
			continue
		}
		if prefix == "B" || cur == nil || cur.Label != typ {
			flush()
			cur = &Span{Label: typ, Start: words[i].Start, End: words[i].End, Score: scores[i]}
			count = 1
			continue
		}
		cur.End = words[i].End
		cur.Score += scores[i]
		count++
	}
	flush()
	return out
}
