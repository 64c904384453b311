package detect

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCandidate struct {
	cat   string
	phone string
	link  string
	addr  *AddressComponents
	when  time.Time
}

func (c fakeCandidate) Category() string { return c.cat }

func (c fakeCandidate) PhoneNumber() (string, bool) { return c.phone, c.phone != "" }

func (c fakeCandidate) URL() (*url.URL, bool) {
	if c.link == "" {
		return nil, false
	}
	u, err := url.Parse(c.link)
	return u, err == nil
}

func (c fakeCandidate) AddressComponents() (AddressComponents, bool) {
	if c.addr == nil {
		return AddressComponents{}, false
	}
	return *c.addr, true
}

func (c fakeCandidate) Time() (time.Time, bool) { return c.when, !c.when.IsZero() }

type fakeBackend struct {
	openErr     error
	annotateErr error
	annotate    func(text string) []Annotation

	opened   atomic.Int32
	closed   atomic.Int32
	lastOpts SessionOptions
	mu       sync.Mutex
}

var fakeTaxonomy = Taxonomy{
	"PHONE":   PhoneNumber,
	"URL":     Link,
	"MAILTO":  Email,
	"ADDRESS": Address,
	"WHEN":    Date,
}

func (b *fakeBackend) Name() string       { return "fake" }
func (b *fakeBackend) Taxonomy() Taxonomy { return fakeTaxonomy }

func (b *fakeBackend) Open(_ context.Context, opts SessionOptions) (Session, error) {
	b.opened.Add(1)
	b.mu.Lock()
	b.lastOpts = opts
	b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &fakeSession{b: b}, nil
}

type fakeSession struct{ b *fakeBackend }

func (s *fakeSession) Annotate(_ context.Context, text string) ([]Annotation, error) {
	if s.b.annotateErr != nil {
		return nil, s.b.annotateErr
	}
	if s.b.annotate == nil {
		return nil, nil
	}
	return s.b.annotate(text), nil
}

func (s *fakeSession) Close() error {
	s.b.closed.Add(1)
	return nil
}

func spanOf(text, sub string) (int, int) {
	i := strings.Index(text, sub)
	return i, i + len(sub)
}

func annotationAt(text, sub string, cands ...Candidate) Annotation {
	s, e := spanOf(text, sub)
	return Annotation{Start: s, End: e, Candidates: cands}
}

const sample = "Call 555-123-4567, visit https://example.com or mail a@b.com on 2024-03-15."

func sampleAnnotations(text string) []Annotation {
	return []Annotation{
		annotationAt(text, "555-123-4567", fakeCandidate{cat: "PHONE", phone: "555-123-4567"}),
		annotationAt(text, "https://example.com", fakeCandidate{cat: "URL", link: "https://example.com"}),
		annotationAt(text, "a@b.com", fakeCandidate{cat: "MAILTO", link: "mailto:a@b.com"}),
		annotationAt(text, "2024-03-15", fakeCandidate{cat: "WHEN", when: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}),
	}
}

func TestDetectMapsAllTypes(t *testing.T) {
	b := &fakeBackend{annotate: sampleAnnotations}
	n := New(b, Config{Location: time.UTC})
	got, err := n.Detect(context.Background(), sample, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entity{
		{Type: PhoneNumber, Text: "555-123-4567", Data: map[string]string{"phoneNumber": "555-123-4567"}},
		{Type: Link, Text: "https://example.com", Data: map[string]string{"url": "https://example.com"}},
		{Type: Email, Text: "a@b.com", Data: map[string]string{"email": "a@b.com"}},
		{Type: Date, Text: "2024-03-15", Data: map[string]string{"date": "2024-03-15T00:00:00Z"}},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entities, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Type != want[i].Type || got[i].Text != want[i].Text || !reflect.DeepEqual(got[i].Data, want[i].Data) {
			t.Fatalf("entity %d = %+v, want %+v", i, got[i], want[i])
		}
		if sample[got[i].Start:got[i].End] != got[i].Text {
			t.Fatalf("offsets of %+v do not slice to text", got[i])
		}
	}
	if b.opened.Load() != 1 || b.closed.Load() != 1 {
		t.Fatalf("opened=%d closed=%d, want 1/1", b.opened.Load(), b.closed.Load())
	}
}

func TestDetectFiltersByWantedTypes(t *testing.T) {
	b := &fakeBackend{annotate: sampleAnnotations}
	n := New(b, Config{})
	subsets := [][]Type{{PhoneNumber}, {Link, Email}, {Date}, {Address}, AllTypes()}
	for _, subset := range subsets {
		set := NewTypeSet(subset...)
		got, err := n.Detect(context.Background(), sample, &Options{Types: subset})
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range got {
			if !set.Has(e.Type) {
				t.Fatalf("subset %v returned %v", set, e.Type)
			}
		}
	}
	if b.lastOpts.Types != NewTypeSet(AllTypes()...) {
		t.Fatalf("expected type hint to reach backend, got %v", b.lastOpts.Types)
	}
}

func TestDetectEmptyTypeSetSkipsBackend(t *testing.T) {
	b := &fakeBackend{annotate: sampleAnnotations}
	got, err := New(b, Config{}).Detect(context.Background(), sample, &Options{Types: []Type{}})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
	if b.opened.Load() != 0 {
		t.Fatal("backend should not be opened for an empty type set")
	}
}

func TestDetectNoMatchesIsEmptyList(t *testing.T) {
	got, err := New(&fakeBackend{}, Config{}).Detect(context.Background(), "nothing to see here", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected [], got %#v", got)
	}
}

func TestDetectFirstMappedWantedCandidateWins(t *testing.T) {
	text := "4111 1111 1111 1111"
	b := &fakeBackend{annotate: func(text string) []Annotation {
		return []Annotation{{Start: 0, End: len(text), Candidates: []Candidate{
			fakeCandidate{cat: "PAYMENT_CARD"},
			fakeCandidate{cat: "WHEN"},
			fakeCandidate{cat: "PHONE", phone: "4111111111111111"},
		}}}
	}}
	n := New(b, Config{})

	got, err := n.Detect(context.Background(), text, &Options{Types: []Type{PhoneNumber}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != PhoneNumber {
		t.Fatalf("expected one phone entity, got %+v", got)
	}

	got, err = n.Detect(context.Background(), text, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != Date {
		t.Fatalf("expected the first mapped candidate (date), got %+v", got)
	}
	if len(got[0].Data) != 0 {
		t.Fatalf("date without a time value should have empty data, got %v", got[0].Data)
	}
}

func TestDetectDropsUnmappedAndDuplicateSpans(t *testing.T) {
	text := "flight UA 123 and 555-123-4567"
	b := &fakeBackend{annotate: func(text string) []Annotation {
		phone := annotationAt(text, "555-123-4567", fakeCandidate{cat: "PHONE"})
		return []Annotation{
			annotationAt(text, "UA 123", fakeCandidate{cat: "FLIGHT"}),
			phone,
			phone,
			{Start: -1, End: 3, Candidates: []Candidate{fakeCandidate{cat: "PHONE"}}},
			{Start: 5, End: len(text) + 10, Candidates: []Candidate{fakeCandidate{cat: "PHONE"}}},
			{Start: 0, End: 3, Candidates: []Candidate{nil, Category("NOPE")}},
		}
	}}
	got, err := New(b, Config{}).Detect(context.Background(), text, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single entity, got %+v", got)
	}
	if got[0].Data["phoneNumber"] != "555-123-4567" {
		t.Fatalf("phone without accessor value should fall back to matched text: %v", got[0].Data)
	}
}

func TestDetectAddressComponents(t *testing.T) {
	text := "Ship to 1 Infinite Loop, Cupertino, CA 95014 please"
	b := &fakeBackend{annotate: func(text string) []Annotation {
		return []Annotation{
			annotationAt(text, "1 Infinite Loop, Cupertino, CA 95014", fakeCandidate{cat: "ADDRESS", addr: &AddressComponents{
				Street: "1 Infinite Loop", City: "Cupertino", State: "CA", Zip: "95014",
			}}),
		}
	}}
	got, err := New(b, Config{}).Detect(context.Background(), text, &Options{Types: []Type{Address}})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"street": "1 Infinite Loop", "city": "Cupertino", "state": "CA", "zip": "95014"}
	if len(got) != 1 || !reflect.DeepEqual(got[0].Data, want) {
		t.Fatalf("unexpected address entity: %+v", got)
	}
}

func TestDetectOffsetUnits(t *testing.T) {
	text := "é 👋 call 555-123-4567"
	b := &fakeBackend{annotate: func(text string) []Annotation {
		return []Annotation{annotationAt(text, "555-123-4567", fakeCandidate{cat: "PHONE"})}
	}}
	n := New(b, Config{})
	cases := []struct {
		unit       OffsetUnit
		start, end int
	}{
		{OffsetBytes, 13, 25},
		{OffsetRunes, 9, 21},
		{OffsetUTF16, 10, 22},
	}
	for _, tc := range cases {
		got, err := n.Detect(context.Background(), text, &Options{Offsets: tc.unit})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Start != tc.start || got[0].End != tc.end {
			t.Fatalf("%s: got %+v, want [%d:%d]", tc.unit, got, tc.start, tc.end)
		}
	}
	if _, err := n.Detect(context.Background(), text, &Options{Offsets: "graphemes"}); err == nil {
		t.Fatal("expected unknown offset unit to be rejected")
	}
}

func TestDetectSetupFailureIsModelUnavailable(t *testing.T) {
	cause := errors.New("network unreachable")
	b := &fakeBackend{openErr: cause, annotate: sampleAnnotations}
	got, err := New(b, Config{}).Detect(context.Background(), sample, nil)
	if got != nil {
		t.Fatalf("expected no partial result, got %+v", got)
	}
	if !errors.Is(err, ErrModelUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("unexpected error %v", err)
	}
	if ErrorCode(err) != CodeModelDownload {
		t.Fatalf("code=%q", ErrorCode(err))
	}
	var de *Error
	if !errors.As(err, &de) || de.Message() != "network unreachable" || de.Backend != "fake" {
		t.Fatalf("unexpected detection error %#v", err)
	}
}

func TestDetectAnnotateFailureIsDetectionFailedAndCloses(t *testing.T) {
	b := &fakeBackend{annotateErr: errors.New("engine crashed")}
	got, err := New(b, Config{}).Detect(context.Background(), sample, nil)
	if got != nil {
		t.Fatalf("expected nil result, got %+v", got)
	}
	if !errors.Is(err, ErrDetectionFailed) || errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("unexpected error %v", err)
	}
	if ErrorCode(err) != CodeDetection {
		t.Fatalf("code=%q", ErrorCode(err))
	}
	if b.closed.Load() != 1 {
		t.Fatal("session must be closed on failure")
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	n := New(&fakeBackend{annotate: sampleAnnotations}, Config{Location: time.UTC})
	a, err := n.Detect(context.Background(), sample, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := n.Detect(context.Background(), sample, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ:\n%+v\n%+v", a, b)
	}
}

func TestDetectAsyncConcurrentCalls(t *testing.T) {
	b := &fakeBackend{annotate: sampleAnnotations}
	n := New(b, Config{})
	futures := make([]*Future, 16)
	for i := range futures {
		futures[i] = n.DetectAsync(context.Background(), sample, nil)
	}
	for _, f := range futures {
		got, err := f.Wait(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 4 {
			t.Fatalf("expected 4 entities, got %d", len(got))
		}
	}
	if b.opened.Load() != 16 || b.closed.Load() != 16 {
		t.Fatalf("each call must own its session: opened=%d closed=%d", b.opened.Load(), b.closed.Load())
	}
}
