package redact

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"datadetector/internal/backend/textcheck"
	"datadetector/internal/detect"
)

// fakeDetector reports every occurrence of the configured values.
type fakeDetector struct {
	values map[string]detect.Type
	err    error
	calls  int
}

func (f *fakeDetector) Detect(_ context.Context, text string, opts *detect.Options) ([]detect.Entity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	wanted := opts.TypeSet()
	var out []detect.Entity
	for v, typ := range f.values {
		if !wanted.Has(typ) {
			continue
		}
		from := 0
		for {
			i := strings.Index(text[from:], v)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, detect.Entity{Type: typ, Text: v, Start: start, End: start + len(v)})
			from = start + len(v)
		}
	}
	return out, nil
}

func newFake() *fakeDetector {
	return &fakeDetector{values: map[string]detect.Type{
		"555-123-4567":        detect.PhoneNumber,
		"a@b.com":             detect.Email,
		"https://example.com": detect.Link,
	}}
}

func TestRedactReplacesValues(t *testing.T) {
	r := New(newFake())
	out, items, err := r.Redact(context.Background(), "call 555-123-4567 or mail a@b.com")
	if err != nil {
		t.Fatal(err)
	}
	if out != "call [PHONENUMBER_1] or mail [EMAIL_1]" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(items) != 2 {
		t.Fatalf("items=%d want 2", len(items))
	}
}

func TestRedactSameValueSamePlaceholder(t *testing.T) {
	r := New(newFake())
	out, items, err := r.Redact(context.Background(), "a@b.com and a@b.com")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "[EMAIL_1]") != 2 {
		t.Fatalf("expected placeholder reused, got %q", out)
	}
	if len(items) != 1 {
		t.Fatalf("items=%d want 1", len(items))
	}
}

func TestRedactTypesAndLimit(t *testing.T) {
	r := New(newFake()).WithTypes([]detect.Type{detect.Email})
	out, _, err := r.Redact(context.Background(), "555-123-4567 a@b.com")
	if err != nil {
		t.Fatal(err)
	}
	if out != "555-123-4567 [EMAIL_1]" {
		t.Fatalf("types filter ignored: %q", out)
	}

	r = New(newFake()).WithMaxReplacements(1)
	out, _, err = r.Redact(context.Background(), "555-123-4567 a@b.com")
	if err != nil {
		t.Fatal(err)
	}
	if out != "[PHONENUMBER_1] a@b.com" {
		t.Fatalf("limit ignored: %q", out)
	}
}

func TestRedactPropagatesDetectionError(t *testing.T) {
	boom := &detect.Error{Kind: detect.DetectionFailed, Err: errors.New("boom")}
	out, items, err := New(&fakeDetector{err: boom}).Redact(context.Background(), "x")
	if !errors.Is(err, detect.ErrDetectionFailed) {
		t.Fatalf("err=%v", err)
	}
	if out != "x" || items != nil {
		t.Fatalf("unexpected partial output %q %v", out, items)
	}
}

func TestRedactEmptyTextSkipsDetector(t *testing.T) {
	f := newFake()
	if _, _, err := New(f).Redact(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if f.calls != 0 {
		t.Fatalf("detector called %d times", f.calls)
	}
}

func TestApplySkipsOverlapsAndBadSpans(t *testing.T) {
	text := "see https://example.com now"
	out, items := Apply(text, []detect.Entity{
		{Type: detect.Link, Start: 4, End: 23},
		{Type: detect.Email, Start: 12, End: 23},
		{Type: detect.Date, Start: 20, End: 99},
	})
	if out != "see [LINK_1] now" {
		t.Fatalf("got %q", out)
	}
	if len(items) != 1 || items[0].Original != "https://example.com" {
		t.Fatalf("items=%+v", items)
	}
}

func TestRestore(t *testing.T) {
	orig := "send to a@b.com or https://example.com"
	red, items, err := New(newFake()).Redact(context.Background(), orig)
	if err != nil {
		t.Fatal(err)
	}
	if got := Restore(red, items); got != orig {
		t.Fatalf("restore mismatch: %q", got)
	}
	if m := Mapping(items); m["[EMAIL_1]"] != "a@b.com" {
		t.Fatalf("mapping=%v", m)
	}
}

func TestRedactWithTextcheckBackend(t *testing.T) {
	n := detect.New(textcheck.NewBackend(textcheck.Options{}), detect.Config{})
	out, items, err := New(n).Redact(context.Background(), "Call 555-123-4567 now")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Call [PHONENUMBER_1] now" {
		t.Fatalf("got %q", out)
	}
	if len(items) != 1 || items[0].Type != "phoneNumber" {
		t.Fatalf("items=%+v", items)
	}
}

func TestRedactJSON(t *testing.T) {
	input := []byte(`{"id":"a@b.com","message":"mail a@b.com","notes":["call 555-123-4567","a@b.com"]}`)
	out, items, err := New(newFake()).RedactJSON(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"a@b.com","message":"mail [EMAIL_1]","notes":["call [PHONENUMBER_1]","[EMAIL_1]"]}`
	if string(out) != want {
		t.Fatalf("want %s got %s", want, out)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestRedactJSONAllKeys(t *testing.T) {
	out, _, err := New(newFake()).WithJSONKeys().RedactJSON(context.Background(), []byte(`{"id":"a@b.com"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"id":"[EMAIL_1]"}` {
		t.Fatalf("got %s", out)
	}
}

func TestRedactJSONInvalid(t *testing.T) {
	raw := []byte(`{"message":`)
	out, _, err := New(newFake()).RedactJSON(context.Background(), raw)
	if err == nil {
		t.Fatal("expected error")
	}
	if string(out) != string(raw) {
		t.Fatalf("input not returned unchanged: %s", out)
	}
}

type chunkedReader struct {
	chunks []string
	index  int
	closed bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.index >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.index])
	c.index++
	return n, nil
}

func (c *chunkedReader) Close() error {
	c.closed = true
	return nil
}

func TestStreamingRestorerSplitPlaceholderAcrossChunks(t *testing.T) {
	src := &chunkedReader{chunks: []string{"Contact me at [EM", "AIL_1] for details"}}
	restorer := NewStreamingRestorer(src, []Item{{Type: "email", Original: "alice@company.com", Placeholder: "[EMAIL_1]"}})

	body, err := io.ReadAll(restorer)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := string(body); got != "Contact me at alice@company.com for details" {
		t.Fatalf("restored output mismatch: %q", got)
	}
	if err := restorer.Close(); err != nil || !src.closed {
		t.Fatalf("close err=%v closed=%v", err, src.closed)
	}
}

func TestStreamingRestorerSplitExactlyAtBoundary(t *testing.T) {
	src := &chunkedReader{chunks: []string{"[PHONENUMBER_", "1]", " and [x"}}
	restorer := NewStreamingRestorer(src, []Item{{Original: "555-123-4567", Placeholder: "[PHONENUMBER_1]"}})
	body, err := io.ReadAll(restorer)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(body); got != "555-123-4567 and [x" {
		t.Fatalf("got %q", got)
	}
}

func TestStreamingRestorerWithoutItemsPassesThrough(t *testing.T) {
	body, err := io.ReadAll(NewStreamingRestorer(strings.NewReader("[EMAIL_1] stays"), nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "[EMAIL_1] stays" {
		t.Fatalf("got %q", body)
	}
}
