package textcheck

import (
	"context"
	"testing"
	"time"

	"datadetector/internal/detect"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newNormalizer() *detect.Normalizer {
	b := NewBackend(Options{Now: func() time.Time { return fixedNow }})
	return detect.New(b, detect.Config{Location: time.UTC})
}

func detectTypes(t *testing.T, text string, types ...detect.Type) []detect.Entity {
	t.Helper()
	got, err := newNormalizer().Detect(context.Background(), text, &detect.Options{Types: types})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestNewCheckerRejectsEmptyMask(t *testing.T) {
	if _, err := NewChecker(0, Options{}); err != ErrNoTypes {
		t.Fatalf("expected ErrNoTypes, got %v", err)
	}
	if _, err := NewChecker(1<<40, Options{}); err != ErrNoTypes {
		t.Fatalf("unsupported bits must be ignored, got %v", err)
	}
}

func TestCheckerMatches(t *testing.T) {
	c, err := NewChecker(AllTypes, Options{Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatal(err)
	}
	got := c.Matches("Call 555-123-4567 or mail ops@example.com, flight UA 123")
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %+v", got)
	}
	if got[0].ResultType != TypePhoneNumber || got[0].PhoneNumber != "555-123-4567" || got[0].Range != (Range{Location: 5, Length: 12}) {
		t.Fatalf("unexpected phone result %+v", got[0])
	}
	if got[1].ResultType != TypeLink || got[1].URL.String() != "mailto:ops@example.com" {
		t.Fatalf("unexpected link result %+v", got[1])
	}
	if got[2].ResultType != TypeTransitInformation || got[2].Components[TransitFlight] != "UA 123" {
		t.Fatalf("unexpected transit result %+v", got[2])
	}
}

func TestCheckingTypesForEmailUsesLink(t *testing.T) {
	if got := CheckingTypesFor(detect.NewTypeSet(detect.Email)); got != TypeLink {
		t.Fatalf("got %b", got)
	}
	if got := CheckingTypesFor(detect.AllTypeSet()); got != TypeDate|TypeAddress|TypeLink|TypePhoneNumber {
		t.Fatalf("got %b", got)
	}
}

func TestDetectPhoneNumber(t *testing.T) {
	got := detectTypes(t, "Call me at 555-123-4567", detect.PhoneNumber)
	if len(got) != 1 {
		t.Fatalf("expected one entity, got %+v", got)
	}
	e := got[0]
	if e.Type != detect.PhoneNumber || e.Text != "555-123-4567" || e.Data["phoneNumber"] != "555-123-4567" {
		t.Fatalf("unexpected entity %+v", e)
	}
	if e.Start != 11 || e.End != 23 {
		t.Fatalf("unexpected offsets %d..%d", e.Start, e.End)
	}
}

func TestDetectLink(t *testing.T) {
	got := detectTypes(t, "Visit https://example.com today", detect.Link)
	if len(got) != 1 || got[0].Type != detect.Link || got[0].Data["url"] != "https://example.com" {
		t.Fatalf("unexpected entities %+v", got)
	}
}

func TestDetectEmailStripsScheme(t *testing.T) {
	got := detectTypes(t, "email me: a@b.com", detect.Email)
	if len(got) != 1 || got[0].Type != detect.Email || got[0].Data["email"] != "a@b.com" {
		t.Fatalf("unexpected entities %+v", got)
	}
	got = detectTypes(t, "email me: mailto:a@b.com", detect.Email)
	if len(got) != 1 || got[0].Data["email"] != "a@b.com" || got[0].Text != "mailto:a@b.com" {
		t.Fatalf("unexpected entities %+v", got)
	}
}

func TestDetectEmailNotReportedAsLink(t *testing.T) {
	got := detectTypes(t, "email me: a@b.com", detect.Link)
	if len(got) != 0 {
		t.Fatalf("mailto links must not surface as link: %+v", got)
	}
}

func TestDetectAddressAndDate(t *testing.T) {
	got := detectTypes(t, "Meet at 1 Infinite Loop, Cupertino, CA 95014 tomorrow", detect.Address, detect.Date)
	if len(got) != 2 {
		t.Fatalf("expected address and date, got %+v", got)
	}
	addr := got[0]
	if addr.Type != detect.Address || addr.Data["street"] != "1 Infinite Loop" || addr.Data["city"] != "Cupertino" ||
		addr.Data["state"] != "CA" || addr.Data["zip"] != "95014" {
		t.Fatalf("unexpected address %+v", addr)
	}
	if _, ok := addr.Data["country"]; ok {
		t.Fatalf("missing components must be omitted: %+v", addr.Data)
	}
	date := got[1]
	if date.Type != detect.Date || date.Data["date"] != "2026-10-20T00:00:00Z" {
		t.Fatalf("unexpected date %+v", date)
	}
}

func TestTransitInformationIsUnmapped(t *testing.T) {
	s, err := NewBackend(Options{}).Open(context.Background(), detect.SessionOptions{})
	if err != nil {
		t.Fatal(err)
	}
	anns, err := s.Annotate(context.Background(), "boarding flight UA 123")
	if err != nil {
		t.Fatal(err)
	}
	if len(anns) != 1 || anns[0].Candidates[0].Category() != CategoryTransit {
		t.Fatalf("unexpected annotations %+v", anns)
	}
	if _, ok := taxonomy.Classify(CategoryTransit); ok {
		t.Fatal("transit information must not map to a shared type")
	}
	got := detectTypes(t, "boarding flight UA 123", detect.AllTypes()...)
	if len(got) != 0 {
		t.Fatalf("transit results have no shared type: %+v", got)
	}
}

func TestDetectNoEntities(t *testing.T) {
	got, err := newNormalizer().Detect(context.Background(), "nothing to see here", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}
