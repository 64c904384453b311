package recognize

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestRecognizer(kinds ...Kind) *Recognizer {
	return New(Config{Now: func() time.Time { return fixedNow }, Kinds: KindsOf(kinds...)})
}

func findOne(t *testing.T, r *Recognizer, text string, kind Kind) Finding {
	t.Helper()
	for _, f := range r.Find(text) {
		if f.Kind == kind {
			return f
		}
	}
	t.Fatalf("no %s finding in %q: %+v", kind, text, r.Find(text))
	return Finding{}
}

func TestFindPhone(t *testing.T) {
	r := newTestRecognizer(KindPhone)
	text := "Call 555-123-4567 now"
	f := findOne(t, r, text, KindPhone)
	if f.Start != 5 || f.End != 17 || f.Phone != "555-123-4567" {
		t.Fatalf("unexpected phone %+v", f)
	}
	if got := r.Find("order 12345 shipped"); len(got) != 0 {
		t.Fatalf("short digit runs are not phones: %+v", got)
	}
}

func TestFindEmailAndLinks(t *testing.T) {
	r := newTestRecognizer(KindEmail, KindURL)
	text := "mail jane@example.com. (see https://example.com/docs). or visit example.org"
	got := r.Find(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 findings, got %+v", got)
	}
	if got[0].Kind != KindEmail || got[0].Value != "jane@example.com" || got[0].URL.Scheme != "mailto" || got[0].URL.Opaque != "jane@example.com" {
		t.Fatalf("unexpected email %+v", got[0])
	}
	if got[1].Kind != KindURL || got[1].URL.String() != "https://example.com/docs" {
		t.Fatalf("unexpected link %+v", got[1])
	}
	if got[2].Kind != KindURL || got[2].URL.String() != "http://example.org" {
		t.Fatalf("unexpected bare host %+v", got[2])
	}
}

func TestFindMailtoKeepsPrefixInSpan(t *testing.T) {
	r := newTestRecognizer(KindEmail)
	f := findOne(t, r, "write mailto:ops@example.com", KindEmail)
	if f.Value != "mailto:ops@example.com" || f.URL.Opaque != "ops@example.com" {
		t.Fatalf("unexpected %+v", f)
	}
}

func TestFindAddress(t *testing.T) {
	r := newTestRecognizer(KindAddress)
	f := findOne(t, r, "Visit 1 Infinite Loop, Cupertino, CA 95014, USA today", KindAddress)
	want := Address{Street: "1 Infinite Loop", City: "Cupertino", State: "CA", Zip: "95014", Country: "United States"}
	if f.Address != want {
		t.Fatalf("got %+v want %+v", f.Address, want)
	}
	if f.Value != "1 Infinite Loop, Cupertino, CA 95014, USA" {
		t.Fatalf("unexpected span %q", f.Value)
	}
}

func TestLookupCountryFoldsAccents(t *testing.T) {
	name, n := lookupCountry(", México and more")
	if name != "Mexico" || n != len(", México") {
		t.Fatalf("got %q %d", name, n)
	}
	if name, _ := lookupCountry(" Call me"); name != "" {
		t.Fatalf("unexpected country %q", name)
	}
}

func TestFindDates(t *testing.T) {
	r := newTestRecognizer(KindDate)
	cases := []struct {
		text string
		want time.Time
	}{
		{"due 2024-03-15 please", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"on March 15, 2024 we ship", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"see you tomorrow", time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)},
		{"it was yesterday", time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		f := findOne(t, r, tc.text, KindDate)
		if !f.HasTime || !f.Time.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.text, f.Time, tc.want)
		}
	}
}

func TestFindFinance(t *testing.T) {
	r := newTestRecognizer(KindIBAN, KindPaymentCard, KindFlight, KindPhone)
	iban := findOne(t, r, "pay GB82 WEST 1234 5698 7654 32 today", KindIBAN)
	if iban.Value != "GB82 WEST 1234 5698 7654 32" {
		t.Fatalf("unexpected iban %q", iban.Value)
	}
	card := findOne(t, r, "card 4111 1111 1111 1111 exp", KindPaymentCard)
	if card.Value != "4111 1111 1111 1111" {
		t.Fatalf("unexpected card %q", card.Value)
	}
	for _, f := range r.Find("card 4111 1111 1111 1111 exp") {
		if f.Kind == KindPhone {
			t.Fatalf("card digits must not be a phone: %+v", f)
		}
	}
	flight := findOne(t, r, "I'm on flight UA 123 tonight", KindFlight)
	if flight.Value != "UA 123" {
		t.Fatalf("unexpected flight %q", flight.Value)
	}
	if got := r.Find("card 4111 1111 1111 1112"); len(got) != 0 {
		t.Fatalf("luhn failure must be dropped: %+v", got)
	}
}

func TestMergePrefersLongerThenKind(t *testing.T) {
	got := Merge([]Finding{
		{Kind: KindURL, Start: 5, End: 16},
		{Kind: KindEmail, Start: 0, End: 16},
		{Kind: KindPhone, Start: 20, End: 30},
		{Kind: KindDate, Start: 20, End: 30},
	})
	if len(got) != 2 || got[0].Kind != KindEmail || got[1].Kind != KindDate {
		t.Fatalf("unexpected merge %+v", got)
	}
}

func TestClusterKeepsSameSpanAlternatives(t *testing.T) {
	got := Cluster([]Finding{
		{Kind: KindPhone, Start: 0, End: 10, Score: 0.8},
		{Kind: KindFlight, Start: 0, End: 10, Score: 0.9},
		{Kind: KindDate, Start: 2, End: 6, Score: 0.9},
	})
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("unexpected clusters %+v", got)
	}
	if got[0][0].Kind != KindFlight || got[0][1].Kind != KindPhone {
		t.Fatalf("cluster must be ordered by score: %+v", got[0])
	}
}
