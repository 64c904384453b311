package detect

import (
	"encoding/json"
	"testing"
)

func TestParseTypes(t *testing.T) {
	got, err := ParseTypes("phoneNumber, link,email")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != PhoneNumber || got[2] != Email {
		t.Fatalf("unexpected types %v", got)
	}
	if _, err := ParseTypes("phoneNumber,iban"); err == nil {
		t.Fatal("expected iban to be rejected")
	}
}

func TestTypeSet(t *testing.T) {
	s := NewTypeSet(Email, Date, Type(42))
	if !s.Has(Email) || !s.Has(Date) || s.Has(Link) {
		t.Fatalf("unexpected set %v", s)
	}
	if s.String() != "{email,date}" {
		t.Fatalf("String()=%s", s)
	}
	if len(AllTypeSet().Types()) != 5 {
		t.Fatal("expected five types")
	}
}

func TestOptionsJSONKeepsEmptyTypes(t *testing.T) {
	var withNone Options
	if err := json.Unmarshal([]byte(`{"types":[]}`), &withNone); err != nil {
		t.Fatal(err)
	}
	if withNone.Types == nil || !withNone.TypeSet().Empty() {
		t.Fatalf("explicit empty list must stay empty: %#v", withNone)
	}

	var omitted Options
	if err := json.Unmarshal([]byte(`{"offsets":"utf16"}`), &omitted); err != nil {
		t.Fatal(err)
	}
	if omitted.Types != nil || omitted.TypeSet() != AllTypeSet() || omitted.Offsets != OffsetUTF16 {
		t.Fatalf("omitted types must mean all: %#v", omitted)
	}

	var bad Options
	if err := json.Unmarshal([]byte(`{"types":["fax"]}`), &bad); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestEntityJSONShape(t *testing.T) {
	raw, err := json.Marshal(Entity{Type: Link, Text: "https://x.io", Start: 0, End: 12, Data: map[string]string{"url": "https://x.io"}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"link","text":"https://x.io","start":0,"end":12,"data":{"url":"https://x.io"}}`
	if string(raw) != want {
		t.Fatalf("got %s", raw)
	}
}
