package datadetector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDetectDefault(t *testing.T) {
	got, err := Detect(context.Background(), "Call me at 555-123-4567", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != PhoneNumber || got[0].Start != 11 || got[0].End != 23 {
		t.Fatalf("got %+v", got)
	}
}

func TestDetectFilters(t *testing.T) {
	d, err := New(WithBackend("textcheck"), WithTimezone("UTC"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Backend() != "textcheck" {
		t.Fatalf("backend %q", d.Backend())
	}
	got, err := d.Detect(context.Background(), "Visit https://example.com", &DetectOptions{Types: []Type{Email}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
	got, err = d.Detect(context.Background(), "Email a@b.com", &DetectOptions{Types: []Type{Email}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Data["email"] != "a@b.com" {
		t.Fatalf("got %+v", got)
	}
}

func TestDetectAsync(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatal(err)
	}
	f := d.DetectAsync(context.Background(), "Visit https://example.com", &DetectOptions{Offsets: OffsetUTF16})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := f.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != Link || got[0].Data["url"] != "https://example.com" {
		t.Fatalf("got %+v", got)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(WithBackend("nope")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := New(WithTimezone("Mars/Olympus")); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestWithConfigFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte("backend: textcheck\nlanguage: de-DE\ntimezone: Europe/Berlin\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := New(WithConfigFile(p))
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Detect(context.Background(), "Termin 2026-10-20T09:00:00Z", &DetectOptions{Types: []Type{Date}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Data["date"] != "2026-10-20T11:00:00+02:00" {
		t.Fatalf("got %+v", got)
	}

	if _, err := New(WithConfigFile(filepath.Join(t.TempDir(), "bad.yaml"))); err != nil {
		t.Fatalf("missing file should use defaults: %v", err)
	}
}

func TestEntityxUnavailableModel(t *testing.T) {
	// an unreachable registry URL makes setup fail before any annotation
	reg := filepath.Join(t.TempDir(), "registry.json")
	data := `{"models":[{"name":"entity_en","version":"1","language":"en","url":"http://127.0.0.1:1/m.tar.gz","checksum":"sha256:00"}]}`
	if err := os.WriteFile(reg, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "backend: entityx\nentityx:\n  registry: " + reg + "\n  models_root: " + filepath.Join(t.TempDir(), "models") + "\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := New(WithConfigFile(cfgPath))
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Detect(context.Background(), "Call 555-123-4567", nil)
	if got != nil {
		t.Fatalf("partial result %+v", got)
	}
	if !errors.Is(err, ErrModelUnavailable) || ErrorCode(err) != CodeModelDownload {
		t.Fatalf("err=%v code=%q", err, ErrorCode(err))
	}
}
