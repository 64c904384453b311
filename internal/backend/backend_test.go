package backend

import (
	"testing"

	"datadetector/internal/backend/entityx"
	"datadetector/internal/backend/textcheck"
	"datadetector/internal/config"
)

func TestNewByName(t *testing.T) {
	cfg := config.Default()
	b, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != textcheck.Name {
		t.Fatalf("default backend=%s", b.Name())
	}
	b, err = NewNamed(config.BackendEntityx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != entityx.Name {
		t.Fatalf("backend=%s", b.Name())
	}
	if _, err := NewNamed("vision", cfg, nil); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
