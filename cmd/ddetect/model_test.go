package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datadetector/internal/models"
)

func TestHumanBytes(t *testing.T) {
	if got := humanBytes(50 * 1024 * 1024); got != "50 MB" {
		t.Fatalf("unexpected: %s", got)
	}
	if got := humanBytes(0); got != "0 B" {
		t.Fatalf("unexpected: %s", got)
	}
}

func testRegistry() models.Registry {
	return models.Registry{Models: []models.ModelSpec{{
		Name:        "entity_en",
		Language:    "en",
		SizeBytes:   50 * 1024 * 1024,
		EntityTypes: []string{"phone", "email"},
		Description: "desc",
		URL:         "http://example",
		Version:     "1.0.0",
		Checksum:    "sha256:x",
	}}}
}

func installModel(t *testing.T, root string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, "entity_en")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestModelListAndInfo(t *testing.T) {
	reg := testRegistry()
	root := t.TempDir()

	out := capture(t, func(w io.Writer) {
		if err := modelList(w, reg, root); err != nil {
			t.Fatal(err)
		}
	})
	if !strings.Contains(out, "entity_en") || !strings.Contains(out, "not installed") {
		t.Fatalf("unexpected list output: %s", out)
	}

	info := capture(t, func(w io.Writer) {
		if err := modelInfo(w, reg, root, "entity_en"); err != nil {
			t.Fatal(err)
		}
	})
	if !strings.Contains(info, "Entity Model: entity_en") || !strings.Contains(info, "Not installed") {
		t.Fatalf("unexpected info output: %s", info)
	}

	if err := modelInfo(io.Discard, reg, root, "entity_xx"); err == nil {
		t.Fatal("expected unknown model error")
	}
}

func TestModelVerifyRulesOnlyBundle(t *testing.T) {
	root := t.TempDir()
	installModel(t, root, map[string]string{
		"manifest.json": `{"name":"entity_en","version":"1.0.0","language":"en","region":"US"}`,
		".checksum":     "sha256:x",
	})

	var verifyErr error
	out := capture(t, func(w io.Writer) {
		verifyErr = modelVerify(w, testRegistry(), root)
	})
	if verifyErr != nil {
		t.Fatalf("verify: %v\n%s", verifyErr, out)
	}
	if !strings.Contains(out, "Checksum... ✓") || !strings.Contains(out, "Loadable... ✓") {
		t.Fatalf("unexpected verify output: %s", out)
	}
}

func TestModelVerifyDetectsInvalidLabels(t *testing.T) {
	root := t.TempDir()
	installModel(t, root, map[string]string{
		"manifest.json":  `{"name":"entity_en","version":"1.0.0","language":"en","ner":true}`,
		"model.onnx":     "x",
		"labels.json":    "not-json",
		"tokenizer.json": "{}",
	})

	var verifyErr error
	out := capture(t, func(w io.Writer) {
		verifyErr = modelVerify(w, testRegistry(), root)
	})
	if verifyErr == nil {
		t.Fatal("expected verification error")
	}
	if !strings.Contains(out, "Loadable... ✗") || !strings.Contains(out, "labels.json") {
		t.Fatalf("expected invalid loadable message: %s", out)
	}
}

func TestModelVerifyDetectsChecksumMismatch(t *testing.T) {
	root := t.TempDir()
	installModel(t, root, map[string]string{
		"manifest.json": `{"name":"entity_en","version":"1.0.0","language":"en"}`,
		".checksum":     "sha256:other",
	})

	var verifyErr error
	out := capture(t, func(w io.Writer) {
		verifyErr = modelVerify(w, testRegistry(), root)
	})
	if verifyErr == nil || !strings.Contains(out, "registry mismatch") || !strings.Contains(out, "stale, run 'ddetect model download entity_en'") {
		t.Fatalf("err=%v out=%s", verifyErr, out)
	}
}

func TestModelDownloadRulesOnlyEntry(t *testing.T) {
	reg := models.Registry{Models: []models.ModelSpec{{
		Name:        "entity_en",
		Version:     "1.0.0",
		Language:    "en",
		Region:      "US",
		EntityTypes: []string{"phone", "email"},
	}}}
	root := t.TempDir()
	var dlErr error
	out := capture(t, func(w io.Writer) {
		dlErr = modelDownload(w, reg, root, []string{"entity_en"})
	})
	if dlErr != nil {
		t.Fatalf("download: %v\n%s", dlErr, out)
	}
	if !strings.Contains(out, "built in (rules only)") || strings.Contains(out, "Extracting") {
		t.Fatalf("unexpected output: %s", out)
	}
	if !models.IsInstalled(root, reg.Models[0]) {
		t.Fatal("rules-only entry not installed")
	}
}

func TestModelRemoveAsksForConfirmation(t *testing.T) {
	root := t.TempDir()
	installModel(t, root, map[string]string{
		"manifest.json": `{"name":"entity_en","version":"1.0.0","language":"en"}`,
	})
	dir := filepath.Join(root, "entity_en")

	out := capture(t, func(w io.Writer) {
		if err := modelRemove(w, testRegistry(), root, "entity_en", strings.NewReader("n\n")); err != nil {
			t.Fatal(err)
		}
	})
	if !strings.Contains(out, "Cancelled") {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("model removed without confirmation: %v", err)
	}

	capture(t, func(w io.Writer) {
		if err := modelRemove(w, testRegistry(), root, "entity_en", strings.NewReader("yes\n")); err != nil {
			t.Fatal(err)
		}
	})
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected model dir removed, stat err=%v", err)
	}
}

func capture(t *testing.T, fn func(w io.Writer)) string {
	t.Helper()
	var b bytes.Buffer
	fn(&b)
	return b.String()
}
