package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ddetect.log")
	logger, err := New(Options{File: path, JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("detect finished", "entities", 3)
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestNopIsSilent(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Error("y", "k", "v")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
