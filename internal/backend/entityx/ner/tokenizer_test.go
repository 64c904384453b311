package ner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTokenizer(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, TokenizerFile)
	raw := `{"model":{"vocab":{"[UNK]":0,"[CLS]":1,"[SEP]":2,"call":3,"555":4,"main":5,"street":6,"str":7,"##eet":8}}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplitWordsOffsets(t *testing.T) {
	out := SplitWords("My name is John Smith.")
	if len(out) != 5 {
		t.Fatalf("expected 5 words, got %d", len(out))
	}
	if out[3].Text != "John" || out[3].Start != 11 || out[3].End != 15 {
		t.Fatalf("unexpected word mapping: %+v", out[3])
	}
}

func TestEncodeMapsPiecesToWords(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t, t.TempDir()), 0)
	if err != nil {
		t.Fatal(err)
	}
	enc := tok.Encode("Call 555, Main Street zzz")
	wantIDs := []int64{1, 3, 4, 5, 6, 0, 2}
	if len(enc.InputIDs) != len(wantIDs) {
		t.Fatalf("ids=%v", enc.InputIDs)
	}
	for i := range wantIDs {
		if enc.InputIDs[i] != wantIDs[i] {
			t.Fatalf("ids=%v want %v", enc.InputIDs, wantIDs)
		}
	}
	if enc.TokenToWordIdx[0] != -1 || enc.TokenToWordIdx[4] != 3 || enc.TokenToWordIdx[6] != -1 {
		t.Fatalf("word index=%v", enc.TokenToWordIdx)
	}
}

func TestEncodeTruncatesAtSequenceLimit(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t, t.TempDir()), 4)
	if err != nil {
		t.Fatal(err)
	}
	enc := tok.Encode("call 555 main street")
	if enc.Len() != 4 {
		t.Fatalf("expected CLS + 2 pieces + SEP, got %v", enc.InputIDs)
	}
}

func TestLoadTokenizerRequiresSpecialTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), TokenizerFile)
	if err := os.WriteFile(path, []byte(`{"model":{"vocab":{"[UNK]":0}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTokenizer(path, 0); err == nil {
		t.Fatal("expected missing [CLS] error")
	}
}
