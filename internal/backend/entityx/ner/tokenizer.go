package ner

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Word is a maximal run of letters or digits with its byte span.
type Word struct {
	Text       string
	Start, End int
}

// Encoding is a model input plus the word each position came from (-1 for
// the [CLS]/[SEP] markers).
type Encoding struct {
	InputIDs       []int64
	AttentionMask  []int64
	TokenTypeIDs   []int64
	TokenToWordIdx []int
	Words          []Word
}

func (e *Encoding) Len() int { return len(e.InputIDs) }

type Tokenizer struct {
	vocab      map[string]int
	unkID      int
	clsID      int
	sepID      int
	maxWordLen int
	maxSeqLen  int
	lowercase  bool
}

type tokenizerFile struct {
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
	Normalizer struct {
		Lowercase *bool `json:"lowercase"`
	} `json:"normalizer"`
}

// LoadTokenizer reads a HuggingFace tokenizer.json with a WordPiece vocab.
func LoadTokenizer(path string, maxSeqLen int) (*Tokenizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg tokenizerFile
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	vocab := cfg.Model.Vocab
	if len(vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json model.vocab is empty")
	}
	ids := make(map[string]int, 3)
	for _, special := range []string{"[UNK]", "[CLS]", "[SEP]"} {
		id, ok := vocab[special]
		if !ok {
			return nil, fmt.Errorf("tokenizer vocab is missing %s", special)
		}
		ids[special] = id
	}
	lowercase := true
	if cfg.Normalizer.Lowercase != nil {
		lowercase = *cfg.Normalizer.Lowercase
	}
	if maxSeqLen <= 2 {
		maxSeqLen = 256
	}
	return &Tokenizer{
		vocab:      vocab,
		unkID:      ids["[UNK]"],
		clsID:      ids["[CLS]"],
		sepID:      ids["[SEP]"],
		maxWordLen: 100,
		maxSeqLen:  maxSeqLen,
		lowercase:  lowercase,
	}, nil
}

func (t *Tokenizer) MaxSeqLen() int { return t.maxSeqLen }

// Encode splits text into words and words into word pieces. Words past the
// sequence limit are left out of the encoding.
func (t *Tokenizer) Encode(text string) *Encoding {
	words := SplitWords(text)
	out := &Encoding{
		InputIDs:       []int64{int64(t.clsID)},
		AttentionMask:  []int64{1},
		TokenTypeIDs:   []int64{0},
		TokenToWordIdx: []int{-1},
		Words:          words,
	}
	for wi, word := range words {
		pieces := t.pieces(word.Text)
		if len(out.InputIDs)+len(pieces) > t.maxSeqLen-1 {
			break
		}
		for _, id := range pieces {
			out.InputIDs = append(out.InputIDs, int64(id))
			out.AttentionMask = append(out.AttentionMask, 1)
			out.TokenTypeIDs = append(out.TokenTypeIDs, 0)
			out.TokenToWordIdx = append(out.TokenToWordIdx, wi)
		}
	}
	out.InputIDs = append(out.InputIDs, int64(t.sepID))
	out.AttentionMask = append(out.AttentionMask, 1)
	out.TokenTypeIDs = append(out.TokenTypeIDs, 0)
	out.TokenToWordIdx = append(out.TokenToWordIdx, -1)
	return out
}

func (t *Tokenizer) pieces(word string) []int {
	if t.lowercase {
		word = strings.ToLower(word)
	}
	runes := []rune(word)
	if len(runes) == 0 || len(runes) > t.maxWordLen {
		return []int{t.unkID}
	}
	if id, ok := t.vocab[word]; ok {
		return []int{id}
	}
	ids := make([]int, 0, 4)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found == -1 {
			return []int{t.unkID}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// SplitWords returns letter/digit runs with byte offsets.
func SplitWords(text string) []Word {
	words := make([]Word, 0)
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, Word{Text: text[start:i], Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, Word{Text: text[start:], Start: start, End: len(text)})
	}
	return words
}
