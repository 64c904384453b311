// Package extract pulls plain text out of files handed to the CLI: text
// files as-is, PDF pages and spreadsheet cells one segment each.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrBinary      = errors.New("file is not UTF-8 text")
)

// Segment is a piece of text with a human readable location such as
// "page 2" or "Sheet1!B3". Plain text files yield one segment with an empty
// location.
type Segment struct {
	Location string `json:"location,omitempty"`
	Text     string `json:"text"`
}

type Extractor interface {
	Extract(r io.Reader) ([]Segment, error)
}

// ForFile picks the extractor by extension. Media, archives and executables
// are rejected; unknown extensions are treated as text.
func ForFile(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return PDF{}, nil
	case ".xlsx", ".xlsm":
		return XLSX{}, nil
	case ".exe", ".dll", ".so", ".dylib", ".bin",
		".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".webp",
		".mp3", ".mp4", ".wav", ".avi", ".mov", ".mkv",
		".zip", ".tar", ".gz", ".rar", ".7z", ".iso", ".onnx":
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	default:
		return Text{}, nil
	}
}

// File extracts every segment of the file at path; "-" reads stdin as text.
func File(path string) ([]Segment, error) {
	if path == "-" {
		return Text{}.Extract(os.Stdin)
	}
	ex, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	segs, err := ex.Extract(f)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return segs, nil
}

// Text reads the whole input as one segment.
type Text struct {
	// MaxBytes caps the input; 0 means 16 MiB.
	MaxBytes int64
}

func (t Text) Extract(r io.Reader) ([]Segment, error) {
	limit := t.MaxBytes
	if limit <= 0 {
		limit = 16 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	if !utf8.Valid(data) {
		return nil, ErrBinary
	}
	return []Segment{{Text: string(data)}}, nil
}
