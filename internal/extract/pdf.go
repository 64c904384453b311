package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF yields one segment per page with text. Pages that fail to decode are
// skipped.
type PDF struct{}

func (PDF) Extract(r io.Reader) ([]Segment, error) {
	var readerAt io.ReaderAt
	var size int64
	switch v := r.(type) {
	case *os.File:
		st, err := v.Stat()
		if err != nil {
			return nil, err
		}
		readerAt, size = v, st.Size()
	case *bytes.Reader:
		readerAt, size = v, v.Size()
	default:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		readerAt, size = bytes.NewReader(data), int64(len(data))
	}

	doc, err := pdf.NewReader(readerAt, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	segs := make([]Segment, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		segs = append(segs, Segment{Location: fmt.Sprintf("page %d", i), Text: content})
	}
	return segs, nil
}
