package redact

import (
	"bytes"
	"io"
	"strings"
)

// StreamingRestorer puts originals back into a stream of redacted text. A
// placeholder split across reads is held back until it is complete.
type StreamingRestorer struct {
	src      io.Reader
	replacer *strings.Replacer
	longest  int
	buf      []byte
	pending  []byte
	out      []byte
	done     bool
}

func NewStreamingRestorer(src io.Reader, items []Item) *StreamingRestorer {
	s := &StreamingRestorer{src: src, buf: make([]byte, 4096)}
	pairs := make([]string, 0, len(items)*2)
	for _, item := range items {
		pairs = append(pairs, item.Placeholder, item.Original)
		s.longest = max(s.longest, len(item.Placeholder))
	}
	if len(pairs) > 0 {
		s.replacer = strings.NewReplacer(pairs...)
	}
	return s
}

func (s *StreamingRestorer) Read(p []byte) (int, error) {
	for len(s.out) == 0 && !s.done {
		n, err := s.src.Read(s.buf)
		s.pending = append(s.pending, s.buf[:n]...)
		switch {
		case err == io.EOF:
			s.done = true
			s.emit(len(s.pending))
		case err != nil:
			return 0, err
		default:
			s.emit(s.safeLen())
		}
	}
	if len(s.out) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *StreamingRestorer) Close() error {
	s.pending, s.out = nil, nil
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *StreamingRestorer) emit(n int) {
	head := s.pending[:n]
	if s.replacer == nil {
		s.out = append(s.out, head...)
	} else {
		s.out = append(s.out, s.replacer.Replace(string(head))...)
	}
	s.pending = append(s.pending[:0], s.pending[n:]...)
}

// safeLen is how much of pending cannot be the start of an unfinished
// placeholder. Placeholders never contain '[', so only the last one matters.
func (s *StreamingRestorer) safeLen() int {
	if s.replacer == nil {
		return len(s.pending)
	}
	i := bytes.LastIndexByte(s.pending, '[')
	if i < 0 || bytes.IndexByte(s.pending[i:], ']') >= 0 || len(s.pending)-i >= s.longest {
		return len(s.pending)
	}
	return i
}
