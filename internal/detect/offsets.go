package detect

import (
	"fmt"
	"unicode/utf8"
)

// OffsetUnit selects how Entity.Start and Entity.End count into the input.
type OffsetUnit string

const (
	// OffsetBytes is the Go-native unit: text[Start:End] == Entity.Text.
	OffsetBytes OffsetUnit = "bytes"
	// OffsetRunes counts Unicode code points.
	OffsetRunes OffsetUnit = "runes"
	// OffsetUTF16 counts UTF-16 code units, the index space of JavaScript strings.
	OffsetUTF16 OffsetUnit = "utf16"
)

func ParseOffsetUnit(s string) (OffsetUnit, error) {
	switch OffsetUnit(s) {
	case "", OffsetBytes:
		return OffsetBytes, nil
	case OffsetRunes, OffsetUTF16:
		return OffsetUnit(s), nil
	default:
		return "", fmt.Errorf("unknown offset unit %q", s)
	}
}

func (u *OffsetUnit) UnmarshalText(data []byte) error {
	parsed, err := ParseOffsetUnit(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// offsetMapper converts byte offsets that fall on rune boundaries.
type offsetMapper struct {
	unit  OffsetUnit
	index []int
}

func newOffsetMapper(text string, unit OffsetUnit) *offsetMapper {
	m := &offsetMapper{unit: unit}
	if unit == OffsetBytes || unit == "" {
		return m
	}
	m.index = make([]int, len(text)+1)
	pos := 0
	for i, r := range text {
		m.index[i] = pos
		if unit == OffsetUTF16 && r >= 0x10000 {
			pos += 2
		} else {
			pos++
		}
	}
	m.index[len(text)] = pos
	return m
}

func (m *offsetMapper) convert(byteOffset int) int {
	if m.index == nil {
		return byteOffset
	}
	return m.index[byteOffset]
}

// validSpan reports whether [start,end) lies in text on rune boundaries.
func validSpan(text string, start, end int) bool {
	if start < 0 || end < start || end > len(text) {
		return false
	}
	if start < len(text) && !utf8.RuneStart(text[start]) {
		return false
	}
	if end < len(text) && !utf8.RuneStart(text[end]) {
		return false
	}
	return true
}
