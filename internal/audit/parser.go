package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ParseFile reads a JSONL audit log. A missing file is empty and lines that
// do not decode are skipped.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for s.Scan() {
		if len(s.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(s.Bytes(), &entry); err != nil || entry.RequestID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return entries, nil
}
