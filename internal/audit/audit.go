// Package audit records one entry per detection request. Entries carry
// counts and timings only, never the scanned text.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"datadetector/internal/detect"
)

const (
	SourceHTTP   = "http"
	SourceBatch  = "batch"
	SourceRedact = "redact"
	SourceCLI    = "cli"
)

type Entry struct {
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Backend   string         `json:"backend"`
	Types     []string       `json:"types,omitempty"`
	Offsets   string         `json:"offsets,omitempty"`
	TextBytes int            `json:"text_bytes"`
	Entities  int            `json:"entities"`
	ByType    map[string]int `json:"by_type,omitempty"`
	LatencyMs float64        `json:"latency_ms"`
	ErrorCode string         `json:"error_code,omitempty"`
}

// NewEntry starts an entry with a fresh request id.
func NewEntry(source, backend string) Entry {
	return Entry{RequestID: uuid.NewString(), Source: source, Backend: backend}
}

// Describe fills in the request side of the entry.
func (e *Entry) Describe(text string, opts *detect.Options) {
	e.TextBytes = len(text)
	if opts == nil {
		return
	}
	e.Offsets = string(opts.Offsets)
	if opts.Types != nil {
		e.Types = make([]string, 0, len(opts.Types))
		for _, t := range opts.Types {
			e.Types = append(e.Types, t.String())
		}
	}
}

// Record fills in the outcome of a Detect call.
func (e *Entry) Record(entities []detect.Entity, err error, elapsed time.Duration) {
	e.LatencyMs = float64(elapsed.Microseconds()) / 1000
	if err != nil {
		e.ErrorCode = detect.ErrorCode(err)
		if e.ErrorCode == "" {
			e.ErrorCode = "INTERNAL_ERROR"
		}
		return
	}
	e.Entities = len(entities)
	if len(entities) == 0 {
		return
	}
	e.ByType = map[string]int{}
	for _, ent := range entities {
		e.ByType[ent.Type.String()]++
	}
}

type Logger interface {
	Log(entry Entry) error
}

// Store is a Logger that can read its entries back, oldest first.
type Store interface {
	Logger
	Entries() ([]Entry, error)
	Close() error
}

const (
	DriverJSONL  = "jsonl"
	DriverSQLite = "sqlite"
	DriverOff    = "off"
)

// Open returns the store for driver, writing to path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverJSONL:
		return NewJSONLLogger(path)
	case DriverSQLite:
		return OpenSQLite(path)
	case "", DriverOff:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Log(Entry) error           { return nil }
func (Discard) Entries() ([]Entry, error) { return nil, nil }
func (Discard) Close() error              { return nil }

var ErrNoPath = errors.New("audit: path is required")

type JSONLLogger struct {
	path string
	mu   sync.Mutex
}

func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create audit log: %w", err)
	}
	_ = f.Close()
	return &JSONLLogger{path: path}, nil
}

func (l *JSONLLogger) Path() string { return l.path }

func (l *JSONLLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func (l *JSONLLogger) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ParseFile(l.path)
}

func (l *JSONLLogger) Close() error { return nil }
