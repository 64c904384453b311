package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type record struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"index"`
	Timestamp time.Time `gorm:"index"`
	Source    string
	Backend   string
	Types     string
	Offsets   string
	TextBytes int
	Entities  int
	ByType    string
	LatencyMs float64
	ErrorCode string
}

func (record) TableName() string { return "detections" }

// SQLiteStore keeps entries in a single sqlite table.
type SQLiteStore struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// sqlite allows one writer; serialize in the pool instead of on SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Log(entry Entry) error {
	rec := record{
		RequestID: entry.RequestID,
		Timestamp: time.Now().UTC(),
		Source:    entry.Source,
		Backend:   entry.Backend,
		Types:     strings.Join(entry.Types, ","),
		Offsets:   entry.Offsets,
		TextBytes: entry.TextBytes,
		Entities:  entry.Entities,
		LatencyMs: entry.LatencyMs,
		ErrorCode: entry.ErrorCode,
	}
	if entry.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("audit timestamp: %w", err)
		}
		rec.Timestamp = ts.UTC()
	}
	if len(entry.ByType) > 0 {
		raw, err := json.Marshal(entry.ByType)
		if err != nil {
			return err
		}
		rec.ByType = string(raw)
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Entries() ([]Entry, error) {
	var recs []record
	if err := s.db.Order("id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("read audit records: %w", err)
	}
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		e := Entry{
			RequestID: r.RequestID,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Source:    r.Source,
			Backend:   r.Backend,
			Offsets:   r.Offsets,
			TextBytes: r.TextBytes,
			Entities:  r.Entities,
			LatencyMs: r.LatencyMs,
			ErrorCode: r.ErrorCode,
		}
		if r.Types != "" {
			e.Types = strings.Split(r.Types, ",")
		}
		if r.ByType != "" {
			if err := json.Unmarshal([]byte(r.ByType), &e.ByType); err != nil {
				return nil, fmt.Errorf("decode audit record %d: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
