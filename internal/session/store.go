// Package session keeps redaction mappings on the server so a client can
// send redacted text out and restore the reply later by session id.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"datadetector/internal/redact"
)

const DefaultTTL = 15 * time.Minute

type Session struct {
	ID        string
	Items     []redact.Item
	ExpiresAt time.Time
}

type Store struct {
	sync.Map
	ttl time.Duration
	now func() time.Time
}

// NewStore keeps sessions for ttl after their last write; DefaultTTL when
// ttl is not positive.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{ttl: ttl, now: time.Now}
}

// Put stores a copy of items under a fresh id and drops expired sessions.
func (s *Store) Put(items []redact.Item) string {
	id := uuid.NewString()
	s.Set(id, items)
	return id
}

func (s *Store) Set(id string, items []redact.Item) {
	if s == nil || id == "" {
		return
	}
	now := s.now()
	s.Sweep(now)
	copied := make([]redact.Item, len(items))
	copy(copied, items)
	s.Store(id, Session{ID: id, Items: copied, ExpiresAt: now.Add(s.ttl)})
}

func (s *Store) Get(id string) (Session, bool) {
	if s == nil || id == "" {
		return Session{}, false
	}
	v, ok := s.Load(id)
	if !ok {
		return Session{}, false
	}
	sess, ok := v.(Session)
	if !ok || !s.now().Before(sess.ExpiresAt) {
		s.Map.Delete(id)
		return Session{}, false
	}
	return sess, true
}

func (s *Store) Delete(id string) {
	if s == nil || id == "" {
		return
	}
	s.Map.Delete(id)
}

// Sweep removes every session expired at now.
func (s *Store) Sweep(now time.Time) {
	s.Range(func(k, v any) bool {
		if sess, ok := v.(Session); !ok || !now.Before(sess.ExpiresAt) {
			s.Map.Delete(k)
		}
		return true
	})
}

// Len counts live and not yet swept sessions.
func (s *Store) Len() int {
	n := 0
	s.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
