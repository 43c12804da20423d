// Package history keeps an in-memory log of everything the reader has
// announced, so a user can ask what was just said without re-scanning.
package history

import (
	"strings"
	"sync"
	"time"
)

// Entry is one spoken announcement.
type Entry struct {
	Timestamp time.Time
	Text      string
}

// Store implements bounded in-memory announcement storage.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

// NewStore creates a store keeping at most maxEntries announcements.
func NewStore(maxEntries int) *Store {
	return &Store{
		entries: make([]Entry, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// Record stores a spoken announcement. Satisfies the scanner's Recorder.
func (s *Store) Record(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{Timestamp: time.Now(), Text: text})
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Recent returns the announcements from the last N seconds, oldest
// first, joined for readback.
func (s *Store) Recent(seconds int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-time.Duration(seconds) * time.Second)
	var parts []string
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			parts = append(parts, e.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Last returns the most recent announcement, or "" when empty.
func (s *Store) Last() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return ""
	}
	return s.entries[len(s.entries)-1].Text
}

// Entries returns a copy of all stored announcements.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Entry, len(s.entries))
	copy(result, s.entries)
	return result
}
