package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/venuewatch/venuewatch/internal/analysis"
)

// Key identifies a stored event. Keys are derived from the event timestamp and
// sort in timestamp order.
type Key string

// Event is an immutable, validated risk assessment keyed by its arrival instant.
type Event struct {
	Key       Key
	Timestamp time.Time
	Analysis  analysis.Analysis
}

var (
	// ErrNotFound is returned by Get for keys with no stored event.
	ErrNotFound = errors.New("event not found")
)

// DuplicateKeyError is returned when two puts land on the same nanosecond.
// The caller should retry with a freshly sampled timestamp.
type DuplicateKeyError struct {
	Key Key
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate event key %s", e.Key)
}

// keyFormat renders nanosecond precision with an explicit numeric offset.
// For UTC instants this produces "+00:00" rather than "Z".
const keyFormat = "2006-01-02T15:04:05.000000000-07:00"

// FormatKey derives the storage key for an instant. The upstream system always
// emitted keys with both the "+00:00" offset and a trailing "Z"; consumers
// depend on that exact concatenation, so it is preserved here.
func FormatKey(t time.Time) Key {
	return Key("event_" + t.UTC().Format(keyFormat) + "Z")
}

// ParseKey recovers the timestamp encoded in a key. It accepts the literal
// trailing "Z" after the explicit offset, as well as keys without it.
func ParseKey(k Key) (time.Time, error) {
	s, ok := strings.CutPrefix(string(k), "event_")
	if !ok {
		return time.Time{}, fmt.Errorf("parse key %q: missing event_ prefix", k)
	}
	// "event_...+00:00Z" carries both an explicit offset and a trailing Z.
	// Strip the Z only when a numeric offset is already present.
	if strings.HasSuffix(s, "Z") && strings.LastIndexAny(s, "+-") > len("2006-01-02") {
		s = strings.TrimSuffix(s, "Z")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse key %q: %w", k, err)
	}
	return t, nil
}

// Store is an in-memory registry of analyzed events. It is safe for
// concurrent use; callers never coordinate locking themselves.
type Store struct {
	mu     sync.RWMutex
	events map[Key]Event
}

func New() *Store {
	return &Store{events: make(map[Key]Event)}
}

// Put records a validated analysis under a key derived from now. A second put
// within the same nanosecond fails with a DuplicateKeyError rather than
// overwriting: a detected event must never become invisible to later queries.
func (s *Store) Put(a analysis.Analysis, now time.Time) (Key, error) {
	key := FormatKey(now)
	if _, err := ParseKey(key); err != nil {
		// The store generated a key its own parser rejects. That is a
		// programming defect, not bad input.
		panic(fmt.Sprintf("store: generated malformed key %q: %v", key, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[key]; exists {
		return "", &DuplicateKeyError{Key: key}
	}
	s.events[key] = Event{
		Key:       key,
		Timestamp: now.UTC(),
		Analysis:  a,
	}
	return key, nil
}

// Get returns the event stored under key, or ErrNotFound.
func (s *Store) Get(key Key) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[key]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

// ListSince returns all events with timestamp >= t, ascending by timestamp.
// The result is a snapshot: puts that complete after the call are not
// reflected, and returned events are copies.
func (s *Store) ListSince(t time.Time) []Event {
	s.mu.RLock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if !e.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Len reports the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
