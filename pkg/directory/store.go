// Package directory holds the shared name to location map served by the
// location adapters.
package directory

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when a name has no entry.
	ErrNotFound = errors.New("directory: no entry found")

	// ErrDuplicate is returned when adding a name that already exists.
	ErrDuplicate = errors.New("directory: entry already exists")
)

// Entry is one name/location pair. Names are case-sensitive and non-empty;
// locations may be empty.
type Entry struct {
	Name     string
	Location string
}

// Store is a name to location map guarded by a single mutex.
//
// Every read and write takes the same lock, so readers and writers are
// mutually exclusive. Operations are map accesses and never block on I/O
// while holding the lock.
//
// Thread safety:
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]string)}
}

// Add inserts name with location. It returns false and leaves the store
// untouched when name already exists or is empty.
func (s *Store) Add(name, location string) bool {
	if name == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return false
	}
	s.entries[name] = location
	return true
}

// Get returns the location stored for name, or ErrNotFound.
func (s *Store) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	location, ok := s.entries[name]
	if !ok {
		return "", ErrNotFound
	}
	return location, nil
}

// Contains reports whether name has an entry.
func (s *Store) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[name]
	return ok
}

// Set overwrites the location of an existing name. It returns ErrNotFound
// when name has no entry; callers check Contains or fall back to Add.
func (s *Store) Set(name, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return ErrNotFound
	}
	s.entries[name] = location
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of every entry sorted by name. The copy is taken
// under the lock, so it is a consistent view of one instant.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for name, location := range s.entries {
		out = append(out, Entry{Name: name, Location: location})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore adds every entry with Add semantics, silently skipping duplicates
// and empty names. It returns how many entries were added.
func (s *Store) Restore(entries []Entry) int {
	added := 0
	for _, e := range entries {
		if s.Add(e.Name, e.Location) {
			added++
		}
	}
	return added
}
