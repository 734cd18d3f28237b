// Package verdict holds the per-file analysis verdicts shared between the
// load and transform hooks.
package verdict

import (
	"maps"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Entry is the verdict recorded for one file.
type Entry struct {
	// Verdict reports whether the marker is present, directly or through an
	// imported wrapper.
	Verdict bool `json:"verdict"`
	// Digest is the xxhash of the source the verdict was computed from.
	Digest uint64 `json:"digest"`
}

// Store maps canonical absolute file paths to verdicts. Writes replace the
// whole entry. An absent entry means "not analysed yet", never false.
type Store interface {
	Get(path string) (Entry, bool)
	Put(path string, entry Entry)
	Delete(path string)
	Len() int
}

// Digest hashes source text for Entry.Digest.
func Digest(src []byte) uint64 {
	return xxhash.Sum64(src)
}

// MemoryStore is a process-local Store. It is safe for concurrent use:
// hosts such as esbuild run load callbacks for different files in parallel.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns the entry for path.
func (s *MemoryStore) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[path]

	return entry, ok
}

// Put records entry for path, replacing any previous one.
func (s *MemoryStore) Put(path string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[path] = entry
}

// Delete forgets path.
func (s *MemoryStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, path)
}

// Len returns the number of recorded files.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Paths returns the recorded paths in sorted order.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.entries))
}

// Snapshot returns a copy of all entries.
func (s *MemoryStore) Snapshot() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.entries)
}
