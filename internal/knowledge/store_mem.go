package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrEntryNotFound indicates the requested entry does not exist.
var ErrEntryNotFound = errors.New("knowledge: entry not found")

// MemoryStore is a thread-safe, in-memory Source. Search uses simple
// word matching against the entry content; deployments wanting semantic
// retrieval plug in an external source instead.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int // id → index in entries slice
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[string]int),
	}
}

// Compile-time interface check.
var _ Source = (*MemoryStore)(nil)

// Add stores an entry, assigning an ID when absent. Existing IDs are
// updated in place.
func (s *MemoryStore) Add(entry Entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if idx, exists := s.index[entry.ID]; exists {
		s.entries[idx] = entry
		return entry.ID
	}

	s.index[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return entry.ID
}

// Search returns up to limit snippet texts from the category whose
// content shares a word with the query. An empty category matches all.
func (s *MemoryStore) Search(_ context.Context, category, query string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}

	words := strings.Fields(strings.ToLower(query))
	var results []string

	for i := range s.entries {
		if category != "" && s.entries[i].Category != category {
			continue
		}
		if !matchesAny(strings.ToLower(s.entries[i].Content), words) {
			continue
		}
		results = append(results, s.entries[i].Content)
		if len(results) >= limit {
			break
		}
	}

	return results, nil
}

// matchesAny reports whether content contains any of the query words. An
// empty word list matches everything, so a blank query browses the
// category.
func matchesAny(content string, words []string) bool {
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if strings.Contains(content, w) {
			return true
		}
	}
	return false
}

// Delete removes an entry by ID.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return ErrEntryNotFound
	}

	// Swap-delete: replace with the last element and shrink.
	last := len(s.entries) - 1
	if idx != last {
		s.entries[idx] = s.entries[last]
		s.index[s.entries[idx].ID] = idx
	}
	s.entries = s.entries[:last]
	delete(s.index, id)

	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
