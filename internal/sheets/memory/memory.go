package memory

import (
	"context"
	"fmt"
	"sync"

	"djassa/internal/core"
	ports "djassa/internal/sheets"
)

// Store keeps exported entries in memory, for development and tests.
type Store struct {
	mu    sync.Mutex
	items []core.LedgerEntry
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the entry and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// ListEntries returns the stored entries dated in year.
func (s *Store) ListEntries(_ context.Context, year int) ([]core.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range s.items {
		if e.Date.Year() == year {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
