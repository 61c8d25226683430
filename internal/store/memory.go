package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/microtrade/ledger-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not durable on its own; see BlobStore.
type MemoryStore struct {
	mu     sync.RWMutex
	ledger []model.TradeRecord
	ids    map[string]struct{}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids: make(map[string]struct{}),
	}
}

// NewMemoryStoreFrom creates an in-memory store pre-loaded with records, in order.
func NewMemoryStoreFrom(records []model.TradeRecord) (*MemoryStore, error) {
	s := NewMemoryStore()
	for i := range records {
		if err := s.Append(context.Background(), &records[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) Append(_ context.Context, rec *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[rec.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	s.ids[rec.ID] = struct{}{}
	s.ledger = append(s.ledger, *rec)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Copy so callers never alias the live log.
	out := make([]model.TradeRecord, len(s.ledger))
	copy(out, s.ledger)
	return out, nil
}

func (s *MemoryStore) Replace(_ context.Context, records []model.TradeRecord) error {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := ids[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		ids[r.ID] = struct{}{}
	}
	ledger := make([]model.TradeRecord, len(records))
	copy(ledger, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = ledger
	s.ids = ids
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = nil
	s.ids = make(map[string]struct{})
	return nil
}
