package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/persist"
)

// BlobStore keeps the log in memory and mirrors the whole log to a durable
// blob after every mutation. A failed write rolls the in-memory change back,
// so memory and blob never diverge. Readers never see a change whose write
// has not finished.
type BlobStore struct {
	mu   sync.RWMutex
	mem  *MemoryStore
	blob persist.Blob
}

// OpenBlobStore restores the log from blob. Corrupt contents start empty.
func OpenBlobStore(ctx context.Context, blob persist.Blob) (*BlobStore, error) {
	records, err := persist.Load(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("load trade log: %w", err)
	}
	mem, err := NewMemoryStoreFrom(records)
	if err != nil {
		return nil, err
	}
	return &BlobStore{mem: mem, blob: blob}, nil
}

func (s *BlobStore) Append(ctx context.Context, rec *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, _ := s.mem.List(ctx)
	if err := s.mem.Append(ctx, rec); err != nil {
		return err
	}
	return s.commit(ctx, before)
}

func (s *BlobStore) Replace(ctx context.Context, records []model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, _ := s.mem.List(ctx)
	if err := s.mem.Replace(ctx, records); err != nil {
		return err
	}
	return s.commit(ctx, before)
}

func (s *BlobStore) List(ctx context.Context) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.List(ctx)
}

func (s *BlobStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blob.Delete(ctx); err != nil {
		return fmt.Errorf("delete trade log: %w", err)
	}
	return s.mem.Clear(ctx)
}

// commit writes the current log to the blob, rolling memory back to before
// when the write fails. Callers hold s.mu.
func (s *BlobStore) commit(ctx context.Context, before []model.TradeRecord) error {
	after, _ := s.mem.List(ctx)
	if err := persist.Save(ctx, s.blob, after); err != nil {
		// before came out of mem, so its ids are unique.
		_ = s.mem.Replace(ctx, before)
		return fmt.Errorf("persist trade log: %w", err)
	}
	return nil
}
