// Package store defines the persistence interface for the trade log.
// Implementations include in-memory (default and tests), a memory log mirrored
// to a durable JSON blob, SQLite, and PostgreSQL.
//
// Every backend is append-only: there is no way to edit or remove a single
// record. Clear empties the whole log.
package store

import (
	"context"
	"errors"

	"github.com/microtrade/ledger-engine/internal/model"
)

// ErrDuplicateID is returned when a record id is already present in the log.
var ErrDuplicateID = errors.New("store: duplicate trade id")

// Store is the persistence interface for trade records.
type Store interface {
	// Append adds a record at the end of the log.
	Append(ctx context.Context, rec *model.TradeRecord) error

	// List returns every record in insertion order.
	List(ctx context.Context) ([]model.TradeRecord, error)

	// Clear empties the log. Irreversible.
	Clear(ctx context.Context) error

	// Replace swaps the whole log for records in one step. On error the
	// previous log is left in place.
	Replace(ctx context.Context, records []model.TradeRecord) error
}
