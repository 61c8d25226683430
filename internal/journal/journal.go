// Package journal is the trade record store: the append-only, ordered log of
// executed trades that is the engine's single source of truth.
package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/microtrade/ledger-engine/internal/id"
	"github.com/microtrade/ledger-engine/internal/instrument"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/store"
)

// ErrInvalidRecord is returned by Append for malformed input. The log is left
// unchanged.
var ErrInvalidRecord = errors.New("journal: invalid record")

// Journal wraps a Store with id assignment and input checks. Business rules
// (holdings, prices) live in package order, not here.
type Journal struct {
	store store.Store
	newID id.Generator
	now   func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator overrides the default uuid generator.
func WithIDGenerator(gen id.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithClock overrides time.Now, used for records without FilledAt.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// New creates a Journal over st.
func New(st store.Store, opts ...Option) *Journal {
	j := &Journal{
		store: st,
		newID: id.UUID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append validates in, assigns an id and stores the resulting immutable record.
func (j *Journal) Append(ctx context.Context, in model.TradeInput) (model.TradeRecord, error) {
	rec, err := j.normalize(in)
	if err != nil {
		return model.TradeRecord{}, err
	}
	rec.ID = j.newID()
	if err := j.store.Append(ctx, &rec); err != nil {
		return model.TradeRecord{}, fmt.Errorf("append trade: %w", err)
	}
	return rec, nil
}

// normalize checks in and returns the record it describes, without an id.
func (j *Journal) normalize(in model.TradeInput) (model.TradeRecord, error) {
	symbol, err := instrument.Normalize(in.Symbol)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if !in.Side.Valid() {
		return model.TradeRecord{}, fmt.Errorf("%w: side %q", ErrInvalidRecord, in.Side)
	}
	if !in.Quantity.IsPositive() {
		return model.TradeRecord{}, fmt.Errorf("%w: quantity must be > 0, got %s", ErrInvalidRecord, in.Quantity)
	}
	if !in.ExecutionPrice.IsPositive() {
		return model.TradeRecord{}, fmt.Errorf("%w: price must be > 0, got %s", ErrInvalidRecord, in.ExecutionPrice)
	}
	if in.Fee.IsNegative() {
		return model.TradeRecord{}, fmt.Errorf("%w: fee must be >= 0, got %s", ErrInvalidRecord, in.Fee)
	}
	kind, err := model.ParseOrderKind(string(in.OrderKind))
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	filledAt := in.FilledAt
	if filledAt.IsZero() {
		filledAt = j.now()
	}

	return model.TradeRecord{
		Symbol:         symbol,
		Side:           in.Side,
		Quantity:       in.Quantity,
		ExecutionPrice: in.ExecutionPrice,
		Fee:            in.Fee,
		OrderKind:      kind,
		FilledAt:       filledAt.UTC(),
		Status:         model.Filled,
	}, nil
}

// Restore replaces the whole log with already-identified records (an
// import), keeping their ids. Every record is checked before anything is
// written, and the swap is a single store write: on error the previous log
// is still in place.
func (j *Journal) Restore(ctx context.Context, records []model.TradeRecord) error {
	checked := make([]model.TradeRecord, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidRecord)
		}
		norm, err := j.normalize(model.TradeInput{
			Symbol:         r.Symbol,
			Side:           r.Side,
			Quantity:       r.Quantity,
			ExecutionPrice: r.ExecutionPrice,
			Fee:            r.Fee,
			OrderKind:      r.OrderKind,
			FilledAt:       r.FilledAt,
		})
		if err != nil {
			return fmt.Errorf("trade %s: %w", r.ID, err)
		}
		norm.ID = r.ID
		checked = append(checked, norm)
	}
	if err := j.store.Replace(ctx, checked); err != nil {
		return fmt.Errorf("restore trades: %w", err)
	}
	return nil
}

// All returns the log as a lazy, restartable sequence in insertion order.
// The sequence iterates over a snapshot taken at call time.
func (j *Journal) All(ctx context.Context) (iter.Seq[model.TradeRecord], error) {
	records, err := j.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return slices.Values(records), nil
}

// Records returns the log as a slice in insertion order.
func (j *Journal) Records(ctx context.Context) ([]model.TradeRecord, error) {
	records, err := j.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return records, nil
}

// Clear empties the log. Irreversible.
func (j *Journal) Clear(ctx context.Context) error {
	if err := j.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear trades: %w", err)
	}
	return nil
}
