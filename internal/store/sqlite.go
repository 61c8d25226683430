package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/microtrade/ledger-engine/internal/model"
)

// SQLiteSchema creates the trade log table. Decimals and timestamps are kept
// as TEXT so they round-trip exactly.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS trade_records (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        TEXT NOT NULL,
	execution_price TEXT NOT NULL,
	fee             TEXT NOT NULL,
	order_kind      TEXT NOT NULL,
	filled_at       TEXT NOT NULL,
	status          TEXT NOT NULL
);
`

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path with WAL enabled and
// a single connection, so appends are serialized at the driver too.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) Append(ctx context.Context, r *model.TradeRecord) error {
	return insertSQLite(ctx, s.db, r)
}

func insertSQLite(ctx context.Context, db sqlExecer, r *model.TradeRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO trade_records
		(id, symbol, side, quantity, execution_price, fee, order_kind, filled_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Symbol, string(r.Side),
		r.Quantity.String(), r.ExecutionPrice.String(), r.Fee.String(),
		string(r.OrderKind), r.FilledAt.UTC().Format(time.RFC3339Nano), string(r.Status),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, execution_price, fee, order_kind, filled_at, status
		FROM trade_records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.TradeRecord
	for rows.Next() {
		var (
			r                  model.TradeRecord
			side, kind, status string
			qtyS, priceS, feeS string
			filledAt           string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &side,
			&qtyS, &priceS, &feeS,
			&kind, &filledAt, &status); err != nil {
			return nil, err
		}
		if err := setAmounts(&r, qtyS, priceS, feeS); err != nil {
			return nil, err
		}
		if r.FilledAt, err = time.Parse(time.RFC3339Nano, filledAt); err != nil {
			return nil, fmt.Errorf("trade %s filled_at: %w", r.ID, err)
		}
		r.Side = model.Side(side)
		r.OrderKind = model.OrderKind(kind)
		r.Status = model.Status(status)

		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trade_records`)
	return err
}

// Replace rewrites the table inside one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, records []model.TradeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_records`); err != nil {
		return err
	}
	for i := range records {
		if err := insertSQLite(ctx, tx, &records[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
