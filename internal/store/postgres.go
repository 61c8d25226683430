package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
)

// PostgresSchema creates the trade log table. seq preserves insertion order
// independently of filled_at, which may be non-monotonic.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS trade_records (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT        NOT NULL UNIQUE,
	symbol          TEXT        NOT NULL,
	side            TEXT        NOT NULL,
	quantity        NUMERIC     NOT NULL CHECK (quantity > 0),
	execution_price NUMERIC     NOT NULL CHECK (execution_price > 0),
	fee             NUMERIC     NOT NULL CHECK (fee >= 0),
	order_kind      TEXT        NOT NULL,
	filled_at       TIMESTAMPTZ NOT NULL,
	status          TEXT        NOT NULL
);
`

// PostgresStore implements Store using PostgreSQL.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchema)
	return err
}

// pgExecer is satisfied by *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) Append(ctx context.Context, r *model.TradeRecord) error {
	return insertPostgres(ctx, s.pool, r)
}

func insertPostgres(ctx context.Context, db pgExecer, r *model.TradeRecord) error {
	_, err := db.Exec(ctx,
		`INSERT INTO trade_records (id, symbol, side, quantity, execution_price, fee, order_kind, filled_at, status)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
		r.ID, r.Symbol, string(r.Side),
		r.Quantity.String(), r.ExecutionPrice.String(), r.Fee.String(),
		string(r.OrderKind), r.FilledAt, string(r.Status),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, side,
		        quantity::TEXT, execution_price::TEXT, fee::TEXT,
		        order_kind, filled_at, status
		 FROM trade_records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE trade_records RESTART IDENTITY`)
	return err
}

// Replace truncates and refills the table inside one transaction.
func (s *PostgresStore) Replace(ctx context.Context, records []model.TradeRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE trade_records RESTART IDENTITY`); err != nil {
			return err
		}
		for i := range records {
			if err := insertPostgres(ctx, tx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTradeRecords(rows rowScanner) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for rows.Next() {
		var (
			r                  model.TradeRecord
			side, kind, status string
			qtyS, priceS, feeS string
			filledAt           time.Time
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &side,
			&qtyS, &priceS, &feeS,
			&kind, &filledAt, &status); err != nil {
			return nil, err
		}

		if err := setAmounts(&r, qtyS, priceS, feeS); err != nil {
			return nil, err
		}
		r.Side = model.Side(side)
		r.OrderKind = model.OrderKind(kind)
		r.Status = model.Status(status)
		r.FilledAt = filledAt.UTC()

		records = append(records, r)
	}
	return records, rows.Err()
}

// setAmounts parses the textual NUMERIC columns into r.
func setAmounts(r *model.TradeRecord, qtyS, priceS, feeS string) error {
	var err error
	if r.Quantity, err = decimal.NewFromString(qtyS); err != nil {
		return fmt.Errorf("trade %s quantity: %w", r.ID, err)
	}
	if r.ExecutionPrice, err = decimal.NewFromString(priceS); err != nil {
		return fmt.Errorf("trade %s price: %w", r.ID, err)
	}
	if r.Fee, err = decimal.NewFromString(feeS); err != nil {
		return fmt.Errorf("trade %s fee: %w", r.ID, err)
	}
	return nil
}
