// Package engine ties the trade log, the order gate and the price oracle
// together into the single-writer ledger used by the API and the CLI.
//
// Submit is the only operation that suspends on the outside world: it fetches
// the live price first and only then takes the writer lock, so recomputing
// positions, validating and appending happen as one step against the log as
// it is at that moment. Two concurrent sells can never both pass the
// holdings check against the same stale book.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/instrument"
	"github.com/microtrade/ledger-engine/internal/journal"
	"github.com/microtrade/ledger-engine/internal/limits"
	"github.com/microtrade/ledger-engine/internal/metrics"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/oracle"
	"github.com/microtrade/ledger-engine/internal/order"
	"github.com/microtrade/ledger-engine/internal/persist"
	"github.com/microtrade/ledger-engine/internal/position"
	"github.com/microtrade/ledger-engine/internal/valuation"
)

// ErrInvalidRequest is returned for requests that are malformed rather than
// rejected by a business rule (bad symbol, side or order kind).
var ErrInvalidRequest = errors.New("engine: invalid order request")

// SortOrder selects the order of Trades.
type SortOrder string

const (
	Oldest SortOrder = "oldest"
	Newest SortOrder = "newest"
)

// ParseSortOrder parses "oldest" or "newest"; empty means Newest.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", Newest:
		return Newest, nil
	case Oldest:
		return Oldest, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Receipt describes an accepted order.
type Receipt struct {
	Trade    model.TradeRecord `json:"trade"`
	Position model.Position    `json:"position"`
	Preview  order.Preview     `json:"preview"`
}

// Engine is the ledger. It is safe for concurrent use.
type Engine struct {
	journal  *journal.Journal
	oracle   oracle.Oracle
	limiter  *limits.PositionLimiter
	fee      decimal.Decimal
	listener Listener

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter enables position limits.
func WithLimiter(l *limits.PositionLimiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithFee sets the fee charged when a request does not carry one.
func WithFee(fee decimal.Decimal) Option {
	return func(e *Engine) { e.fee = fee }
}

// WithListener registers a listener for ledger events.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// New creates an engine over j. A nil oracle makes every live price
// unavailable; only orders with an entered price can then fill.
func New(j *journal.Journal, o oracle.Oracle, opts ...Option) *Engine {
	e := &Engine{
		journal: j,
		oracle:  o,
		fee:     order.DefaultFee,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init primes the ledger size gauge from the restored log.
func (e *Engine) Init(ctx context.Context) error {
	records, err := e.journal.Records(ctx)
	if err != nil {
		return err
	}
	metrics.LedgerSize.Set(float64(len(records)))
	return nil
}

// Submit validates r against the current log and, if accepted, appends the
// fill. A business-rule rejection is returned as an *order.Rejection.
func (e *Engine) Submit(ctx context.Context, r order.Request) (Receipt, error) {
	start := time.Now()

	req, err := e.prepare(r)
	if err != nil {
		return Receipt{}, err
	}

	live, liveOK, err := e.quote(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	price, priceOK := order.ResolvePrice(req, live, liveOK)

	e.mu.Lock()
	defer e.mu.Unlock()

	// A request cancelled while the price was in flight leaves no trace.
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	records, err := e.journal.Records(ctx)
	if err != nil {
		return Receipt{}, err
	}
	book := position.Aggregate(slices.Values(records))

	dec := order.Validate(req, book, price, priceOK)
	if !dec.Accepted {
		e.rejected(dec.Rejection)
		return Receipt{}, dec.Err()
	}
	if err := e.limiter.CheckLimit(req, dec.Price, book); err != nil {
		var rej *order.Rejection
		if errors.As(err, &rej) {
			e.rejected(rej)
		}
		return Receipt{}, err
	}

	fee := req.FeeOrDefault()
	rec, err := e.journal.Append(ctx, model.TradeInput{
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		ExecutionPrice: dec.Price,
		Fee:            fee,
		OrderKind:      req.Kind,
	})
	if err != nil {
		return Receipt{}, err
	}
	position.Apply(book, rec)

	metrics.OrdersTotal.WithLabelValues(string(rec.Side), "accepted").Inc()
	metrics.TradedVolume.WithLabelValues(instrument.Classify(rec.Symbol), string(rec.Side)).Add(rec.Quantity.InexactFloat64())
	metrics.LedgerSize.Set(float64(len(records) + 1))
	metrics.SubmitLatency.WithLabelValues(string(rec.Side)).Observe(time.Since(start).Seconds())

	receipt := Receipt{
		Trade:    rec,
		Position: book.Get(rec.Symbol),
		Preview:  order.NewPreview(rec.Quantity, rec.ExecutionPrice, fee),
	}

	slog.Info("trade filled",
		"trade_id", rec.ID,
		"symbol", rec.Symbol,
		"side", rec.Side,
		"kind", rec.OrderKind,
		"qty", rec.Quantity.String(),
		"price", rec.ExecutionPrice.String(),
		"fee", fee.String(),
		"net_qty", receipt.Position.NetQuantity.String(),
	)

	e.publish(Event{Type: EventTradeAppended, Trade: &receipt.Trade, Position: &receipt.Position})
	return receipt, nil
}

// Validate runs the order gate without appending: the confirmation step
// before a submit. The preview is filled whenever a price resolved, even for
// a rejected order.
func (e *Engine) Validate(ctx context.Context, r order.Request) (order.Decision, order.Preview, error) {
	req, err := e.prepare(r)
	if err != nil {
		return order.Decision{}, order.Preview{}, err
	}

	live, liveOK, err := e.quote(ctx, req)
	if err != nil {
		return order.Decision{}, order.Preview{}, err
	}
	price, priceOK := order.ResolvePrice(req, live, liveOK)

	book, err := e.Positions(ctx)
	if err != nil {
		return order.Decision{}, order.Preview{}, err
	}

	dec := order.Validate(req, book, price, priceOK)
	if dec.Accepted {
		if err := e.limiter.CheckLimit(req, dec.Price, book); err != nil {
			var rej *order.Rejection
			if !errors.As(err, &rej) {
				return order.Decision{}, order.Preview{}, err
			}
			dec = order.Decision{Price: dec.Price, Rejection: rej}
		}
	}

	var preview order.Preview
	if priceOK {
		preview = order.NewPreview(req.Quantity, price, req.FeeOrDefault())
	}
	return dec, preview, nil
}

// Positions recomputes the book from the full log.
func (e *Engine) Positions(ctx context.Context) (position.Book, error) {
	seq, err := e.journal.All(ctx)
	if err != nil {
		return nil, err
	}
	return position.Aggregate(seq), nil
}

// Snapshot values the open positions at live oracle prices.
func (e *Engine) Snapshot(ctx context.Context) (model.PortfolioSnapshot, error) {
	start := time.Now()
	defer func() { metrics.SnapshotLatency.Observe(time.Since(start).Seconds()) }()

	book, err := e.Positions(ctx)
	if err != nil {
		return model.PortfolioSnapshot{}, err
	}
	prices := valuation.NoPrices
	if e.oracle != nil {
		prices = oracle.Lookup(ctx, e.oracle, book.Open())
	}
	return valuation.Snapshot(book, prices), nil
}

// SnapshotWith values the open positions at caller-supplied prices.
func (e *Engine) SnapshotWith(ctx context.Context, prices valuation.PriceLookup) (model.PortfolioSnapshot, error) {
	book, err := e.Positions(ctx)
	if err != nil {
		return model.PortfolioSnapshot{}, err
	}
	return valuation.Snapshot(book, prices), nil
}

// EquityCurve replays the log, marking each position to its last fill.
func (e *Engine) EquityCurve(ctx context.Context) ([]model.EquityPoint, error) {
	seq, err := e.journal.All(ctx)
	if err != nil {
		return nil, err
	}
	return valuation.EquityCurve(seq), nil
}

// Trades returns the log sorted by fill time. Records with equal fill times
// keep their insertion order.
func (e *Engine) Trades(ctx context.Context, sort SortOrder) ([]model.TradeRecord, error) {
	records, err := e.journal.Records(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b model.TradeRecord) int {
		if sort == Oldest {
			return a.FilledAt.Compare(b.FilledAt)
		}
		return b.FilledAt.Compare(a.FilledAt)
	})
	return records, nil
}

// Quote returns the live price for symbol.
func (e *Engine) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym, err := instrument.Normalize(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if e.oracle == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrUnavailable, sym)
	}
	return e.oracle.Price(ctx, sym)
}

// Clear empties the log. Positions, snapshots and the equity curve are all
// empty afterwards.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.journal.Clear(ctx); err != nil {
		return err
	}
	metrics.LedgerSize.Set(0)
	slog.Info("ledger cleared")
	e.publish(Event{Type: EventLedgerCleared})
	return nil
}

// Export serializes the log in insertion order to the persisted wire shape.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	records, err := e.journal.Records(ctx)
	if err != nil {
		return nil, err
	}
	return persist.Encode(records)
}

// Import replaces the log with the records in data. A corrupt blob returns an
// error wrapping persist.ErrCorruptState; a store failure returns its error.
// Either way the log is left untouched.
func (e *Engine) Import(ctx context.Context, data []byte) (int, error) {
	records, err := persist.Decode(data)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.journal.Restore(ctx, records); err != nil {
		return 0, err
	}
	metrics.LedgerSize.Set(float64(len(records)))
	slog.Info("ledger imported", "records", len(records))
	e.publish(Event{Type: EventLedgerImported, Count: len(records)})
	return len(records), nil
}

// prepare normalizes the request fields that do not depend on the log.
func (e *Engine) prepare(r order.Request) (order.Request, error) {
	sym, err := instrument.Normalize(r.Symbol)
	if err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Symbol = sym

	if !r.Side.Valid() {
		side, err := model.ParseSide(string(r.Side))
		if err != nil {
			return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		r.Side = side
	}
	kind, err := model.ParseOrderKind(string(r.Kind))
	if err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Kind = kind

	if r.Fee == nil {
		fee := e.fee
		r.Fee = &fee
	}
	if r.Fee.IsNegative() {
		return r, fmt.Errorf("%w: fee must be >= 0", ErrInvalidRequest)
	}
	return r, nil
}

// quote fetches the live price when the order needs one. An oracle failure
// only makes the price unavailable; cancellation is returned.
func (e *Engine) quote(ctx context.Context, r order.Request) (decimal.Decimal, bool, error) {
	if r.Kind != model.Market && r.Price.IsPositive() {
		return decimal.Zero, false, nil
	}
	if e.oracle == nil {
		return decimal.Zero, false, nil
	}
	p, err := e.oracle.Price(ctx, r.Symbol)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, false, ctxErr
		}
		metrics.OracleFailures.Inc()
		slog.Warn("live price unavailable", "symbol", r.Symbol, "err", err)
		return decimal.Zero, false, nil
	}
	return p, p.IsPositive(), nil
}

func (e *Engine) rejected(rej *order.Rejection) {
	metrics.OrdersTotal.WithLabelValues(string(rej.Side), "rejected").Inc()
	metrics.OrderRejections.WithLabelValues(rej.Reason).Inc()
	slog.Info("order rejected",
		"symbol", rej.Symbol,
		"side", rej.Side,
		"reason", rej.Reason,
		"requested", rej.Requested.String(),
		"available", rej.Available.String(),
	)
}

func (e *Engine) publish(ev Event) {
	if e.listener == nil {
		return
	}
	ev.At = time.Now().UTC()
	e.listener.Publish(ev)
}
