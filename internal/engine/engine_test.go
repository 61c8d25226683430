package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/instrument"
	"github.com/microtrade/ledger-engine/internal/journal"
	"github.com/microtrade/ledger-engine/internal/limits"
	"github.com/microtrade/ledger-engine/internal/metrics"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/oracle"
	"github.com/microtrade/ledger-engine/internal/order"
	"github.com/microtrade/ledger-engine/internal/persist"
	"github.com/microtrade/ledger-engine/internal/store"
	"github.com/microtrade/ledger-engine/internal/valuation"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(o oracle.Oracle, opts ...Option) *Engine {
	return newTestEngineOn(store.NewMemoryStore(), o, opts...)
}

func newTestEngineOn(st store.Store, o oracle.Oracle, opts ...Option) *Engine {
	var (
		mu sync.Mutex
		n  int
		at = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	)
	j := journal.New(st,
		journal.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("t%d", n)
		}),
		journal.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			at = at.Add(time.Minute)
			return at
		}),
	)
	return New(j, o, opts...)
}

func prices(kv ...string) oracle.Oracle {
	m := make(map[string]decimal.Decimal)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = d(kv[i+1])
	}
	return oracle.NewStatic(nil, m)
}

func market(symbol string, side model.Side, qty string) order.Request {
	return order.Request{Symbol: symbol, Side: side, Quantity: d(qty), Kind: model.Market}
}

func TestSubmit_BuyThenSell(t *testing.T) {
	e := newTestEngine(prices("AAPL", "100"))
	ctx := context.Background()

	rc, err := e.Submit(ctx, market("aapl", model.Buy, "10"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if rc.Trade.ID != "t1" || rc.Trade.Symbol != "AAPL" {
		t.Errorf("unexpected trade: %+v", rc.Trade)
	}
	if !rc.Trade.Fee.Equal(order.DefaultFee) {
		t.Errorf("expected default fee, got %s", rc.Trade.Fee)
	}
	if !rc.Preview.Total.Equal(d("1000.25")) {
		t.Errorf("expected total 1000.25, got %s", rc.Preview.Total)
	}

	rc, err = e.Submit(ctx, market("AAPL", model.Sell, "4"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !rc.Position.NetQuantity.Equal(d("6")) || !rc.Position.AverageCost.Equal(d("100")) {
		t.Errorf("unexpected position after sell: %+v", rc.Position)
	}
}

func TestSubmit_SellWithoutPosition(t *testing.T) {
	e := newTestEngine(prices("X", "5"))
	ctx := context.Background()

	_, err := e.Submit(ctx, market("X", model.Sell, "1"))
	if !errors.Is(err, order.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
	var rej *order.Rejection
	if !errors.As(err, &rej) || !rej.Available.IsZero() {
		t.Errorf("expected available=0, got %#v", err)
	}

	trades, _ := e.Trades(ctx, Oldest)
	if len(trades) != 0 {
		t.Errorf("rejected order must not append, got %d trades", len(trades))
	}
}

func TestSubmit_NoLivePrice(t *testing.T) {
	e := newTestEngine(prices())
	ctx := context.Background()

	_, err := e.Submit(ctx, market("TSLA", model.Buy, "1"))
	if !errors.Is(err, order.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}

	// A limit order with an entered price fills without a quote.
	req := market("TSLA", model.Buy, "1")
	req.Kind = model.Limit
	req.Price = d("250")
	rc, err := e.Submit(ctx, req)
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	if !rc.Trade.ExecutionPrice.Equal(d("250")) || rc.Trade.OrderKind != model.Limit {
		t.Errorf("unexpected fill: %+v", rc.Trade)
	}
}

func TestSubmit_InvalidRequest(t *testing.T) {
	e := newTestEngine(prices("A", "1"))
	ctx := context.Background()

	tests := map[string]order.Request{
		"bad symbol": market("not a symbol!", model.Buy, "1"),
		"bad side":   market("A", model.Side("hold"), "1"),
		"bad kind":   {Symbol: "A", Side: model.Buy, Quantity: d("1"), Kind: model.OrderKind("iceberg")},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := e.Submit(ctx, req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestSubmit_ConcurrentSellsNeverOversell(t *testing.T) {
	e := newTestEngine(prices("BTC", "64320"))
	ctx := context.Background()

	if _, err := e.Submit(ctx, market("BTC", model.Buy, "10")); err != nil {
		t.Fatal(err)
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Submit(ctx, market("BTC", model.Sell, "1"))
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, order.ErrInsufficientHoldings):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 10 || rejected.Load() != 15 {
		t.Errorf("expected 10 accepted and 15 rejected, got %d/%d", accepted.Load(), rejected.Load())
	}
	book, _ := e.Positions(ctx)
	if !book.Get("BTC").NetQuantity.IsZero() {
		t.Errorf("expected flat position, got %s", book.Get("BTC").NetQuantity)
	}
}

func TestSubmit_CancelledDuringPriceFetch(t *testing.T) {
	started := make(chan struct{})
	slow := oracle.Func(func(ctx context.Context, _ string) (decimal.Decimal, error) {
		close(started)
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	})
	e := newTestEngine(slow)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx, market("AAPL", model.Buy, "1"))
		errc <- err
	}()
	<-started
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	trades, _ := e.Trades(context.Background(), Oldest)
	if len(trades) != 0 {
		t.Errorf("cancelled submit must leave no trace, got %d trades", len(trades))
	}
}

func TestSubmit_PositionLimit(t *testing.T) {
	e := newTestEngine(prices("AAPL", "100"),
		WithLimiter(limits.NewPositionLimiter(d("10"), decimal.Zero)))
	ctx := context.Background()

	if _, err := e.Submit(ctx, market("AAPL", model.Buy, "8")); err != nil {
		t.Fatal(err)
	}
	_, err := e.Submit(ctx, market("AAPL", model.Buy, "3"))
	if !errors.Is(err, order.ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}
}

func TestValidate_DoesNotAppend(t *testing.T) {
	e := newTestEngine(prices("ETH", "3420"))
	ctx := context.Background()

	dec, preview, err := e.Validate(ctx, market("ETH", model.Buy, "0.5"))
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Accepted || !preview.Notional.Equal(d("1710")) || !preview.Total.Equal(d("1710.25")) {
		t.Errorf("unexpected dry run: %+v %+v", dec, preview)
	}

	dec, preview, err = e.Validate(ctx, market("ETH", model.Sell, "0.5"))
	if err != nil {
		t.Fatal(err)
	}
	if dec.Accepted || !errors.Is(dec.Err(), order.ErrInsufficientHoldings) {
		t.Errorf("expected insufficient holdings, got %+v", dec)
	}
	if !preview.Notional.Equal(d("1710")) {
		t.Errorf("rejected dry run still previews, got %+v", preview)
	}

	trades, _ := e.Trades(ctx, Oldest)
	if len(trades) != 0 {
		t.Errorf("dry run appended %d trades", len(trades))
	}
}

func TestSnapshot(t *testing.T) {
	e := newTestEngine(prices("AAPL", "120", "BTC", "60000"))
	ctx := context.Background()

	mustSubmit(t, e, market("AAPL", model.Buy, "10"))
	req := market("MSFT", model.Buy, "2")
	req.Kind = model.Limit
	req.Price = d("400")
	mustSubmit(t, e, req)

	snap, err := e.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.InvestedCapital.Equal(d("1200")) || !snap.CurrentValue.Equal(d("1200")) {
		t.Errorf("unexpected totals: %+v", snap)
	}
	if line := snap.PerPosition["MSFT"]; line.PriceAvailable {
		t.Errorf("MSFT has no quote, got %+v", line)
	}

	snap, err = e.SnapshotWith(ctx, valuation.PricesFrom(map[string]decimal.Decimal{
		"AAPL": d("110"), "MSFT": d("410"),
	}))
	if err != nil {
		t.Fatal(err)
	}
	// AAPL 10 × (110 − 120) + MSFT 2 × (410 − 400)
	if !snap.UnrealizedPnL.Equal(d("-80")) {
		t.Errorf("expected pnl -80, got %s", snap.UnrealizedPnL)
	}
}

func TestTrades_Sorting(t *testing.T) {
	e := newTestEngine(prices("A", "1", "B", "2", "C", "3"))
	for _, sym := range []string{"A", "B", "C"} {
		mustSubmit(t, e, market(sym, model.Buy, "1"))
	}

	newest, _ := e.Trades(context.Background(), Newest)
	oldest, _ := e.Trades(context.Background(), Oldest)
	if got := symbols(newest); got != "CBA" {
		t.Errorf("newest: expected CBA, got %s", got)
	}
	if got := symbols(oldest); got != "ABC" {
		t.Errorf("oldest: expected ABC, got %s", got)
	}
}

func TestClear_ResetsEverything(t *testing.T) {
	var events []string
	e := newTestEngine(prices("AAPL", "100"),
		WithListener(ListenerFunc(func(ev Event) { events = append(events, ev.Type) })))
	ctx := context.Background()

	mustSubmit(t, e, market("AAPL", model.Buy, "3"))
	if err := e.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	book, _ := e.Positions(ctx)
	snap, _ := e.Snapshot(ctx)
	curve, _ := e.EquityCurve(ctx)
	if len(book) != 0 || len(snap.PerPosition) != 0 || !snap.InvestedCapital.IsZero() || len(curve) != 0 {
		t.Errorf("expected empty state, got book=%v snap=%+v curve=%v", book, snap, curve)
	}

	_, err := e.Submit(ctx, market("AAPL", model.Sell, "1"))
	if !errors.Is(err, order.ErrInsufficientHoldings) {
		t.Errorf("expected no holdings after clear, got %v", err)
	}

	rc := mustSubmit(t, e, market("AAPL", model.Buy, "1"))
	if rc.Trade.ID == "t1" {
		t.Error("ids must not be reused after clear")
	}

	want := []string{EventTradeAppended, EventLedgerCleared, EventTradeAppended}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("expected events %v, got %v", want, events)
	}
}

func TestExportImport(t *testing.T) {
	src := newTestEngine(prices("AAPL", "100", "ETH", "3420"))
	ctx := context.Background()
	mustSubmit(t, src, market("AAPL", model.Buy, "2"))
	mustSubmit(t, src, market("ETH", model.Buy, "0.25"))

	blob, err := src.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dst := newTestEngine(prices())
	mustSubmit(t, dst, order.Request{Symbol: "X", Side: model.Buy, Quantity: d("1"), Kind: model.Limit, Price: d("1")})

	if _, err := dst.Import(ctx, []byte(`[{"id":`)); !errors.Is(err, persist.ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
	if trades, _ := dst.Trades(ctx, Oldest); len(trades) != 1 {
		t.Fatalf("corrupt import must leave the log untouched, got %d trades", len(trades))
	}

	n, err := dst.Import(ctx, blob)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}

	want, _ := src.Trades(ctx, Oldest)
	got, _ := dst.Trades(ctx, Oldest)
	if len(got) != len(want) {
		t.Fatalf("expected %d trades, got %d", len(want), len(got))
	}
	for i := range want {
		if !want[i].Equal(got[i]) {
			t.Errorf("trade %d: %+v != %+v", i, want[i], got[i])
		}
	}
}

type switchBlob struct {
	persist.Blob
	fail atomic.Bool
}

func (b *switchBlob) Write(ctx context.Context, data []byte) error {
	if b.fail.Load() {
		return errors.New("disk full")
	}
	return b.Blob.Write(ctx, data)
}

func TestImport_StoreFailureKeepsLog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trades.json")
	blob := &switchBlob{Blob: persist.NewFileBlob(path)}
	st, err := store.OpenBlobStore(ctx, blob)
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngineOn(st, prices("AAPL", "100"))
	for range 3 {
		mustSubmit(t, e, market("AAPL", model.Buy, "1"))
	}
	data, err := e.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}

	blob.fail.Store(true)
	if _, err := e.Import(ctx, data); err == nil {
		t.Fatal("expected import to fail")
	}
	if trades, _ := e.Trades(ctx, Oldest); len(trades) != 3 {
		t.Errorf("failed import must keep the log, got %d trades", len(trades))
	}

	reopened, err := store.OpenBlobStore(ctx, persist.NewFileBlob(path))
	if err != nil {
		t.Fatal(err)
	}
	if onDisk, _ := reopened.List(ctx); len(onDisk) != 3 {
		t.Errorf("failed import must keep the blob, got %d records on disk", len(onDisk))
	}
}

func TestSubmit_TradedVolumeByAssetClass(t *testing.T) {
	e := newTestEngine(prices("ETH", "3420", "AAPL", "100", "ZZZZ", "5"))
	crypto := metrics.TradedVolume.WithLabelValues(instrument.ClassCrypto, string(model.Buy))
	equity := metrics.TradedVolume.WithLabelValues(instrument.ClassEquity, string(model.Buy))
	cryptoBefore, equityBefore := testutil.ToFloat64(crypto), testutil.ToFloat64(equity)

	mustSubmit(t, e, market("ETH", model.Buy, "0.5"))
	mustSubmit(t, e, market("AAPL", model.Buy, "2"))
	mustSubmit(t, e, market("ZZZZ", model.Buy, "1"))

	if got := testutil.ToFloat64(crypto) - cryptoBefore; got != 0.5 {
		t.Errorf("expected crypto volume +0.5, got %v", got)
	}
	if got := testutil.ToFloat64(equity) - equityBefore; got != 3 {
		t.Errorf("expected equity volume +3, got %v", got)
	}
}

func mustSubmit(t *testing.T, e *Engine, req order.Request) Receipt {
	t.Helper()
	rc, err := e.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit %+v: %v", req, err)
	}
	return rc
}

func symbols(records []model.TradeRecord) string {
	var s string
	for _, r := range records {
		s += r.Symbol
	}
	return s
}
