package valuation

import (
	"reflect"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/position"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fill(id, symbol string, side model.Side, qty, price string) model.TradeRecord {
	return model.TradeRecord{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Quantity:       d(qty),
		ExecutionPrice: d(price),
		Status:         model.Filled,
	}
}

func book(records ...model.TradeRecord) position.Book {
	return position.Aggregate(slices.Values(records))
}

func TestSnapshot_FullCoverage(t *testing.T) {
	b := book(
		fill("1", "AAPL", model.Buy, "10", "100"),
		fill("2", "MSFT", model.Buy, "2", "400"),
	)
	snap := Snapshot(b, PricesFrom(map[string]decimal.Decimal{
		"AAPL": d("110"),
		"MSFT": d("390"),
	}))

	if !snap.InvestedCapital.Equal(d("1800")) {
		t.Errorf("expected invested=1800, got %s", snap.InvestedCapital)
	}
	if !snap.CurrentValue.Equal(d("1880")) {
		t.Errorf("expected current=1880, got %s", snap.CurrentValue)
	}
	if !snap.UnrealizedPnL.Equal(d("80")) {
		t.Errorf("expected pnl=80, got %s", snap.UnrealizedPnL)
	}
	if !snap.PerPosition["AAPL"].PnL.Equal(d("100")) {
		t.Errorf("expected AAPL pnl=100, got %s", snap.PerPosition["AAPL"].PnL)
	}
	if !snap.PerPosition["MSFT"].PnL.Equal(d("-20")) {
		t.Errorf("expected MSFT pnl=-20, got %s", snap.PerPosition["MSFT"].PnL)
	}
}

func TestSnapshot_PartialPriceCoverage(t *testing.T) {
	b := book(
		fill("1", "AAPL", model.Buy, "10", "100"),
		fill("2", "ZZZZ", model.Buy, "5", "20"),
	)
	snap := Snapshot(b, PricesFrom(map[string]decimal.Decimal{"AAPL": d("120")}))

	if !snap.InvestedCapital.Equal(d("1000")) || !snap.CurrentValue.Equal(d("1200")) {
		t.Errorf("totals must only cover AAPL, got invested=%s current=%s", snap.InvestedCapital, snap.CurrentValue)
	}
	if !snap.UnrealizedPnL.Equal(d("200")) {
		t.Errorf("expected pnl=200, got %s", snap.UnrealizedPnL)
	}

	z, ok := snap.PerPosition["ZZZZ"]
	if !ok {
		t.Fatal("unpriced position must still be listed")
	}
	if z.PriceAvailable {
		t.Error("ZZZZ must be marked price unavailable")
	}
	if !snap.PerPosition["AAPL"].PriceAvailable {
		t.Error("AAPL must be marked priced")
	}
	if got := snap.Unpriced(); !slices.Equal(got, []string{"ZZZZ"}) {
		t.Errorf("expected unpriced [ZZZZ], got %v", got)
	}
}

func TestSnapshot_NonPositivePriceIsUnavailable(t *testing.T) {
	b := book(fill("1", "AAPL", model.Buy, "1", "100"))
	snap := Snapshot(b, PricesFrom(map[string]decimal.Decimal{"AAPL": d("0")}))

	if snap.PerPosition["AAPL"].PriceAvailable {
		t.Error("zero price must count as unavailable")
	}
	if !snap.CurrentValue.IsZero() {
		t.Errorf("expected zero current value, got %s", snap.CurrentValue)
	}
}

func TestSnapshot_ExcludesFlatAndShort(t *testing.T) {
	b := book(
		fill("1", "FLAT", model.Buy, "1", "10"),
		fill("2", "FLAT", model.Sell, "1", "12"),
		fill("3", "SHRT", model.Sell, "3", "10"),
	)
	snap := Snapshot(b, PricesFrom(map[string]decimal.Decimal{"FLAT": d("11"), "SHRT": d("9")}))

	if len(snap.PerPosition) != 0 {
		t.Errorf("expected no lines, got %v", snap.PerPosition)
	}
	if !snap.InvestedCapital.IsZero() || !snap.CurrentValue.IsZero() || !snap.UnrealizedPnL.IsZero() {
		t.Errorf("expected zero totals, got %+v", snap)
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	b := book(
		fill("1", "BTC-USD", model.Buy, "0.0013", "64320.17"),
		fill("2", "BTC-USD", model.Buy, "0.0007", "61000.03"),
		fill("3", "ETH", model.Buy, "0.3", "3420"),
		fill("4", "DOGE", model.Buy, "1000", "0.18"),
	)
	prices := PricesFrom(map[string]decimal.Decimal{"BTC-USD": d("65001.5"), "ETH": d("3300.01")})

	first := Snapshot(b, prices)
	second := Snapshot(b, prices)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshot is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestSnapshot_EmptyBook(t *testing.T) {
	snap := Snapshot(position.Book{}, NoPrices)
	if !snap.InvestedCapital.IsZero() || !snap.CurrentValue.IsZero() || !snap.UnrealizedPnL.IsZero() {
		t.Errorf("expected zero totals, got %+v", snap)
	}
	if snap.PerPosition == nil {
		t.Error("per-position map must be non-nil")
	}
}

func TestEquityCurve_MarksToLastFill(t *testing.T) {
	curve := EquityCurve(slices.Values([]model.TradeRecord{
		fill("1", "AAPL", model.Buy, "10", "100"),
		fill("2", "AAPL", model.Buy, "10", "200"),
		fill("3", "AAPL", model.Sell, "5", "300"),
	}))

	if len(curve) != 3 {
		t.Fatalf("expected 3 points, got %d", len(curve))
	}
	want := []struct{ invested, value string }{
		{"1000", "1000"}, // 10 @ 100, marked at 100
		{"3000", "4000"}, // 20 @ 150, marked at 200
		{"2250", "4500"}, // 15 @ 150, marked at 300
	}
	for i, w := range want {
		if !curve[i].InvestedCapital.Equal(d(w.invested)) || !curve[i].MarketValue.Equal(d(w.value)) {
			t.Errorf("point %d: expected %s/%s, got %s/%s", i, w.invested, w.value,
				curve[i].InvestedCapital, curve[i].MarketValue)
		}
	}
	if curve[2].TradeID != "3" {
		t.Errorf("expected trade id 3, got %s", curve[2].TradeID)
	}
}
