package limits

import (
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/order"
	"github.com/microtrade/ledger-engine/internal/position"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func buy(symbol string, qty, price float64) model.TradeRecord {
	return model.TradeRecord{Symbol: symbol, Side: model.Buy, Quantity: d(qty), ExecutionPrice: d(price)}
}

func book(records ...model.TradeRecord) position.Book {
	return position.Aggregate(slices.Values(records))
}

func req(symbol string, side model.Side, qty float64) order.Request {
	return order.Request{Symbol: symbol, Side: side, Quantity: d(qty), Kind: model.Market}
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewPositionLimiter(d(100), d(5000))

	err := limiter.CheckLimit(req("AAPL", model.Buy, 10), d(100), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerSymbolExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(100), decimal.Zero)

	// Existing 95 + new 10 = 105 > 100.
	err := limiter.CheckLimit(req("AAPL", model.Buy, 10), d(1), book(buy("AAPL", 95, 1)))
	if !errors.Is(err, order.ErrPositionLimit) {
		t.Fatalf("expected ErrPositionLimit, got %v", err)
	}
	var rej *order.Rejection
	if !errors.As(err, &rej) || !rej.Available.Equal(d(95)) {
		t.Errorf("expected rejection with available=95, got %#v", err)
	}
}

func TestCheckLimit_PerSymbolAtLimitAllowed(t *testing.T) {
	limiter := NewPositionLimiter(d(100), decimal.Zero)

	err := limiter.CheckLimit(req("AAPL", model.Buy, 5), d(1), book(buy("AAPL", 95, 1)))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_ClassCostExceeded(t *testing.T) {
	limiter := NewPositionLimiter(decimal.Zero, d(2000))

	existing := book(
		buy("BTC-USD", 0.01, 64000), // 640
		buy("ETH", 0.3, 3400),       // 1020
		buy("AAPL", 100, 190),       // equity, ignored
	)

	// 640 + 1020 + 2×188.5 = 2037 > 2000
	err := limiter.CheckLimit(req("SOL", model.Buy, 2), d(188.5), existing)
	if !errors.Is(err, order.ErrPositionLimit) {
		t.Errorf("expected ErrPositionLimit, got %v", err)
	}
}

func TestCheckLimit_OtherClassIgnored(t *testing.T) {
	limiter := NewPositionLimiter(decimal.Zero, d(2000))

	existing := book(buy("AAPL", 100, 190), buy("ETH", 0.3, 3400))

	// Crypto total = 1020 + 500 = 1520 < 2000; the equity position is excluded.
	err := limiter.CheckLimit(req("BTC-USD", model.Buy, 0.01), d(50000), existing)
	if err != nil {
		t.Errorf("other asset classes should be ignored, got %v", err)
	}
}

func TestCheckLimit_SellsNeverLimited(t *testing.T) {
	limiter := NewPositionLimiter(d(1), d(1))

	err := limiter.CheckLimit(req("AAPL", model.Sell, 50), d(190), book(buy("AAPL", 100, 190)))
	if err != nil {
		t.Errorf("sells reduce exposure, got %v", err)
	}
}

func TestCheckLimit_Disabled(t *testing.T) {
	var nilLimiter *PositionLimiter
	if err := nilLimiter.CheckLimit(req("AAPL", model.Buy, 1e9), d(1e6), nil); err != nil {
		t.Errorf("nil limiter should allow everything, got %v", err)
	}

	zero := NewPositionLimiter(decimal.Zero, d(-5))
	if zero.Enabled() {
		t.Error("zero caps should be disabled")
	}
	if err := zero.CheckLimit(req("AAPL", model.Buy, 1e9), d(1e6), nil); err != nil {
		t.Errorf("disabled limiter should allow everything, got %v", err)
	}
}
