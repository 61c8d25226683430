// Package limits implements optional exposure caps checked after the
// holdings rule.
//
// Two caps are enforced, both on buys only (a sell never adds exposure):
//   - MaxPerSymbol bounds the net quantity held in any single instrument.
//   - MaxClassCost bounds the aggregate open cost (average cost × quantity)
//     across every instrument of the same asset class (equity or crypto).
//
// A zero cap is disabled.
package limits

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/instrument"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/order"
	"github.com/microtrade/ledger-engine/internal/position"
)

// PositionLimiter enforces per-symbol and per-asset-class exposure caps.
type PositionLimiter struct {
	// MaxPerSymbol is the maximum net quantity in any single symbol.
	MaxPerSymbol decimal.Decimal

	// MaxClassCost is the maximum aggregate open cost across all symbols of
	// one asset class.
	MaxClassCost decimal.Decimal
}

// NewPositionLimiter creates a limiter. Negative caps are treated as zero.
func NewPositionLimiter(maxPerSymbol, maxClassCost decimal.Decimal) *PositionLimiter {
	return &PositionLimiter{
		MaxPerSymbol: decimal.Max(maxPerSymbol, decimal.Zero),
		MaxClassCost: decimal.Max(maxClassCost, decimal.Zero),
	}
}

// Enabled reports whether any cap is set.
func (l *PositionLimiter) Enabled() bool {
	return l != nil && (l.MaxPerSymbol.IsPositive() || l.MaxClassCost.IsPositive())
}

// CheckLimit validates a proposed fill against book. It returns nil when
// the fill is within limits, or an *order.Rejection with reason
// order.ReasonPositionLimit.
func (l *PositionLimiter) CheckLimit(r order.Request, price decimal.Decimal, book position.Book) error {
	if !l.Enabled() || r.Side != model.Buy {
		return nil
	}

	// 1. Per-symbol quantity.
	current := book.Get(r.Symbol).NetQuantity
	next := current.Add(r.Quantity)
	if l.MaxPerSymbol.IsPositive() && next.GreaterThan(l.MaxPerSymbol) {
		return reject(r, current, fmt.Sprintf(
			"position in %s would be %s, limit is %s", r.Symbol, next, l.MaxPerSymbol))
	}

	// 2. Aggregate open cost across the same asset class.
	if l.MaxClassCost.IsPositive() {
		class := instrument.Classify(r.Symbol)
		total := r.Quantity.Mul(price)
		for _, sym := range book.Open() {
			if instrument.Classify(sym) != class {
				continue
			}
			p := book[sym]
			total = total.Add(p.AverageCost.Mul(p.NetQuantity))
		}
		if total.GreaterThan(l.MaxClassCost) {
			return reject(r, current, fmt.Sprintf(
				"%s exposure would be %s, limit is %s", class, total.StringFixed(2), l.MaxClassCost))
		}
	}

	return nil
}

func reject(r order.Request, held decimal.Decimal, detail string) *order.Rejection {
	return &order.Rejection{
		Reason:    order.ReasonPositionLimit,
		Symbol:    r.Symbol,
		Side:      r.Side,
		Requested: r.Quantity,
		Available: held,
		Detail:    detail,
	}
}
