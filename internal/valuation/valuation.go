// Package valuation combines derived positions with externally supplied
// prices into point-in-time portfolio snapshots and a replayed equity curve.
//
// Everything here is pure: identical inputs always produce identical output.
package valuation

import (
	"iter"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/position"
)

// PriceLookup returns the current price of symbol, or ok=false when the
// price is unavailable. Non-positive prices are treated as unavailable.
type PriceLookup func(symbol string) (price decimal.Decimal, ok bool)

// PricesFrom adapts a fixed price map to a PriceLookup.
func PricesFrom(prices map[string]decimal.Decimal) PriceLookup {
	return func(symbol string) (decimal.Decimal, bool) {
		p, ok := prices[symbol]
		return p, ok
	}
}

// NoPrices is a lookup for which every price is unavailable.
func NoPrices(string) (decimal.Decimal, bool) { return decimal.Zero, false }

// Snapshot values every open position in book. A missing price never fails
// the snapshot: the position is listed with PriceAvailable=false and left
// out of the totals.
func Snapshot(book position.Book, prices PriceLookup) model.PortfolioSnapshot {
	snap := model.PortfolioSnapshot{
		InvestedCapital: decimal.Zero,
		CurrentValue:    decimal.Zero,
		UnrealizedPnL:   decimal.Zero,
		PerPosition:     make(map[string]model.PositionPnL),
	}

	// Sorted iteration keeps decimal sums identical across calls.
	for _, sym := range book.Open() {
		p := book[sym]
		line := model.PositionPnL{
			Symbol:       sym,
			NetQuantity:  p.NetQuantity,
			AverageCost:  p.AverageCost,
			CurrentPrice: decimal.Zero,
			PnL:          decimal.Zero,
		}

		price, ok := prices(sym)
		if ok && price.IsPositive() {
			cost := p.AverageCost.Mul(p.NetQuantity)
			value := price.Mul(p.NetQuantity)

			line.CurrentPrice = price
			line.PnL = price.Sub(p.AverageCost).Mul(p.NetQuantity)
			line.PriceAvailable = true

			snap.InvestedCapital = snap.InvestedCapital.Add(cost)
			snap.CurrentValue = snap.CurrentValue.Add(value)
		}
		snap.PerPosition[sym] = line
	}

	snap.UnrealizedPnL = snap.CurrentValue.Sub(snap.InvestedCapital)
	return snap
}

// EquityCurve replays records and samples the portfolio after each one,
// marking every open position to the last fill price seen for its symbol.
// The result is fully determined by the log.
func EquityCurve(records iter.Seq[model.TradeRecord]) []model.EquityPoint {
	book := make(position.Book)
	lastFill := make(map[string]decimal.Decimal)

	var curve []model.EquityPoint
	for r := range records {
		position.Apply(book, r)
		lastFill[r.Symbol] = r.ExecutionPrice

		snap := Snapshot(book, PricesFrom(lastFill))
		curve = append(curve, model.EquityPoint{
			At:              r.FilledAt,
			TradeID:         r.ID,
			InvestedCapital: snap.InvestedCapital,
			MarketValue:     snap.CurrentValue,
		})
	}
	return curve
}
