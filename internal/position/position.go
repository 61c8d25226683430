// Package position folds the trade log into per-instrument holdings using
// the running weighted-average cost rule.
//
// A buy blends into the average:
//
//	avg' = (avg × qty + price × fillQty) / (qty + fillQty)
//
// A sell only reduces quantity; the average of what remains is unchanged and
// realized gains never re-enter the cost basis.
package position

import (
	"iter"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
)

// AverageCostScale is the number of decimal places kept for average cost.
// Division is the only inexact step of the fold; rounding it to a fixed scale
// keeps every replay of the same log bit-identical.
const AverageCostScale int32 = 16

// Book maps a symbol to its derived position.
type Book map[string]model.Position

// Get returns the position for symbol, or a zero position when absent.
func (b Book) Get(symbol string) model.Position {
	if p, ok := b[symbol]; ok {
		return p
	}
	return model.Position{Symbol: symbol, NetQuantity: decimal.Zero, AverageCost: decimal.Zero}
}

// Symbols returns every symbol ever traded, sorted.
func (b Book) Symbols() []string {
	out := make([]string, 0, len(b))
	for sym := range b {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Open returns the symbols with a positive net quantity, sorted.
func (b Book) Open() []string {
	var out []string
	for sym, p := range b {
		if p.Open() {
			out = append(out, sym)
		}
	}
	slices.Sort(out)
	return out
}

// Sorted returns the positions ordered by symbol.
func (b Book) Sorted() []model.Position {
	out := make([]model.Position, 0, len(b))
	for _, sym := range b.Symbols() {
		out = append(out, b[sym])
	}
	return out
}

// Aggregate folds records, in sequence order, into a Book. It is total over
// any finite sequence of valid records, including ones that drive a position
// negative; rejecting oversells is the order gate's job.
func Aggregate(records iter.Seq[model.TradeRecord]) Book {
	book := make(Book)
	for r := range records {
		Apply(book, r)
	}
	return book
}

// Apply folds a single record into book.
func Apply(book Book, r model.TradeRecord) {
	p := book.Get(r.Symbol)

	switch r.Side {
	case model.Buy:
		newQty := p.NetQuantity.Add(r.Quantity)
		cost := p.AverageCost.Mul(p.NetQuantity).Add(r.ExecutionPrice.Mul(r.Quantity))
		if newQty.IsZero() {
			// Buying back exactly to flat from a short: nothing open to average.
			p.AverageCost = decimal.Zero
		} else {
			p.AverageCost = cost.DivRound(newQty, AverageCostScale)
		}
		p.NetQuantity = newQty
	case model.Sell:
		p.NetQuantity = p.NetQuantity.Sub(r.Quantity)
	}

	book[r.Symbol] = p
}

// Volume is the gross quantity bought and sold for one symbol.
type Volume struct {
	Bought decimal.Decimal
	Sold   decimal.Decimal
}

// Owned is bought minus sold.
func (v Volume) Owned() decimal.Decimal { return v.Bought.Sub(v.Sold) }

// Volumes sums bought and sold quantities per symbol.
func Volumes(records iter.Seq[model.TradeRecord]) map[string]Volume {
	out := make(map[string]Volume)
	for r := range records {
		v := out[r.Symbol]
		if r.Side == model.Buy {
			v.Bought = v.Bought.Add(r.Quantity)
		} else {
			v.Sold = v.Sold.Add(r.Quantity)
		}
		out[r.Symbol] = v
	}
	return out
}
