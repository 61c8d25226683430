// Package model defines the core domain types shared across the ledger engine.
// All monetary values and quantities use shopspring/decimal, never float64.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// OrderKind is informational only; it never changes settlement math.
type OrderKind string

const (
	Market     OrderKind = "market"
	Limit      OrderKind = "limit"
	Stop       OrderKind = "stop"
	TakeProfit OrderKind = "takeprofit"
)

// ParseOrderKind accepts the wire names; an empty string means Market.
func ParseOrderKind(s string) (OrderKind, error) {
	k := OrderKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return Market, nil
	case Market, Limit, Stop, TakeProfit:
		return k, nil
	case "take_profit", "take-profit":
		return TakeProfit, nil
	}
	return "", fmt.Errorf("unknown order kind %q", s)
}

// Status of a stored record. The engine only ever stores filled records.
type Status string

const Filled Status = "filled"

// TradeInput is what a caller hands to the trade record store.
type TradeInput struct {
	Symbol         string
	Side           Side
	Quantity       decimal.Decimal
	ExecutionPrice decimal.Decimal
	Fee            decimal.Decimal
	OrderKind      OrderKind
	FilledAt       time.Time // zero → now
}

// TradeRecord is an immutable record of an executed (simulated) trade.
// Once appended it is never modified or deleted individually.
type TradeRecord struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
	Fee            decimal.Decimal `json:"fee"`
	OrderKind      OrderKind       `json:"order_kind"`
	FilledAt       time.Time       `json:"filled_at"`
	Status         Status          `json:"status"`
}

// Notional is quantity × execution price, fee excluded.
func (r TradeRecord) Notional() decimal.Decimal {
	return r.Quantity.Mul(r.ExecutionPrice)
}

// Equal compares records field by field using decimal and time equality.
func (r TradeRecord) Equal(o TradeRecord) bool {
	return r.ID == o.ID &&
		r.Symbol == o.Symbol &&
		r.Side == o.Side &&
		r.Quantity.Equal(o.Quantity) &&
		r.ExecutionPrice.Equal(o.ExecutionPrice) &&
		r.Fee.Equal(o.Fee) &&
		r.OrderKind == o.OrderKind &&
		r.FilledAt.Equal(o.FilledAt) &&
		r.Status == o.Status
}

// Position is a derived holding for one instrument. It is recomputed from the
// log on demand and never persisted.
type Position struct {
	Symbol      string          `json:"symbol"`
	NetQuantity decimal.Decimal `json:"net_quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// Open reports whether the position contributes to valuation.
func (p Position) Open() bool { return p.NetQuantity.IsPositive() }

// PositionPnL is one line of a portfolio snapshot. When PriceAvailable is
// false, CurrentPrice and PnL are zero and the line is excluded from totals.
type PositionPnL struct {
	Symbol         string          `json:"symbol"`
	NetQuantity    decimal.Decimal `json:"net_quantity"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PnL            decimal.Decimal `json:"pnl"`
	PriceAvailable bool            `json:"price_available"`
}

// PortfolioSnapshot is a point-in-time valuation of all open positions.
type PortfolioSnapshot struct {
	InvestedCapital decimal.Decimal        `json:"invested_capital"`
	CurrentValue    decimal.Decimal        `json:"current_value"`
	UnrealizedPnL   decimal.Decimal        `json:"unrealized_pnl"`
	PerPosition     map[string]PositionPnL `json:"per_position"`
}

// Unpriced returns the symbols whose price was unavailable, sorted.
func (s PortfolioSnapshot) Unpriced() []string {
	var out []string
	for sym, p := range s.PerPosition {
		if !p.PriceAvailable {
			out = append(out, sym)
		}
	}
	slices.Sort(out)
	return out
}

// EquityPoint is one sample of the replayed equity curve, taken right after
// the trade identified by TradeID.
type EquityPoint struct {
	At              time.Time       `json:"at"`
	TradeID         string          `json:"trade_id"`
	InvestedCapital decimal.Decimal `json:"invested_capital"`
	MarketValue     decimal.Decimal `json:"market_value"`
}
