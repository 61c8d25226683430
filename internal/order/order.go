// Package order is the submission-time gate: it decides whether a proposed
// trade may be appended to the log. It is the only place business rules live;
// the journal and the aggregator stay rule-agnostic.
package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/position"
)

// DefaultFee is the flat fee charged per fill.
var DefaultFee = decimal.RequireFromString("0.25")

// Rejection reasons.
const (
	ReasonInvalidQuantity      = "invalid_quantity"
	ReasonInvalidPrice         = "invalid_price"
	ReasonInsufficientHoldings = "insufficient_holdings"
	ReasonPositionLimit        = "position_limit"
)

var (
	ErrInvalidQuantity      = errors.New("order: invalid quantity")
	ErrInvalidPrice         = errors.New("order: invalid price")
	ErrInsufficientHoldings = errors.New("order: insufficient holdings")
	ErrPositionLimit        = errors.New("order: position limit exceeded")
)

var reasonErrors = map[string]error{
	ReasonInvalidQuantity:      ErrInvalidQuantity,
	ReasonInvalidPrice:         ErrInvalidPrice,
	ReasonInsufficientHoldings: ErrInsufficientHoldings,
	ReasonPositionLimit:        ErrPositionLimit,
}

// Request is a proposed order.
type Request struct {
	Symbol   string          `json:"symbol"`
	Side     model.Side      `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Kind     model.OrderKind `json:"order_kind"`
	// Price is the entered limit/stop/take-profit price; ignored for market orders.
	Price decimal.Decimal `json:"price"`
	// Fee overrides DefaultFee when set.
	Fee *decimal.Decimal `json:"fee,omitempty"`
}

// FeeOrDefault returns the fee to charge for r.
func (r Request) FeeOrDefault() decimal.Decimal {
	if r.Fee != nil {
		return *r.Fee
	}
	return DefaultFee
}

// Rejection is a business-rule failure with enough detail for a human
// readable message. It matches the Err* sentinels with errors.Is.
type Rejection struct {
	Reason    string          `json:"reason"`
	Symbol    string          `json:"symbol"`
	Side      model.Side      `json:"side"`
	Requested decimal.Decimal `json:"requested"`
	// Available is the exact current net quantity for insufficient holdings.
	Available decimal.Decimal `json:"available"`
	Detail    string          `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonInvalidQuantity:
		return "order rejected: enter a valid quantity"
	case ReasonInvalidPrice:
		if r.Detail != "" {
			return "order rejected: " + r.Detail
		}
		return "order rejected: execution price unavailable"
	case ReasonInsufficientHoldings:
		unit := "shares"
		if r.Available.Equal(decimal.NewFromInt(1)) {
			unit = "share"
		}
		return fmt.Sprintf("order rejected: you only own %s %s of %s", r.Available.StringFixed(3), unit, r.Symbol)
	case ReasonPositionLimit:
		return "order rejected: " + r.Detail
	}
	return "order rejected: " + r.Reason
}

func (r *Rejection) Is(target error) bool {
	return reasonErrors[r.Reason] == target
}

// Decision is the outcome of Validate. Rejection is nil when accepted.
type Decision struct {
	Accepted  bool            `json:"accepted"`
	Price     decimal.Decimal `json:"price"`
	Rejection *Rejection      `json:"rejection,omitempty"`
}

// Err returns the rejection as an error, or nil.
func (d Decision) Err() error {
	if d.Rejection == nil {
		return nil
	}
	return d.Rejection
}

// ResolvePrice picks the execution price for r. Market orders fill at the
// live quote. Other kinds fill at the entered price when one is given and
// fall back to the live quote otherwise.
func ResolvePrice(r Request, live decimal.Decimal, liveOK bool) (decimal.Decimal, bool) {
	if r.Kind != model.Market && r.Kind != "" && r.Price.IsPositive() {
		return r.Price, true
	}
	if liveOK && live.IsPositive() {
		return live, true
	}
	return decimal.Zero, false
}

// Validate applies the business rules to r against the current book. price is
// the already resolved execution price; priceOK is false when none could be
// resolved. book must be computed at the moment of append.
func Validate(r Request, book position.Book, price decimal.Decimal, priceOK bool) Decision {
	reject := func(reason, detail string) Decision {
		return Decision{Rejection: &Rejection{
			Reason:    reason,
			Symbol:    r.Symbol,
			Side:      r.Side,
			Requested: r.Quantity,
			Available: decimal.Zero,
			Detail:    detail,
		}}
	}

	if !r.Quantity.IsPositive() {
		return reject(ReasonInvalidQuantity, "")
	}

	if r.Kind != model.Market && r.Kind != "" && !r.Price.IsPositive() {
		return reject(ReasonInvalidPrice, fmt.Sprintf("enter a valid price for a %s order", r.Kind))
	}
	if !priceOK || !price.IsPositive() {
		return reject(ReasonInvalidPrice, "live price not available for "+r.Symbol)
	}

	if r.Side == model.Sell {
		held := book.Get(r.Symbol).NetQuantity
		if r.Quantity.GreaterThan(held) {
			d := reject(ReasonInsufficientHoldings, "")
			d.Rejection.Available = held
			return d
		}
	}

	return Decision{Accepted: true, Price: price}
}

// Preview is the cost breakdown shown before confirming an order.
type Preview struct {
	Notional decimal.Decimal `json:"notional"`
	Fee      decimal.Decimal `json:"fee"`
	Total    decimal.Decimal `json:"total"`
}

// NewPreview computes notional (quantity × price) and total (notional + fee).
func NewPreview(quantity, price, fee decimal.Decimal) Preview {
	notional := quantity.Mul(price)
	return Preview{
		Notional: notional,
		Fee:      fee,
		Total:    notional.Add(fee),
	}
}
