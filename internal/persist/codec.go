// Package persist serializes the trade log to and from an opaque durable
// blob: a JSON array in the shape the browser client kept in local storage.
//
//	[{id, symbol, quantity, dollars, price, fee, orderType, type, timestamp, status}, ...]
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/instrument"
	"github.com/microtrade/ledger-engine/internal/model"
)

// StorageKey is the blob key used by the browser client; kept for redis too.
const StorageKey = "microtrade_trades_v1"

// ErrCorruptState is returned by Decode when the blob is not a valid trade log.
var ErrCorruptState = errors.New("persist: corrupt persisted state")

// legacyTimeLayouts are accepted on decode only. The browser client wrote
// toLocaleString() timestamps before switching to RFC 3339.
var legacyTimeLayouts = []string{
	"1/2/2006, 3:04:05 PM",
	"2006-01-02 15:04:05",
}

// wireDecimal marshals as a bare JSON number with exact digits and accepts
// either numbers or numeric strings.
type wireDecimal struct {
	decimal.Decimal
	set bool
}

func (d wireDecimal) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func (d *wireDecimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if err := d.Decimal.UnmarshalJSON(b); err != nil {
		return err
	}
	d.set = true
	return nil
}

type wireRecord struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Quantity  wireDecimal `json:"quantity"`
	Dollars   wireDecimal `json:"dollars"`
	Price     wireDecimal `json:"price"`
	Fee       wireDecimal `json:"fee"`
	OrderType string      `json:"orderType"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Status    string      `json:"status"`
}

// Encode serializes records, in order, to the wire shape.
func Encode(records []model.TradeRecord) ([]byte, error) {
	out := make([]wireRecord, 0, len(records))
	for _, r := range records {
		out = append(out, wireRecord{
			ID:        r.ID,
			Symbol:    r.Symbol,
			Quantity:  wireDecimal{Decimal: r.Quantity},
			Dollars:   wireDecimal{Decimal: r.Notional()},
			Price:     wireDecimal{Decimal: r.ExecutionPrice},
			Fee:       wireDecimal{Decimal: r.Fee},
			OrderType: string(r.OrderKind),
			Type:      string(r.Side),
			Timestamp: r.FilledAt.UTC().Format(time.RFC3339Nano),
			Status:    string(r.Status),
		})
	}
	return json.Marshal(out)
}

// Decode parses a wire blob. Any malformed record makes the whole blob
// corrupt; the error wraps ErrCorruptState.
func Decode(data []byte) ([]model.TradeRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	records := make([]model.TradeRecord, 0, len(wire))
	seen := make(map[string]bool, len(wire))
	for i, w := range wire {
		r, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptState, i, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: record %d: duplicate id %s", ErrCorruptState, i, r.ID)
		}
		seen[r.ID] = true
		records = append(records, r)
	}
	return records, nil
}

func fromWire(w wireRecord) (model.TradeRecord, error) {
	var r model.TradeRecord

	if w.ID == "" {
		return r, errors.New("missing id")
	}
	symbol, err := instrument.Normalize(w.Symbol)
	if err != nil {
		return r, err
	}
	side, err := model.ParseSide(w.Type)
	if err != nil {
		return r, err
	}
	kind, err := model.ParseOrderKind(w.OrderType)
	if err != nil {
		return r, err
	}
	if !w.Quantity.set || !w.Quantity.IsPositive() {
		return r, errors.New("quantity must be > 0")
	}
	if !w.Price.set || !w.Price.IsPositive() {
		return r, errors.New("price must be > 0")
	}
	if w.Fee.IsNegative() {
		return r, errors.New("fee must be >= 0")
	}
	at, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return r, err
	}
	status := model.Status(strings.ToLower(w.Status))
	if status == "" {
		status = model.Filled
	}
	if status != model.Filled {
		return r, fmt.Errorf("unsupported status %q", w.Status)
	}

	return model.TradeRecord{
		ID:             w.ID,
		Symbol:         symbol,
		Side:           side,
		Quantity:       w.Quantity.Decimal,
		ExecutionPrice: w.Price.Decimal,
		Fee:            w.Fee.Decimal, // zero value when absent
		OrderKind:      kind,
		FilledAt:       at,
		Status:         status,
	}, nil
}

// localeSpaces maps the no-break spaces toLocaleString() puts before AM/PM
// to plain spaces.
var localeSpaces = strings.NewReplacer("\u202f", " ", "\u00a0", " ")

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	plain := localeSpaces.Replace(s)
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, plain, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
