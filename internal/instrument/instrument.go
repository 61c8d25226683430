// Package instrument handles tradable symbol normalization, validation and
// asset-class detection for equity tickers and crypto pairs.
package instrument

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Asset classes.
const (
	ClassEquity = "equity"
	ClassCrypto = "crypto"
)

// symbolRegex matches: {base}[-{quote}]
// Examples: AAPL, BRK.B, BTC-USD
var symbolRegex = regexp.MustCompile(`^([A-Z0-9.]{1,12})(?:-([A-Z]{2,5}))?$`)

// cryptoBases are bare symbols treated as crypto even without a quote suffix.
var cryptoBases = map[string]bool{
	"BTC":  true,
	"ETH":  true,
	"SOL":  true,
	"DOGE": true,
	"XRP":  true,
	"ADA":  true,
	"LTC":  true,
	"LINK": true,
}

var ErrInvalidSymbol = errors.New("instrument: invalid symbol")

// Instrument is a parsed, normalized symbol.
type Instrument struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote,omitempty"`
	Class  string `json:"class"`
}

// Parse normalizes and validates a symbol.
// Format: {base}[-{quote}], case-insensitive, surrounding space ignored.
func Parse(symbol string) (*Instrument, error) {
	norm := strings.ToUpper(strings.TrimSpace(symbol))
	matches := symbolRegex.FindStringSubmatch(norm)
	if matches == nil {
		return nil, fmt.Errorf("%w: %q (expected TICKER or BASE-QUOTE)", ErrInvalidSymbol, symbol)
	}

	base, quote := matches[1], matches[2]
	class := ClassEquity
	if quote != "" || cryptoBases[base] {
		class = ClassCrypto
	}

	return &Instrument{
		Symbol: norm,
		Base:   base,
		Quote:  quote,
		Class:  class,
	}, nil
}

// Normalize returns the canonical upper-case form of symbol.
func Normalize(symbol string) (string, error) {
	inst, err := Parse(symbol)
	if err != nil {
		return "", err
	}
	return inst.Symbol, nil
}

// Classify returns the asset class of an already normalized symbol, or
// ClassEquity when the symbol does not parse.
func Classify(symbol string) string {
	inst, err := Parse(symbol)
	if err != nil {
		return ClassEquity
	}
	return inst.Class
}
