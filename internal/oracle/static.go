package oracle

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset is a row of the demo crypto table.
type Asset struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Category  string          `json:"category"`
	Tags      []string        `json:"tags"`
}

func asset(symbol, name, price, change, category string, tags ...string) Asset {
	return Asset{
		Symbol:    symbol,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		ChangePct: decimal.RequireFromString(change),
		Category:  category,
		Tags:      tags,
	}
}

// DemoCrypto is the built-in crypto price table used when no live source is
// configured.
var DemoCrypto = []Asset{
	asset("BTC", "Bitcoin", "64320", "2.4", "Layer 0", "store-of-value", "macro", "blue-chip"),
	asset("ETH", "Ethereum", "3420", "1.2", "Layer 1", "smart-contracts", "defi", "blue-chip"),
	asset("SOL", "Solana", "188.5", "5.7", "Layer 1", "high-throughput", "defi", "nft"),
	asset("DOGE", "Dogecoin", "0.18", "-3.4", "Meme", "meme", "high-vol"),
	asset("XRP", "XRP", "0.62", "0.9", "Payments", "payments", "altcoin"),
	asset("ADA", "Cardano", "0.52", "-1.1", "Layer 1", "layer-1", "research-heavy"),
	asset("LTC", "Litecoin", "88.4", "0.3", "Payments", "payments", "legacy"),
	asset("LINK", "Chainlink", "19.2", "4.1", "Infrastructure", "oracle", "defi"),
}

// Static serves prices from a fixed table.
type Static struct {
	prices map[string]decimal.Decimal
	assets []Asset
}

// NewStatic builds a table from assets plus extra symbol→price overrides.
// Crypto pairs quoted in USD (BTC-USD) resolve to their base.
func NewStatic(assets []Asset, extra map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(assets)+len(extra))}
	for _, a := range assets {
		s.prices[a.Symbol] = a.Price
		s.assets = append(s.assets, a)
	}
	for sym, p := range extra {
		s.prices[strings.ToUpper(sym)] = p
	}
	return s
}

// NewDemo returns a Static oracle over DemoCrypto.
func NewDemo(extra map[string]decimal.Decimal) *Static {
	return NewStatic(DemoCrypto, extra)
}

func (s *Static) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := s.prices[symbol]; ok && p.IsPositive() {
		return p, nil
	}
	if base, ok := strings.CutSuffix(symbol, "-USD"); ok {
		if p, ok := s.prices[base]; ok && p.IsPositive() {
			return p, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
}

// Assets returns the table rows in their listed order.
func (s *Static) Assets() []Asset {
	return slices.Clone(s.assets)
}
