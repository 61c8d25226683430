// Package oracle supplies current market prices. Prices come from outside the
// ledger and are never persisted with it; a failed lookup only ever makes a
// price unavailable.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/microtrade/ledger-engine/internal/metrics"
	"github.com/microtrade/ledger-engine/internal/valuation"
)

// ErrUnavailable is returned when no positive price is known for a symbol.
var ErrUnavailable = errors.New("oracle: price unavailable")

// DefaultConcurrency bounds the number of in-flight lookups in Lookup.
const DefaultConcurrency = 4

// Oracle returns the current price of a symbol.
type Oracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, symbol string) (decimal.Decimal, error)

func (f Func) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f(ctx, symbol)
}

// Chain tries each oracle in order and returns the first positive price.
type Chain []Oracle

func (c Chain) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var errs []error
	for _, o := range c {
		p, err := o.Price(ctx, symbol)
		if err == nil && p.IsPositive() {
			return p, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return decimal.Zero, ctxErr
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrUnavailable, symbol, errors.Join(errs...))
}

// Lookup fetches prices for symbols concurrently and returns them as a
// valuation.PriceLookup. Symbols whose lookup fails are simply absent.
func Lookup(ctx context.Context, o Oracle, symbols []string) valuation.PriceLookup {
	var (
		mu     sync.Mutex
		prices = make(map[string]decimal.Decimal, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			p, err := o.Price(gctx, sym)
			if err != nil || !p.IsPositive() {
				metrics.OracleFailures.Inc()
				slog.Debug("price unavailable", "symbol", sym, "err", err)
				return nil
			}
			mu.Lock()
			prices[sym] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return valuation.PricesFrom(prices)
}
