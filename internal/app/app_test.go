package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microtrade/ledger-engine/internal/config"
	"github.com/microtrade/ledger-engine/internal/engine"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/order"
)

func buy(symbol, qty string) order.Request {
	return order.Request{Symbol: symbol, Side: model.Buy, Quantity: decimal.RequireFromString(qty), Kind: model.Market}
}

func TestBuild_Memory(t *testing.T) {
	a, err := Build(context.Background(), config.Default())
	require.NoError(t, err)
	defer a.Close()

	assert.NotEmpty(t, a.Assets, "demo table is on by default")

	rc, err := a.Engine.Submit(context.Background(), buy("BTC", "0.01"))
	require.NoError(t, err)
	assert.True(t, rc.Trade.ExecutionPrice.Equal(decimal.NewFromInt(64320)))
}

func TestBuild_PersistentDrivers(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]func(*config.Config){
		"file blob": func(c *config.Config) {
			c.Store.Driver = config.DriverBlob
			c.Store.StateFile = filepath.Join(dir, "state", "trades.json")
		},
		"sqlite": func(c *config.Config) {
			c.Store.Driver = config.DriverSQLite
			c.Store.SQLitePath = filepath.Join(dir, "ledger.db")
		},
	}
	for name, configure := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Ledger.IDScheme = "ulid"
			cfg.Oracle.Prices = map[string]string{"AAPL": "150"}
			configure(cfg)
			require.NoError(t, cfg.Validate())

			ctx := context.Background()
			a, err := Build(ctx, cfg)
			require.NoError(t, err)
			_, err = a.Engine.Submit(ctx, buy("AAPL", "2"))
			require.NoError(t, err)
			a.Close()

			// Reopen and find the trade again.
			a, err = Build(ctx, cfg)
			require.NoError(t, err)
			defer a.Close()

			trades, err := a.Engine.Trades(ctx, engine.Oldest)
			require.NoError(t, err)
			require.Len(t, trades, 1)
			assert.Equal(t, "AAPL", trades[0].Symbol)
			assert.Len(t, trades[0].ID, 26, "ulid ids")
		})
	}
}

func TestBuild_NoPriceSource(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Demo = false

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.Assets)
	_, err = a.Engine.Submit(context.Background(), buy("BTC", "1"))
	assert.ErrorIs(t, err, order.ErrInvalidPrice)
}

func TestBuild_Limits(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.Limits.MaxClassCost = "1000"

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Engine.Submit(context.Background(), buy("ETH", "1"))
	assert.ErrorIs(t, err, order.ErrPositionLimit)
}
