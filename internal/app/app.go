// Package app assembles a ledger engine from configuration: trade log
// backend, id scheme, price sources and limits. Both the server and the CLI
// build through here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/microtrade/ledger-engine/internal/config"
	"github.com/microtrade/ledger-engine/internal/engine"
	"github.com/microtrade/ledger-engine/internal/id"
	"github.com/microtrade/ledger-engine/internal/journal"
	"github.com/microtrade/ledger-engine/internal/limits"
	"github.com/microtrade/ledger-engine/internal/oracle"
	"github.com/microtrade/ledger-engine/internal/persist"
	"github.com/microtrade/ledger-engine/internal/store"
)

// App is an assembled ledger and the resources it holds.
type App struct {
	Engine *engine.Engine
	// Assets is the demo crypto table, empty when demo prices are off.
	Assets []oracle.Asset

	cleanup []func()
}

// Close releases every resource opened by Build, in reverse order.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// Build opens the configured backends and returns a ready engine. On error
// everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts ...engine.Option) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
	}

	st, err := a.openStore(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}

	gen, err := id.NewGenerator(cfg.Ledger.IDScheme)
	if err != nil {
		return nil, err
	}
	j := journal.New(st, journal.WithIDGenerator(gen))

	src, err := a.buildOracle(cfg, rdb)
	if err != nil {
		return nil, err
	}

	fee, err := cfg.Fee()
	if err != nil {
		return nil, err
	}
	maxPerSymbol, maxClassCost, err := cfg.Limits()
	if err != nil {
		return nil, err
	}

	all := append([]engine.Option{
		engine.WithFee(fee),
		engine.WithLimiter(limits.NewPositionLimiter(maxPerSymbol, maxClassCost)),
	}, opts...)
	a.Engine = engine.New(j, src, all...)

	if err := a.Engine.Init(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory trade log (data will not persist)")
		return store.NewMemoryStore(), nil

	case config.DriverBlob:
		var blob persist.Blob
		if cfg.Store.BlobBackend == config.BlobRedis {
			if rdb == nil {
				return nil, fmt.Errorf("redis blob requires redis.url")
			}
			blob = persist.NewRedisBlob(rdb, cfg.Store.RedisKey)
			slog.Info("trade log in redis", "key", cfg.Store.RedisKey)
		} else {
			blob = persist.NewFileBlob(cfg.Store.StateFile)
			slog.Info("trade log in file", "path", cfg.Store.StateFile)
		}
		return store.OpenBlobStore(ctx, blob)

	case config.DriverSQLite:
		st, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, func() { st.Close() })
		slog.Info("trade log in sqlite", "path", cfg.Store.SQLitePath)
		return st, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		st := store.NewPostgresStore(pool)
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// buildOracle chains configured prices, the demo table and Alpha Vantage,
// in that order. Alpha Vantage is cached in redis when redis is configured.
func (a *App) buildOracle(cfg *config.Config, rdb *redis.Client) (oracle.Oracle, error) {
	var chain oracle.Chain

	prices, err := cfg.StaticPrices()
	if err != nil {
		return nil, err
	}
	if len(prices) > 0 {
		chain = append(chain, oracle.NewStatic(nil, prices))
	}

	if cfg.Oracle.Demo {
		demo := oracle.NewDemo(nil)
		a.Assets = demo.Assets()
		chain = append(chain, demo)
	}

	if cfg.Oracle.AlphaVantageKey != "" {
		var av oracle.Oracle = oracle.NewAlphaVantage(cfg.Oracle.AlphaVantageKey, cfg.Oracle.AlphaVantageURL, nil)
		if rdb != nil && cfg.Oracle.CacheTTL > 0 {
			av = oracle.NewCached(av, rdb, cfg.Oracle.CacheTTL)
			slog.Info("quote cache enabled", "ttl", cfg.Oracle.CacheTTL)
		}
		chain = append(chain, av)
	}

	if len(chain) == 0 {
		slog.Warn("no price source configured; market orders will be rejected")
		return nil, nil
	}
	return chain, nil
}
