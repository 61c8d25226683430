package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache is the subset of redis commands Cached needs; *redis.Client
// satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cached wraps an Oracle with a redis read-through cache. Cache failures are
// logged and bypassed; only the primary decides availability.
type Cached struct {
	primary Oracle
	rdb     Cache
	ttl     time.Duration
}

// NewCached creates a cached wrapper around primary.
func NewCached(primary Oracle, rdb Cache, ttl time.Duration) *Cached {
	return &Cached{primary: primary, rdb: rdb, ttl: ttl}
}

func (c *Cached) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	// Try cache.
	if s, err := c.rdb.Get(ctx, quoteKey(symbol)).Result(); err == nil {
		if p, err := decimal.NewFromString(s); err == nil && p.IsPositive() {
			return p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("quote cache read failed", "symbol", symbol, "err", err)
	}

	// Cache miss.
	p, err := c.primary.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.rdb.Set(ctx, quoteKey(symbol), p.String(), c.ttl).Err(); err != nil {
		slog.Warn("quote cache write failed", "symbol", symbol, "err", err)
	}
	return p, nil
}

func quoteKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }
