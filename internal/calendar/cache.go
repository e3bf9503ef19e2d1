package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hireloop/scheduling/internal/model"
)

// CachedProvider is a read-through Redis cache in front of a Provider. It
// shields external providers from repeated identical range queries when many
// availability computations run for the same people. Redis failures fall
// through to the underlying provider.
type CachedProvider struct {
	inner  Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) BusySlots(ctx context.Context, account model.CalendarAccount, from, to time.Time) ([]model.BusyInterval, error) {
	key := fmt.Sprintf("busycache:%s:%d:%d", account.ID, from.Unix(), to.Unix())

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []model.BusyInterval
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("busy cache read failed", "provider", c.inner.Name(), "err", err)
	}

	busy, err := c.inner.BusySlots(ctx, account, from, to)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(busy); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("busy cache write failed", "provider", c.inner.Name(), "err", err)
		}
	}
	return busy, nil
}
