// File: internal/reputation/cache.go
package reputation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/config"
	"github.com/urlverdict/verdict-cli/internal/metrics"
)

// cachedSource fronts a provider with a redis verdict cache. Reputation data
// moves slowly, so a short TTL saves most repeat lookups without going
// stale. Only available verdicts are cached; an outage is never remembered.
// Redis failures degrade silently to a live lookup.
type cachedSource struct {
	inner  Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache connects to redis and pings it once so misconfiguration surfaces
// at startup rather than mid-scan.
func NewCache(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// WithCache wraps src with the redis verdict cache. A nil client returns src
// unchanged.
func WithCache(src Source, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) Source {
	if rdb == nil {
		return src
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedSource{
		inner:  src,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Named("repcache"),
	}
}

func (c *cachedSource) Provider() schemas.ReputationProvider { return c.inner.Provider() }

func (c *cachedSource) Lookup(ctx context.Context, rawURL string) schemas.ReputationSignal {
	key := c.key(rawURL)

	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var signal schemas.ReputationSignal
		if err := json.Unmarshal(val, &signal); err == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return signal
		}
		// Corrupt entry; drop it and fall through to a live lookup.
		c.rdb.Del(ctx, key)
	case err == redis.Nil:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		c.logger.Debug("Verdict cache read failed, falling back to live lookup",
			zap.String("provider", string(c.inner.Provider())),
			zap.Error(err))
	}

	signal := c.inner.Lookup(ctx, rawURL)

	if signal.Available {
		if payload, err := json.Marshal(signal); err == nil {
			if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Debug("Verdict cache write failed", zap.Error(err))
			}
		}
	}

	return signal
}

func (c *cachedSource) key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("verdict:rep:%s:%s", c.inner.Provider(), hex.EncodeToString(sum[:16]))
}
