// internal/cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/tictactoe/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultKeyPrefix namespaces avatar entries in a shared Redis database.
const DefaultKeyPrefix = "ttt:avatar:"

// Connect opens a Redis client and verifies it with a PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Resolver is the upstream avatar source behind the cache.
type Resolver interface {
	ResolveAvatar(ctx context.Context, accountID string) (string, error)
}

// AvatarCache is a read-through cache in front of a Resolver. Only successful
// lookups are stored; upstream errors pass through untouched.
type AvatarCache struct {
	rdb      *redis.Client
	upstream Resolver
	ttl      time.Duration
	prefix   string
	logger   *logrus.Logger
}

func NewAvatarCache(rdb *redis.Client, upstream Resolver, ttl time.Duration, logger *logrus.Logger) *AvatarCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AvatarCache{
		rdb:      rdb,
		upstream: upstream,
		ttl:      ttl,
		prefix:   DefaultKeyPrefix,
		logger:   logger,
	}
}

func (c *AvatarCache) key(accountID string) string {
	return c.prefix + accountID
}

// ResolveAvatar serves accountID from Redis, falling back to the upstream on a
// miss. A Redis failure degrades to an uncached lookup.
func (c *AvatarCache) ResolveAvatar(ctx context.Context, accountID string) (string, error) {
	url, err := c.rdb.Get(ctx, c.key(accountID)).Result()
	switch {
	case err == nil && url != "":
		metrics.AvatarLookup("hit")
		return url, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.WithError(err).WithField("account", accountID).Warn("avatar cache read failed")
	}

	url, err = c.upstream.ResolveAvatar(ctx, accountID)
	if err != nil {
		metrics.AvatarLookup("error")
		return "", err
	}
	metrics.AvatarLookup("miss")
	if err := c.rdb.Set(ctx, c.key(accountID), url, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("account", accountID).Warn("avatar cache write failed")
	}
	return url, nil
}

