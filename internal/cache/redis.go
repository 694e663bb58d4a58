package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/introweave/matchmaker/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// KeyForDailyProposals generates the cache key for a user's daily
// proposal count.
func (c *RedisCache) KeyForDailyProposals(userID string) string {
	return fmt.Sprintf("quota:daily:%s", userID)
}

// GetDailyProposalCount returns the cached daily count, or -1 on a miss.
// The TTL is refreshed on access since the user is evidently active.
func (c *RedisCache) GetDailyProposalCount(ctx context.Context, userID string) (int, error) {
	key := c.KeyForDailyProposals(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil // cache miss
	} else if err != nil {
		return -1, err
	}
	_ = c.Client.Expire(ctx, key, time.Hour).Err()
	n, err := strconv.Atoi(val)
	if err != nil {
		return -1, nil // treat garbage as a miss
	}
	return n, nil
}

// SetDailyProposalCount stores the daily count with a fresh TTL.
func (c *RedisCache) SetDailyProposalCount(ctx context.Context, userID string, count int) error {
	return c.Client.Set(ctx, c.KeyForDailyProposals(userID), count, time.Hour).Err()
}

// AcquireTriggerGuard takes a short-lived SETNX lock keyed per user.
// The auto-proposal trigger uses it so two overlapping firings for the
// same user cannot both scan and send; the loser backs off. Returns true
// when the guard was acquired.
func (c *RedisCache) AcquireTriggerGuard(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, fmt.Sprintf("autoprop:guard:%s", userID), "1", ttl).Result()
}

// ReleaseTriggerGuard drops the auto-proposal guard early.
func (c *RedisCache) ReleaseTriggerGuard(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, fmt.Sprintf("autoprop:guard:%s", userID)).Err()
}
