package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-gigs/internal/events"
	"ms-gigs/internal/logger"
	"ms-gigs/internal/store"
)

const (
	defaultKeyPrefix  = "gigs:projection:"
	generationKey     = "generation"
	invalidateTimeout = 5 * time.Second
)

// RedisCache keeps projections as JSON under a generation counter. Every gig
// event bumps the counter, which strands all entries written before it; they
// age out through the TTL. If a bump fails the cache turns itself off until a
// later bump succeeds, since entries from before the mutation could otherwise
// be served again.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *logger.Logger

	disabled atomic.Bool
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisCache{Client: client, TTL: ttl, Prefix: defaultKeyPrefix, Logger: log}
}

// ConnectRedis opens a client and checks it with a ping.
func ConnectRedis(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	log.Info("CACHE", fmt.Sprintf("Connected to Redis at %s", addr))
	return client, nil
}

func (c *RedisCache) entryKey(generation int64, key string) string {
	return fmt.Sprintf("%s%d:%s", c.Prefix, generation, key)
}

// Generation returns the current generation, or false while the cache is off or
// Redis cannot be read.
func (c *RedisCache) Generation(ctx context.Context) (int64, bool) {
	if c.disabled.Load() {
		return 0, false
	}
	generation, err := c.Client.Get(ctx, c.Prefix+generationKey).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("Reading generation failed: %v", err))
		return 0, false
	}
	return generation, true
}

func (c *RedisCache) Get(ctx context.Context, generation int64, key string) (store.RowSet, bool) {
	raw, err := c.Client.Get(ctx, c.entryKey(generation, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.Logger.Warn("CACHE", fmt.Sprintf("Reading %s failed: %v", key, err))
		}
		return store.RowSet{}, false
	}

	var rs store.RowSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("Discarding unreadable entry %s: %v", key, err))
		return store.RowSet{}, false
	}
	if rs.Columns == nil {
		rs.Columns = []string{}
	}
	if rs.Rows == nil {
		rs.Rows = []store.Row{}
	}
	return rs, true
}

func (c *RedisCache) Set(ctx context.Context, generation int64, key string, rs store.RowSet) {
	raw, err := json.Marshal(rs)
	if err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("Encoding %s failed: %v", key, err))
		return
	}
	if err := c.Client.Set(ctx, c.entryKey(generation, key), raw, c.TTL).Err(); err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("Writing %s failed: %v", key, err))
	}
}

// Invalidate moves the generation on. It runs detached from ctx's cancellation
// because the mutation it follows has already committed.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	generation, err := c.Client.Incr(ctx, c.Prefix+generationKey).Result()
	if err != nil {
		if !c.disabled.Swap(true) {
			c.Logger.Error("CACHE", fmt.Sprintf("Invalidating projections failed, cache disabled: %v", err))
		}
		return fmt.Errorf("invalidating cached projections: %w", err)
	}
	if c.disabled.Swap(false) {
		c.Logger.Info("CACHE", fmt.Sprintf("Projection cache re-enabled at generation %d", generation))
	}
	return nil
}

// Publish implements events.Publisher.
func (c *RedisCache) Publish(ctx context.Context, e events.Event) error {
	if err := c.Invalidate(ctx); err != nil {
		return err
	}
	c.Logger.Debug("CACHE", fmt.Sprintf("Projections invalidated after %s on gig %d", e.Type, e.GigID))
	return nil
}
