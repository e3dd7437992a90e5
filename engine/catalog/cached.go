package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte store behind CachedSource.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache implements Cache on redis. Every key is namespaced by prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to redis and pings it.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("catalog: redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "fitment:"
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete by prefix: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

// CachedSource is a read-through cache in front of another source. Cache
// failures are logged and fall through to the wrapped source; source
// failures are never cached.
type CachedSource struct {
	src    Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// Compile-time interface check.
var _ Source = (*CachedSource)(nil)

// NewCachedSource wraps src. A ttl of zero or less defaults to five minutes.
func NewCachedSource(src Source, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{src: src, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedSource) Name() string { return c.src.Name() }

func (c *CachedSource) QueryByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return c.lookup(ctx, Query{Op: OpCategory, Category: category})
}

func (c *CachedSource) QueryBySize(ctx context.Context, category, size string) ([]domain.Product, error) {
	return c.lookup(ctx, Query{Op: OpSize, Category: category, Value: size})
}

func (c *CachedSource) QueryByCode(ctx context.Context, category, code string) ([]domain.Product, error) {
	return c.lookup(ctx, Query{Op: OpCode, Category: category, Value: code})
}

// Invalidate drops every cached answer for this source.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	return c.cache.DeleteByPrefix(ctx, c.src.Name()+":")
}

func (c *CachedSource) lookup(ctx context.Context, q Query) ([]domain.Product, error) {
	key := c.src.Name() + ":" + q.key()

	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var products []domain.Product
		if jerr := json.Unmarshal(data, &products); jerr == nil {
			return products, nil
		}
		c.logger.Warn("catalog cache: dropping corrupt entry", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("catalog cache: get failed", "key", key, "error", err)
	}

	products, err := Run(ctx, c.src, q)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(products); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("catalog cache: set failed", "key", key, "error", err)
		}
	}
	return products, nil
}
