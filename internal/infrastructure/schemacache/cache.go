package schemacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"jan-server/services/query-tools/internal/domain/schema"
)

// Config selects and sizes the cache tier.
type Config struct {
	Type      string // memory, redis or noop
	RedisURL  string
	KeyPrefix string
	MaxSize   int
}

// NewCache builds the configured tier.
func NewCache(cfg Config) (schema.Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryCache(cfg.MaxSize)
	case "redis":
		return NewRedisCache(cfg.RedisURL, cfg.KeyPrefix)
	case "noop":
		return NoOpsCache{}, nil
	default:
		return nil, fmt.Errorf("unknown schema cache type: %s", cfg.Type)
	}
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	cache *lru.Cache
	mu    sync.Mutex
	now   func() time.Time
}

type cacheEntry struct {
	snapshot  *schema.Snapshot
	expiresAt time.Time
}

func NewMemoryCache(maxSize int) (*MemoryCache, error) {
	if maxSize <= 0 {
		maxSize = 16
	}
	cache, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache, now: time.Now}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (*schema.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	entry := val.(cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.snapshot, true
}

func (c *MemoryCache) Set(_ context.Context, key string, snap *schema.Snapshot, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, cacheEntry{snapshot: snap, expiresAt: c.now().Add(ttl)})
}

// RedisCache shares snapshots across replicas. Redis failures degrade to cache misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(redisURL, prefix string) (*RedisCache, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL must be provided for the redis schema cache")
	}
	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("Ignoring non-zero DB when using Redis Cluster configuration")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Msg("schema cache connected to Redis")
	return NewRedisCacheWithClient(client, prefix), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, errors.New("no Redis addresses provided")
	}
	return opts, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*schema.Snapshot, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("schema cache read failed")
		}
		return nil, false
	}
	var snap schema.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding undecodable schema cache entry")
		return nil, false
	}
	return &snap, true
}

func (c *RedisCache) Set(ctx context.Context, key string, snap *schema.Snapshot, ttl time.Duration) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode schema snapshot")
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("schema cache write failed")
	}
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoOpsCache never stores anything.
type NoOpsCache struct{}

func (NoOpsCache) Get(context.Context, string) (*schema.Snapshot, bool) { return nil, false }

func (NoOpsCache) Set(context.Context, string, *schema.Snapshot, time.Duration) {}
