// Package redis provides Redis-based adapters for the corporate discounts service.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	"github.com/upstars/corporate-discounts/internal/ports"
	"golang.org/x/sync/singleflight"
)

// DefaultAllowlistKey is the prefix of the Redis keys holding the cached allow-list.
const DefaultAllowlistKey = "discounts:allowlist"

var (
	_ ports.AllowlistReader      = (*AllowlistCache)(nil)
	_ ports.AllowlistInvalidator = (*AllowlistCache)(nil)
)

// AllowlistCacheOptions groups dependencies for AllowlistCache.
type AllowlistCacheOptions struct {
	Client redis.UniversalClient // Required
	Source ports.AllowlistReader // Required: authoritative allow-list
	TTL    time.Duration         // Required: lifetime of a cached copy
	Key    string                // Optional: defaults to DefaultAllowlistKey
	Logger *slog.Logger          // Optional
}

// AllowlistCache is a read-through cache of the allow-list. Concurrent misses
// share one read of the source. Redis failures fall through to the source.
//
// Entries are stored under the current generation (key:<n>), and Invalidate
// advances the generation counter (key:gen). A load that started before an
// invalidation therefore writes to a generation nobody reads any more.
type AllowlistCache struct {
	client redis.UniversalClient
	source ports.AllowlistReader
	ttl    time.Duration
	key    string
	logger *slog.Logger
	group  singleflight.Group
}

// NewAllowlistCache creates an AllowlistCache.
func NewAllowlistCache(opts AllowlistCacheOptions) (*AllowlistCache, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Source == nil {
		return nil, errors.New("allow-list source is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("cache TTL must be positive")
	}
	c := &AllowlistCache{
		client: opts.Client,
		source: opts.Source,
		ttl:    opts.TTL,
		key:    opts.Key,
		logger: opts.Logger,
	}
	if c.key == "" {
		c.key = DefaultAllowlistKey
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// ListAuthorizedUsers returns the cached allow-list, loading it from the source on a miss.
func (c *AllowlistCache) ListAuthorizedUsers(ctx context.Context) ([]domainauth.AuthorizedUser, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "allow-list cache read failed", "error", err)
		return c.load(ctx, c.key, false)
	}

	key := c.entryKey(gen)
	if users, ok := c.cached(ctx, key); ok {
		return users, nil
	}
	return c.load(ctx, key, true)
}

// Invalidate moves the cache to a new generation so the next read goes to the source.
func (c *AllowlistCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}

// load reads the source once per key; callers that missed in the same
// generation share the read.
func (c *AllowlistCache) load(ctx context.Context, key string, keep bool) ([]domainauth.AuthorizedUser, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		users, err := c.source.ListAuthorizedUsers(ctx)
		if err != nil {
			return nil, err
		}
		if keep {
			c.store(ctx, key, users)
		}
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]domainauth.AuthorizedUser)
	return append([]domainauth.AuthorizedUser(nil), shared...), nil
}

func (c *AllowlistCache) generation(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *AllowlistCache) generationKey() string { return c.key + ":gen" }

func (c *AllowlistCache) entryKey(gen int64) string {
	return c.key + ":" + strconv.FormatInt(gen, 10)
}

func (c *AllowlistCache) cached(ctx context.Context, key string) ([]domainauth.AuthorizedUser, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "allow-list cache read failed", "error", err)
		return nil, false
	}
	var users []domainauth.AuthorizedUser
	if err := json.Unmarshal(data, &users); err != nil {
		c.logger.WarnContext(ctx, "allow-list cache entry is corrupt", "error", err)
		return nil, false
	}
	return users, true
}

func (c *AllowlistCache) store(ctx context.Context, key string, users []domainauth.AuthorizedUser) {
	if users == nil {
		users = []domainauth.AuthorizedUser{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		c.logger.WarnContext(ctx, "allow-list cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "allow-list cache write failed", "error", err)
	}
}
