// Package cache holds the namespace-version counters that invalidate
// derived read caches, plus a small JSON read-through store. Versions are
// monotonic Redis counters: readers fold the current version into their
// cache keys, writers bump the counter after commit, and superseded entries
// are simply orphaned until their TTL evicts them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a Redis connection for version counters and cached payloads.
// Safe for concurrent use.
type Client struct {
	rdb *redis.Client
}

func New(opts *redis.Options) *Client {
	return &Client{rdb: redis.NewClient(opts)}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AvailabilityNamespace is the per-provider namespace covering availability
// and booking-occupancy reads.
func AvailabilityNamespace(providerID string) string {
	return "ns:provider:" + providerID + ":availability"
}

// SearchNamespace covers the provider directory search.
func SearchNamespace() string {
	return "ns:providers:search"
}

// CurrentVersion reads the namespace counter. A namespace that has never
// been bumped reads as 0.
func (c *Client) CurrentVersion(ctx context.Context, namespace string) (int64, error) {
	v, err := c.rdb.Get(ctx, namespace).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read namespace version %s: %w", namespace, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("namespace version %s is not an integer: %w", namespace, err)
	}
	return n, nil
}

// Bump atomically increments the namespace counter and returns the new
// version. Every cache key derived from an earlier version becomes
// unreachable from that point on.
func (c *Client) Bump(ctx context.Context, namespace string) (int64, error) {
	n, err := c.rdb.Incr(ctx, namespace).Result()
	if err != nil {
		return 0, fmt.Errorf("bump namespace %s: %w", namespace, err)
	}
	return n, nil
}

// GetJSON loads a cached payload into dest. The second return is false on a
// miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores a payload under key with the given TTL.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
