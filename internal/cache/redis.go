// Package cache stores remote comparison text in Redis so repeated
// comparisons of unchanged entities skip the backend.
//
// Keys look like compare:analysis:v1:{sha256}; values expire after the
// configured TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 24 * time.Hour

const analysisPrefix = "compare:analysis:v1:"

// Client wraps redis.Client with the analysis cache operations.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Client for addr, e.g. "localhost:6379".
func New(addr, password string, db int, ttl time.Duration) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, ttl)
}

// NewFromClient wraps an existing redis client.
func NewFromClient(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{rdb: rdb, ttl: ttl}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return eris.Wrap(c.rdb.Ping(ctx).Err(), "cache: ping")
}

// Close closes the Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }

// Key hashes parts into a cache key.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return analysisPrefix + hex.EncodeToString(h[:])
}

// Get returns the cached text for key. A miss is ("", false, nil).
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "cache: get")
	}
	return val, true, nil
}

// Set stores text under key with the client's TTL.
func (c *Client) Set(ctx context.Context, key, text string) error {
	if err := c.rdb.Set(ctx, key, text, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "cache: set")
	}
	return nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return eris.Wrap(err, "cache: delete")
	}
	return nil
}
