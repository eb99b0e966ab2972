// Package cache provides the two tiers the pipeline dedups against: an
// exact-match key/value store (this file) and a semantic vector store
// (vector.go).
//
// Both clients degrade gracefully: a cache-tier error never turns a
// would-be successful response into a failure. Callers distinguish three
// outcomes — present, absent, error — and treat "error" the same as
// "absent" for read paths while still logging it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const exactQueryTimeout = 2 * time.Second

// ExactResult is the three-valued outcome of an exact-tier Get.
type ExactResult int

const (
	// ResultAbsent means the key was not found — a clean miss.
	ResultAbsent ExactResult = iota
	// ResultPresent means the key was found; Get's []byte return is valid.
	ResultPresent
	// ResultError means the lookup itself failed (e.g. connection down).
	// Callers proceed as if absent but log the distinction.
	ResultError
)

// ExactCache is a Redis-backed client for the exact-match tier.
//
// One shared pooled connection is created at startup (NewExactCache or
// NewExactCacheFromClient) and reused by every request path; go-redis reconnects automatically on
// transport failure, matching the pooling contract in SPEC_FULL.md §4.2.
type ExactCache struct {
	client *redis.Client
}

// NewExactCache parses redisURL, creates a pooled client, and verifies the
// connection with a PING. Returns an error if the URL is invalid or the
// initial ping fails — callers decide whether to abort startup or continue
// degraded.
func NewExactCache(ctx context.Context, redisURL string) (*ExactCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}

	cli := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &ExactCache{client: cli}, nil
}

// NewExactCacheFromClient wraps an already-connected client. The caller owns
// the client's lifecycle.
func NewExactCacheFromClient(cli *redis.Client) *ExactCache {
	return &ExactCache{client: cli}
}

// Get retrieves the value stored under key. The three-valued result lets
// callers distinguish a clean miss (ResultAbsent) from a lookup failure
// (ResultError) — spec.md §4.2 requires this distinction so the pipeline
// can log it without treating a down Redis as a correctness bug.
func (c *ExactCache) Get(ctx context.Context, key string) ([]byte, ExactResult, error) {
	ctx, cancel := context.WithTimeout(ctx, exactQueryTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ResultAbsent, nil
		}
		return nil, ResultError, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, ResultPresent, nil
}

// Set stores value under key with the given TTL. Failures are returned to
// the caller to log — they are never surfaced to the HTTP client (spec.md
// §4.2: "Failure logged, not surfaced").
func (c *ExactCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, exactQueryTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// FlushAll removes every exact-tier entry. The vector tier is untouched —
// spec.md §4.3 documents vector entries as never cleared by flush.
func (c *ExactCache) FlushAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.client.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("cache: flushall: %w", err)
	}
	return nil
}

// Health issues a PING and reports success or failure.
func (c *ExactCache) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (c *ExactCache) Close() error {
	return c.client.Close()
}
