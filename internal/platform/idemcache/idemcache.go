// Package idemcache wraps go-redis into the small idempotency cache the
// domain stack calls for: external-service calls (LLM, speech-to-text,
// stock video) are re-issued whenever a stage is re-executed under
// at-least-once delivery, so a stage retried mid-run would otherwise pay
// for (and could receive a different answer from) the same external call
// twice. Once keys a call's result by a caller-chosen idempotency key and
// replays the cached bytes on a repeat within ttl, rather than invoking
// fn again.
package idemcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/reelforge/internal/pkg/logger"
)

// Cache is the idempotency-cache capability. A nil *Cache (returned by
// New when REDIS_ADDR is unset) is valid and simply always calls fn —
// the cache is an optimization, not a correctness requirement, since
// every stage body is idempotent against its own filesystem outputs
// regardless of whether an upstream call is deduped.
type Cache struct {
	log    *logger.Logger
	client *redis.Client
}

// New connects to REDIS_ADDR if set, otherwise returns a nil *Cache that
// every method treats as a pass-through.
func New(log *logger.Logger, addr string) *Cache {
	if addr == "" {
		return nil
	}
	return &Cache{
		log:    log.With("component", "idemcache.Cache"),
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Once returns the bytes previously stored under key if present and
// unexpired; otherwise it calls fn, stores the result under key with
// ttl, and returns it. fn errors are never cached.
func (c *Cache) Once(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if c == nil || c.client == nil {
		return fn()
	}
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("idemcache get failed, falling back to live call", "key", key, "error", err)
	}

	out, err := fn()
	if err != nil {
		return nil, err
	}
	if setErr := c.client.Set(ctx, key, out, ttl).Err(); setErr != nil {
		c.log.Warn("idemcache set failed", "key", key, "error", setErr)
	}
	return out, nil
}

// Key builds a namespaced idempotency key from a stage task id and a
// call-site discriminator, so two different external calls within the
// same stage attempt never collide.
func Key(taskID, discriminator string) string {
	return fmt.Sprintf("reelforge:idemcache:%s:%s", taskID, discriminator)
}

func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
