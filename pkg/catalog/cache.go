package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedReader wraps a Reader with a Redis read-through cache. Cache
// failures degrade to direct store reads; they never fail the request.
type CachedReader struct {
	inner Reader
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// WithCache builds a CachedReader against the given Redis address.
func WithCache(inner Reader, addr string, ttl time.Duration, log zerolog.Logger) *CachedReader {
	return &CachedReader{
		inner: inner,
		rdb:   redis.NewClient(&redis.Options{Addr: addr}),
		ttl:   ttl,
		log:   log,
	}
}

const cachePrefix = "catalog:"

// Get serves from the cache when possible, filling it on a miss. Missing
// documents are not cached.
func (c *CachedReader) Get(ctx context.Context, key string) (json.RawMessage, error) {
	cached, err := c.rdb.Get(ctx, cachePrefix+key).Bytes()
	if err == nil {
		return json.RawMessage(cached), nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	}

	doc, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if setErr := c.rdb.Set(ctx, cachePrefix+key, []byte(doc), c.ttl).Err(); setErr != nil {
		c.log.Warn().Err(setErr).Str("key", key).Msg("catalog cache write failed")
	}
	return doc, nil
}

// Close releases the Redis connection.
func (c *CachedReader) Close() error { return c.rdb.Close() }
