package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/paraid/paraid/internal/engine"
)

// ResultCache stores rendered scoring responses in Redis. Keys embed
// the table fingerprint, so a reference reload naturally invalidates
// every stale entry.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache wraps an existing Redis client.
func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Key derives the cache key for a findings record against one table
// state. json.Marshal sorts map keys, so the digest is deterministic.
func (c *ResultCache) Key(fingerprint string, findings engine.FindingsRecord) string {
	payload, err := json.Marshal(findings)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", findings))
	}
	table := sha256.Sum256([]byte(fingerprint))
	digest := sha256.Sum256(payload)
	return fmt.Sprintf("paraid:score:%x:%x", table[:8], digest[:16])
}

// Get returns a cached response body, if present. Cache errors are
// logged and treated as misses.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Result cache read failed")
		return nil, false
	}
	return body, true
}

// Set stores a response body under the key with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, body []byte) {
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Result cache write failed")
	}
}
