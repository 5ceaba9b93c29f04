package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = time.Hour

// BatchDedup provides Idempotency-Key checks for batch submissions.
// Key format: dedup:batch:<idempotency_key>
type BatchDedup struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewBatchDedup creates a BatchDedup wrapping the given Redis client.
func NewBatchDedup(client redis.Cmdable) *BatchDedup {
	return &BatchDedup{client: client, ttl: dedupTTL}
}

// Claim records key and reports whether this caller is the first to use it
// within the TTL. A false result means the batch was already accepted.
func (d *BatchDedup) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(key), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release forgets key so that a batch which failed to enqueue can be retried.
func (d *BatchDedup) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.key(key)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

func (d *BatchDedup) key(k string) string {
	return "dedup:batch:" + k
}
