// Package store defines the opaque byte store that envelopes are written to,
// plus the Redis-style key pattern matching shared by the non-Redis backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
// Callers use errors.Is(err, store.ErrMiss) to tell a miss from a failure.
var ErrMiss = errors.New("store: miss")

// Store is a key-value store of opaque bytes with optional expiry.
// A ttl <= 0 means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// DeleteMatch removes every key matching pattern and returns the count.
	DeleteMatch(ctx context.Context, pattern string) (int64, error)
	// Keys returns the keys matching pattern in no particular order.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// TTLGetter is implemented by stores that can report how long an entry has
// left to live. ttl is 0 for entries that never expire.
type TTLGetter interface {
	GetWithTTL(ctx context.Context, key string) (value []byte, ttl time.Duration, err error)
}

// Remaining converts an absolute expiry into a TTL for GetWithTTL. A zero
// expiresAt means no expiry; an entry that is live but due now gets 1ms.
func Remaining(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	return max(expiresAt.Sub(now), time.Millisecond)
}
