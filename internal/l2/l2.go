// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l2.go — Redis-backed envelope store: pooled SET with EX/PX expiry, SCAN-based
// key listing and pattern deletes, and the pub/sub helpers used for cross-
// process L1 invalidation.

// Package l2 provides the Redis tier store.
package l2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/envelope/internal/store"
	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 100

// setArgsPool pools the []interface{} slice used to build Redis SET command
// arguments, eliminating the make([]interface{}, 3, 5) allocation inside
// go-redis cmdable.Set on every write.
var setArgsPool = sync.Pool{
	New: func() any {
		s := make([]interface{}, 0, 6) // "set", key, value, "ex"/"px", ttl, (spare)
		return &s
	},
}

// Store is the Redis envelope store. It implements store.Store.
type Store struct {
	client redis.UniversalClient
	hits   atomic.Int64
	misses atomic.Int64
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.TTLGetter = (*Store)(nil)
)

// New creates a new L2 Store around an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Set stores value with the given TTL:
//   - ttl < 1s  → PX (millisecond precision)
//   - ttl >= 1s → EX (second precision)
//   - ttl <= 0  → no expiry
//
// client.Do() is synchronous, so resetting the pooled slice after .Err() is safe.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ap := setArgsPool.Get().(*[]interface{})
	args := (*ap)[:0]
	switch {
	case ttl > 0 && ttl < time.Second:
		args = append(args, "set", key, value, "px", max(ttl.Milliseconds(), 1))
	case ttl > 0:
		args = append(args, "set", key, value, "ex", int64(ttl.Seconds()))
	default:
		args = append(args, "set", key, value)
	}
	err := s.client.Do(ctx, args...).Err()
	for i := range args {
		args[i] = nil
	}
	*ap = args[:0]
	setArgsPool.Put(ap)
	if err != nil {
		return fmt.Errorf("l2 set %s: %w", key, err)
	}
	return nil
}

// Get returns the raw bytes stored under key, or store.ErrMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, store.ErrMiss
		}
		return nil, fmt.Errorf("l2 get %s: %w", key, err)
	}
	s.hits.Add(1)
	return b, nil
}

// GetWithTTL fetches the value and its PTTL in one round trip.
func (s *Store) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	_, _ = pipe.Exec(ctx)

	b, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, 0, store.ErrMiss
		}
		return nil, 0, fmt.Errorf("l2 get %s: %w", key, err)
	}
	ttl, err := pttl.Result()
	if err != nil {
		return nil, 0, fmt.Errorf("l2 pttl %s: %w", key, err)
	}
	s.hits.Add(1)
	// PTTL reports -1 for keys without expiry.
	if ttl < 0 {
		return b, 0, nil
	}
	return b, max(ttl, time.Millisecond), nil
}

// Delete removes a key from Redis.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("l2 delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Keys lists keys matching pattern using SCAN, which never blocks the server
// the way KEYS does.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	err := s.scan(ctx, pattern, func(keys []string) error {
		out = append(out, keys...)
		return nil
	})
	return out, err
}

// DeleteMatch removes all keys matching pattern using SCAN+DEL.
func (s *Store) DeleteMatch(ctx context.Context, pattern string) (int64, error) {
	var total int64
	err := s.scan(ctx, pattern, func(keys []string) error {
		n, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("l2 delete-match: %w", err)
		}
		total += n
		return nil
	})
	return total, err
}

func (s *Store) scan(ctx context.Context, pattern string, fn func(keys []string) error) error {
	var cursor uint64
	seen := make(map[string]struct{})
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("l2 scan: %w", err)
		}
		// SCAN may return a key more than once across iterations.
		fresh := keys[:0]
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		if len(fresh) > 0 {
			if err := fn(fresh); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Publish sends a message to the given channel.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a pub/sub subscription on the given channel.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, channel)
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats holds hit and miss counts.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
