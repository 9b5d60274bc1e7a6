// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// memoize.go — Memoized: caches the results of a function in a Cache, keyed
// by the function name and a fingerprint of its arguments.

package envelope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// MemoOption configures a Memoized function.
type MemoOption func(*memoOptions)

type memoOptions struct {
	ttl     time.Duration
	keyFunc func(args any) (string, error)
}

// WithTTL sets the expiry of memoized results. Without it the cache's
// DefaultTTL applies; a negative ttl never expires.
func WithTTL(ttl time.Duration) MemoOption {
	return func(o *memoOptions) { o.ttl = ttl }
}

// WithKeyFunc replaces the default argument fingerprint. fn receives the
// call's argument value.
func WithKeyFunc[A any](fn func(args A) string) MemoOption {
	return func(o *memoOptions) {
		o.keyFunc = func(args any) (string, error) { return fn(args.(A)), nil }
	}
}

// MemoStats is the snapshot returned by Memoized.Stats().
type MemoStats struct {
	Hits        int64
	Misses      int64
	AvgHitTime  time.Duration
	AvgMissTime time.Duration
}

// Memoized wraps fn so that results are served from the cache when present.
// Errors returned by fn are passed through and never cached. Concurrent
// misses for the same key share a single call to fn; each waiting caller
// gets its own copy of the result, decoded from one serialized form.
type Memoized[A, R any] struct {
	cache *Cache
	name  string
	fn    func(context.Context, A) (R, error)
	opts  memoOptions
	group singleflight.Group

	mu       sync.Mutex
	hits     int64
	misses   int64
	hitTime  time.Duration
	missTime time.Duration
}

// Memoize returns a memoized version of fn whose results live under
// "<name>:<fingerprint>" in c.
func Memoize[A, R any](c *Cache, name string, fn func(context.Context, A) (R, error), opts ...MemoOption) *Memoized[A, R] {
	m := &Memoized[A, R]{cache: c, name: name, fn: fn}
	for _, o := range opts {
		o(&m.opts)
	}
	return m
}

// Call returns the cached result for args, computing and storing it on a
// miss. In Debug mode fn is always called.
func (m *Memoized[A, R]) Call(ctx context.Context, args A) (R, error) {
	var zero R
	start := time.Now()

	if m.cache.cfg.Debug {
		return m.fn(ctx, args)
	}

	key, err := m.Key(args)
	if err != nil {
		return zero, err
	}

	var cached R
	_, err = m.cache.Get(ctx, key, &cached)
	if err == nil {
		m.record(true, time.Since(start))
		return cached, nil
	}
	if !errors.Is(err, ErrNotFound) {
		m.cache.cfg.Logger.Warn("envelope: memoized lookup failed", "func", m.name, "key", key, "err", err)
	}

	v, err, shared := m.group.Do(key, func() (any, error) {
		res, err := m.fn(ctx, args)
		if err != nil {
			return nil, err
		}
		if err := m.cache.Set(ctx, key, res, m.opts.ttl); err != nil {
			m.cache.cfg.Logger.Warn("envelope: memoized store failed", "func", m.name, "key", key, "err", err)
		}
		out := &memoResult{res: res}
		out.raw, out.err = m.cache.codec.Serializer().Marshal(res)
		return out, nil
	})
	m.record(false, time.Since(start))
	if err != nil {
		return zero, err
	}
	out := v.(*memoResult)
	if !shared {
		r, _ := out.res.(R)
		return r, nil
	}
	return m.copyResult(key, out), nil
}

// memoResult is what a singleflight leader hands to every waiting caller.
type memoResult struct {
	res any
	raw []byte
	err error
}

// copyResult decodes a private copy of a shared result so callers never
// alias each other's maps, slices or pointers. When the result cannot be
// round-tripped through the serializer the shared value is returned.
func (m *Memoized[A, R]) copyResult(key string, out *memoResult) R {
	err := out.err
	if err == nil {
		var r R
		if err = m.cache.codec.Serializer().Unmarshal(out.raw, &r); err == nil {
			return r
		}
	}
	m.cache.cfg.Logger.Debug("envelope: memoized result shared without copy", "func", m.name, "key", key, "err", err)
	r, _ := out.res.(R)
	return r
}

// Key returns the cache key (without namespace) for args.
func (m *Memoized[A, R]) Key(args A) (string, error) {
	if m.opts.keyFunc != nil {
		fp, err := m.opts.keyFunc(args)
		if err != nil {
			return "", err
		}
		return m.name + ":" + fp, nil
	}
	fp, err := fingerprint(args)
	if err != nil {
		return "", err
	}
	return m.name + ":" + fp, nil
}

// Bust drops the cached result for args.
func (m *Memoized[A, R]) Bust(ctx context.Context, args A) (bool, error) {
	key, err := m.Key(args)
	if err != nil {
		return false, err
	}
	return m.cache.Delete(ctx, key)
}

// BustAll drops every cached result of this function.
func (m *Memoized[A, R]) BustAll(ctx context.Context) (int64, error) {
	return m.cache.DeleteAll(ctx, m.name+":*")
}

// Keys lists the cache keys currently holding results of this function.
func (m *Memoized[A, R]) Keys(ctx context.Context) ([]string, error) {
	return m.cache.Keys(ctx, m.name+":*")
}

// Stats returns hit and miss counts with their mean latencies.
func (m *Memoized[A, R]) Stats() MemoStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MemoStats{Hits: m.hits, Misses: m.misses}
	if m.hits > 0 {
		s.AvgHitTime = m.hitTime / time.Duration(m.hits)
	}
	if m.misses > 0 {
		s.AvgMissTime = m.missTime / time.Duration(m.misses)
	}
	return s
}

func (m *Memoized[A, R]) record(hit bool, d time.Duration) {
	m.mu.Lock()
	if hit {
		m.hits++
		m.hitTime += d
	} else {
		m.misses++
		m.missTime += d
	}
	m.mu.Unlock()
	m.cache.cfg.Metrics.RecordLatency(m.cache.cfg.Namespace, "memo:"+m.name, d)
}

// fingerprint hashes the MessagePack encoding of args with sorted map keys.
func fingerprint(args any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", fmt.Errorf("%w: fingerprint: %w", ErrSerializationFailed, err)
	}
	return strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16), nil
}
