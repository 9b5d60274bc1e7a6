// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// router.go — tiered store: reads fall through L1 → L2 → L3 → disk and back-
// fill the faster tiers on a hit; writes and deletes go through every tier.

package envelope

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AndrewDonelson/envelope/internal/metrics"
	"github.com/AndrewDonelson/envelope/internal/store"
)

// Store is the byte store interface every tier implements. Pass a custom one
// to NewCache to put envelopes somewhere else entirely.
type Store = store.Store

// ErrMiss is returned by a Store when a key is absent.
var ErrMiss = store.ErrMiss

type tier struct {
	name string
	st   store.Store
}

// tieredStore routes operations across tiers ordered fastest first.
type tieredStore struct {
	tiers []tier
	// backfillTTL is used when a hit in a slower tier is copied upward and
	// that tier cannot report the entry's remaining TTL.
	backfillTTL time.Duration
	metrics     metrics.MetricsRecorder
	logger      Logger
	// notify, when set, is told about every successful write or delete so
	// other processes can drop their L1 copy.
	notify func(ctx context.Context, op, key string)
}

var _ store.Store = (*tieredStore)(nil)

// ────────────────────────────────────────────────────────────────────────────
// Read path
// ────────────────────────────────────────────────────────────────────────────

// Get walks the tiers in order and back-fills every faster tier on a hit,
// carrying over the entry's remaining TTL. A failing tier degrades to a miss;
// the error is only returned when no tier could give a definite answer.
func (ts *tieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	var firstErr error
	missed := false
	for i, t := range ts.tiers {
		b, ttl, err := ts.get(ctx, i, key)
		if err == nil {
			ts.metrics.RecordHit(t.name)
			ts.backfill(ctx, i, key, b, ttl)
			return b, nil
		}
		if errors.Is(err, store.ErrMiss) {
			ts.metrics.RecordMiss(t.name)
			missed = true
			continue
		}
		ts.metrics.RecordError(t.name, "get")
		ts.logger.Warn("envelope: tier get failed", "tier", t.name, "key", key, "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil && !missed {
		return nil, firstErr
	}
	return nil, store.ErrMiss
}

// get reads key from tier i. The TTL is only looked up when a faster tier
// will need it for the backfill.
func (ts *tieredStore) get(ctx context.Context, i int, key string) ([]byte, time.Duration, error) {
	st := ts.tiers[i].st
	if i == 0 {
		b, err := st.Get(ctx, key)
		return b, 0, err
	}
	if tg, ok := st.(store.TTLGetter); ok {
		return tg.GetWithTTL(ctx, key)
	}
	b, err := st.Get(ctx, key)
	return b, ts.backfillTTL, err
}

func (ts *tieredStore) backfill(ctx context.Context, hit int, key string, b []byte, ttl time.Duration) {
	for j := 0; j < hit; j++ {
		t := ts.tiers[j]
		if err := t.st.Set(ctx, key, b, ttl); err != nil {
			ts.metrics.RecordError(t.name, "backfill")
			ts.logger.Warn("envelope: tier backfill failed", "tier", t.name, "key", key, "err", err)
		}
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Write path
// ────────────────────────────────────────────────────────────────────────────

// Set writes through every tier, slowest first, so a failure never leaves a
// faster tier holding a value the durable tiers lack.
func (ts *tieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	for i := len(ts.tiers) - 1; i >= 0; i-- {
		t := ts.tiers[i]
		if err := t.st.Set(ctx, key, value, ttl); err != nil {
			ts.metrics.RecordError(t.name, "set")
			return fmt.Errorf("envelope: %s set: %w", t.name, err)
		}
	}
	ts.publish(ctx, "set", key)
	return nil
}

// Delete removes key from every tier and reports whether any held it.
func (ts *tieredStore) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	var errs []error
	for _, t := range ts.tiers {
		ok, err := t.st.Delete(ctx, key)
		if err != nil {
			ts.metrics.RecordError(t.name, "delete")
			errs = append(errs, fmt.Errorf("envelope: %s delete: %w", t.name, err))
			continue
		}
		existed = existed || ok
	}
	ts.publish(ctx, "delete", key)
	return existed, errors.Join(errs...)
}

// DeleteMatch removes matching keys from every tier. The count is the largest
// count reported by any single tier, since tiers mostly hold the same keys.
func (ts *tieredStore) DeleteMatch(ctx context.Context, pattern string) (int64, error) {
	var most int64
	var errs []error
	for _, t := range ts.tiers {
		n, err := t.st.DeleteMatch(ctx, pattern)
		if err != nil {
			ts.metrics.RecordError(t.name, "delete_match")
			errs = append(errs, fmt.Errorf("envelope: %s delete-match: %w", t.name, err))
			continue
		}
		if n > most {
			most = n
		}
	}
	ts.publish(ctx, "delete_match", pattern)
	return most, errors.Join(errs...)
}

// Keys returns the sorted union of matching keys across tiers.
func (ts *tieredStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, t := range ts.tiers {
		keys, err := t.st.Keys(ctx, pattern)
		if err != nil {
			ts.metrics.RecordError(t.name, "keys")
			return nil, fmt.Errorf("envelope: %s keys: %w", t.name, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Close closes every tier and returns the joined errors.
func (ts *tieredStore) Close() error {
	var errs []error
	for _, t := range ts.tiers {
		if err := t.st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("envelope: %s close: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}

func (ts *tieredStore) publish(ctx context.Context, op, key string) {
	if ts.notify != nil {
		ts.notify(ctx, op, key)
	}
}

// purger is implemented by tiers that hold expired entries until they are
// read or swept.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeExpired sweeps every tier that supports it.
func (ts *tieredStore) PurgeExpired(ctx context.Context) (int64, error) {
	var total int64
	var errs []error
	for _, t := range ts.tiers {
		p, ok := t.st.(purger)
		if !ok {
			continue
		}
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			ts.metrics.RecordError(t.name, "purge")
			errs = append(errs, fmt.Errorf("envelope: %s purge: %w", t.name, err))
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

func purgeExpired(ctx context.Context, st store.Store) (int64, error) {
	if p, ok := st.(purger); ok {
		return p.PurgeExpired(ctx)
	}
	return 0, nil
}
