// Package disk provides a pebble-backed envelope store that survives process
// restarts without any external service.
//
// Each value is stored as an 8-byte big-endian expiry (Unix nanoseconds, 0 for
// none) followed by the envelope bytes. Expired entries are dropped lazily on
// access and by PurgeExpired.
package disk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/AndrewDonelson/envelope/internal/clock"
	"github.com/AndrewDonelson/envelope/internal/store"
	"github.com/cockroachdb/pebble"
)

const expirySize = 8

// Options configures a Store.
type Options struct {
	// Dir is the pebble data directory.
	Dir   string
	Clock clock.Clock
	// Sync forces an fsync on every write.
	Sync bool
}

// Store is the pebble store. It implements store.Store.
type Store struct {
	db        *pebble.DB
	clock     clock.Clock
	writeOpts *pebble.WriteOptions
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.TTLGetter = (*Store)(nil)
)

// Open opens (creating if needed) a pebble database in opts.Dir.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("disk: directory is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	db, err := pebble.Open(opts.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("disk open %s: %w", opts.Dir, err)
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	return &Store{db: db, clock: opts.Clock, writeOpts: wo}, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, expirySize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(s.clock.Now().Add(ttl).UnixNano()))
	}
	copy(buf[expirySize:], value)
	if err := s.db.Set([]byte(key), buf, s.writeOpts); err != nil {
		return fmt.Errorf("disk set %s: %w", key, err)
	}
	return nil
}

// Get returns the bytes stored under key, or store.ErrMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, _, err := s.GetWithTTL(ctx, key)
	return b, err
}

// GetWithTTL is Get plus the entry's remaining lifetime.
func (s *Store) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, 0, store.ErrMiss
		}
		return nil, 0, fmt.Errorf("disk get %s: %w", key, err)
	}
	defer closer.Close()
	if len(raw) < expirySize {
		return nil, 0, fmt.Errorf("disk get %s: corrupt entry (%d bytes)", key, len(raw))
	}
	now := s.clock.Now()
	if s.expired(raw, now) {
		_ = s.db.Delete([]byte(key), s.writeOpts)
		return nil, 0, store.ErrMiss
	}
	var expiresAt time.Time
	if exp := binary.BigEndian.Uint64(raw[:expirySize]); exp != 0 {
		expiresAt = time.Unix(0, int64(exp))
	}
	// raw is only valid until closer.Close.
	return append([]byte(nil), raw[expirySize:]...), store.Remaining(expiresAt, now), nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	existed := err == nil
	if err != nil && !errors.Is(err, store.ErrMiss) {
		return false, err
	}
	if err := s.db.Delete([]byte(key), s.writeOpts); err != nil {
		return false, fmt.Errorf("disk delete %s: %w", key, err)
	}
	return existed, nil
}

// Keys returns the live keys matching pattern.
func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.scan(pattern, func(k string, live bool) error {
		if live {
			keys = append(keys, k)
		}
		return nil
	})
	return keys, err
}

// DeleteMatch removes all keys matching pattern in one batch and returns the
// number of live entries removed.
func (s *Store) DeleteMatch(_ context.Context, pattern string) (int64, error) {
	batch := s.db.NewBatch()
	defer batch.Close()
	var n int64
	err := s.scan(pattern, func(k string, live bool) error {
		if live {
			n++
		}
		return batch.Delete([]byte(k), nil)
	})
	if err != nil {
		return 0, err
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return 0, fmt.Errorf("disk delete-match: %w", err)
	}
	return n, nil
}

// PurgeExpired removes every expired entry.
func (s *Store) PurgeExpired(_ context.Context) (int64, error) {
	batch := s.db.NewBatch()
	defer batch.Close()
	var n int64
	err := s.scan("*", func(k string, live bool) error {
		if live {
			return nil
		}
		n++
		return batch.Delete([]byte(k), nil)
	})
	if err != nil {
		return 0, err
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return 0, fmt.Errorf("disk purge: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) scan(pattern string, fn func(key string, live bool) error) error {
	iterOpts := &pebble.IterOptions{}
	if prefix := store.LiteralPrefix(pattern); prefix != "" {
		iterOpts.LowerBound = []byte(prefix)
		iterOpts.UpperBound = upperBound([]byte(prefix))
	}
	iter, err := s.db.NewIter(iterOpts)
	if err != nil {
		return fmt.Errorf("disk scan: %w", err)
	}
	now := s.clock.Now()
	for iter.First(); iter.Valid(); iter.Next() {
		k := string(iter.Key())
		if !store.Match(pattern, k) {
			continue
		}
		live := len(iter.Value()) >= expirySize && !s.expired(iter.Value(), now)
		if err := fn(k, live); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("disk scan: %w", err)
	}
	return nil
}

func (s *Store) expired(raw []byte, now time.Time) bool {
	exp := binary.BigEndian.Uint64(raw[:expirySize])
	return exp != 0 && now.UnixNano() >= int64(exp)
}

// upperBound returns the smallest key greater than every key with prefix,
// or nil when no such key exists.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
