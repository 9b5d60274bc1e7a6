// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l3.go — PostgreSQL envelope tier: a single key/value/expiry table with
// upsert writes, expiry-aware reads, prefix-bounded pattern scans, and an
// optional read replica pool.

// Package l3 provides the PostgreSQL persistence tier store.
package l3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AndrewDonelson/envelope/internal/clock"
	"github.com/AndrewDonelson/envelope/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table used when Options.Table is empty.
const DefaultTable = "envelope_cache"

// Options configures a Store.
type Options struct {
	Pool *pgxpool.Pool
	// Replica, when set, serves Get and Keys.
	Replica *pgxpool.Pool
	Table   string
	// Clock decides expiry; rows are compared against Clock.Now, not the
	// database's now().
	Clock clock.Clock
}

// Store is the L3 PostgreSQL store. It implements store.Store.
type Store struct {
	pool    *pgxpool.Pool
	replica *pgxpool.Pool
	table   string
	clock   clock.Clock
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.TTLGetter = (*Store)(nil)
)

// New creates a new L3 Store from existing pools.
func New(opts Options) *Store {
	table := opts.Table
	if table == "" {
		table = DefaultTable
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Store{
		pool:    opts.Pool,
		replica: opts.Replica,
		table:   pgx.Identifier{table}.Sanitize(),
		clock:   opts.Clock,
	}
}

// readPool returns the read replica if available, otherwise the primary.
func (s *Store) readPool() *pgxpool.Pool {
	if s.replica != nil {
		return s.replica
	}
	return s.pool
}

// Migrate creates the backing table and its expiry index if missing.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ
		)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("l3 migrate %s: %w", s.table, err)
	}
	index := pgx.Identifier{strings.Trim(s.table, `"`) + "_expires_at_idx"}.Sanitize()
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (expires_at) WHERE expires_at IS NOT NULL", index, s.table)
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("l3 migrate %s index: %w", s.table, err)
	}
	return nil
}

// Ping verifies the primary pool, and the replica when present, are
// reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("l3 ping primary: %w", err)
	}
	if s.replica != nil {
		if err := s.replica.Ping(ctx); err != nil {
			return fmt.Errorf("l3 ping replica: %w", err)
		}
	}
	return nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := s.clock.Now().Add(ttl)
		expiresAt = &t
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at",
		s.table,
	)
	if _, err := s.pool.Exec(ctx, sql, key, value, expiresAt); err != nil {
		return fmt.Errorf("l3 set %s: %w", key, err)
	}
	return nil
}

// Get returns the bytes stored under key, or store.ErrMiss when the row is
// absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, _, err := s.GetWithTTL(ctx, key)
	return b, err
}

// GetWithTTL is Get plus the row's remaining lifetime.
func (s *Store) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	sql := fmt.Sprintf(
		"SELECT value, expires_at FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)",
		s.table,
	)
	now := s.clock.Now()
	var value []byte
	var expiresAt *time.Time
	err := s.readPool().QueryRow(ctx, sql, key, now).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, store.ErrMiss
		}
		return nil, 0, fmt.Errorf("l3 get %s: %w", key, err)
	}
	if expiresAt == nil {
		return value, 0, nil
	}
	return value, store.Remaining(*expiresAt, now), nil
}

// Delete removes the row for key, expired or not, and reports whether a live
// row was removed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE key = $1 RETURNING expires_at", s.table)
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, sql, key).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("l3 delete %s: %w", key, err)
	}
	return expiresAt == nil || expiresAt.After(s.clock.Now()), nil
}

// Keys returns the live keys matching pattern. The literal prefix of the
// pattern narrows the scan with LIKE; the full glob is applied in Go.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	sql := fmt.Sprintf(
		"SELECT key FROM %s WHERE key LIKE $1 ESCAPE '\\' AND (expires_at IS NULL OR expires_at > $2)",
		s.table,
	)
	rows, err := s.readPool().Query(ctx, sql, likePrefix(store.LiteralPrefix(pattern)), s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("l3 keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("l3 keys: %w", err)
	}
	out := keys[:0]
	for _, k := range keys {
		if store.Match(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// DeleteMatch removes all live rows whose key matches pattern.
func (s *Store) DeleteMatch(ctx context.Context, pattern string) (int64, error) {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE key = ANY($1)", s.table)
	tag, err := s.pool.Exec(ctx, sql, keys)
	if err != nil {
		return 0, fmt.Errorf("l3 delete-match: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1", s.table)
	tag, err := s.pool.Exec(ctx, sql, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("l3 purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pools.
func (s *Store) Close() error {
	if s.replica != nil {
		s.replica.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// likePrefix escapes LIKE meta characters in prefix and appends %.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
