// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// cache.go — Cache: the namespaced key-value cache that stores values as
// envelopes in the tiered store, plus Open which wires the tiers from Config.

package envelope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/envelope/internal/clock"
	"github.com/AndrewDonelson/envelope/internal/codec"
	"github.com/AndrewDonelson/envelope/internal/compress"
	"github.com/AndrewDonelson/envelope/internal/disk"
	"github.com/AndrewDonelson/envelope/internal/l1"
	"github.com/AndrewDonelson/envelope/internal/l2"
	"github.com/AndrewDonelson/envelope/internal/l3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	migrateTimeout = 30 * time.Second
	pingTimeout    = 5 * time.Second
)

// ────────────────────────────────────────────────────────────────────────────
// Stats
// ────────────────────────────────────────────────────────────────────────────

type cacheStats struct {
	Hits    atomic.Int64
	Misses  atomic.Int64
	Writes  atomic.Int64
	Deletes atomic.Int64
	Errors  atomic.Int64
}

// Stats is the snapshot returned by Cache.Stats().
type Stats struct {
	Hits      int64
	Misses    int64
	Writes    int64
	Deletes   int64
	Errors    int64
	L1Entries int64
}

// Meta describes a stored envelope without its payload.
type Meta struct {
	Version   Version
	Timestamp float64
	// Time is Timestamp as a time.Time; zero when Timestamp is 0.
	Time time.Time
	// Size is the length of the stored envelope in bytes.
	Size int
}

// ────────────────────────────────────────────────────────────────────────────
// Cache
// ────────────────────────────────────────────────────────────────────────────

// Cache stores values as envelopes under "<namespace>:<key>".
type Cache struct {
	cfg       Config
	store     Store
	codec     *Codec
	encryptor Encryptor
	mem       *l1.Store
	inv       *invalidator
	stats     cacheStats
	closed    atomic.Bool
}

// Open builds the tiers named by cfg and returns a Cache over them. A tier is
// enabled when its address, DSN or directory is set; memory is enabled unless
// Memory.Disabled. When both memory and Redis are present, writes from other
// processes evict local memory entries.
func Open(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	ts := &tieredStore{
		backfillTTL: cfg.DefaultTTL,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	fail := func(err error) (*Cache, error) {
		_ = ts.Close()
		return nil, err
	}

	// L1
	var mem *l1.Store
	if !cfg.Memory.Disabled {
		policy, _ := evictionPolicy(cfg.Memory.Eviction)
		mem = l1.New(l1.Options{
			MaxEntries:    cfg.Memory.MaxEntries,
			Eviction:      policy,
			SweepInterval: cfg.Memory.SweepInterval,
			Clock:         cfg.Clock,
		})
		ts.tiers = append(ts.tiers, tier{name: "l1", st: mem})
	}

	// L2
	var red *l2.Store
	if cfg.Redis.Addr != "" {
		red = l2.New(redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}))
		ts.tiers = append(ts.tiers, tier{name: "l2", st: red})

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := red.Ping(ctx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("envelope: redis %s: %w", cfg.Redis.Addr, err))
		}
	}

	// L3
	if cfg.Postgres.DSN != "" {
		pool, err := newPGPool(cfg.Postgres, cfg.Postgres.DSN)
		if err != nil {
			return fail(err)
		}
		var replica *pgxpool.Pool
		if cfg.Postgres.ReplicaDSN != "" {
			if replica, err = newPGPool(cfg.Postgres, cfg.Postgres.ReplicaDSN); err != nil {
				pool.Close()
				return fail(err)
			}
		}
		pg := l3.New(l3.Options{
			Pool:    pool,
			Replica: replica,
			Table:   cfg.Postgres.Table,
			Clock:   cfg.Clock,
		})
		ts.tiers = append(ts.tiers, tier{name: "l3", st: pg})

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err = pg.Ping(ctx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("envelope: postgres: %w", err))
		}

		ctx, cancel = context.WithTimeout(context.Background(), migrateTimeout)
		err = pg.Migrate(ctx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("envelope: postgres migrate: %w", err))
		}
	}

	// Disk
	if cfg.Disk.Dir != "" {
		d, err := disk.Open(disk.Options{Dir: cfg.Disk.Dir, Clock: cfg.Clock, Sync: cfg.Disk.Sync})
		if err != nil {
			return fail(fmt.Errorf("envelope: %w", err))
		}
		ts.tiers = append(ts.tiers, tier{name: "disk", st: d})
	}

	if len(ts.tiers) == 0 {
		return nil, ErrNoStore
	}

	c, err := newCache(ts, cfg)
	if err != nil {
		return fail(err)
	}
	c.mem = mem

	if mem != nil && red != nil {
		c.inv = newInvalidator(cfg.InvalidationChannel, mem, red, cfg.Logger)
		ts.notify = c.inv.publish
		c.inv.start()
	}

	cfg.Logger.Info("envelope: cache opened", "namespace", cfg.Namespace, "tiers", len(ts.tiers))
	return c, nil
}

// newPGPool builds a pgx pool for dsn with the pool limits from pc.
func newPGPool(pc PostgresConfig, dsn string) (*pgxpool.Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("envelope: postgres config: %w", err)
	}
	pgCfg.MaxConns = pc.MaxConns
	pgCfg.MinConns = pc.MinConns
	pgCfg.MaxConnLifetime = pc.MaxConnLifetime
	pgCfg.MaxConnIdleTime = pc.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
	if err != nil {
		return nil, fmt.Errorf("envelope: postgres pool: %w", err)
	}
	return pool, nil
}

// NewCache returns a Cache over an existing store. The tier fields of cfg
// are ignored.
func NewCache(st Store, cfg Config) (*Cache, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	return newCache(st, cfg)
}

func newCache(st Store, cfg Config) (*Cache, error) {
	c := &Cache{
		cfg:   cfg,
		store: st,
		codec: NewCodec(Options{
			Serializer: codec.ByName(cfg.Serializer),
			Compressor: compress.ByName(cfg.Compressor),
			IsLegacy:   cfg.IsLegacy,
			Legacy:     cfg.LegacyDeserializer,
		}),
	}
	if cfg.EncryptionKey != "" {
		key, err := cfg.encryptionKey()
		if err != nil {
			return nil, err
		}
		enc, err := NewAES256GCM(key)
		if err != nil {
			return nil, fmt.Errorf("envelope: encryption init: %w", err)
		}
		c.encryptor = enc
	}
	return c, nil
}

// Name returns the namespace.
func (c *Cache) Name() string { return c.cfg.Namespace }

// Codec returns the envelope codec, e.g. to register a legacy deserializer.
func (c *Cache) Codec() *Codec { return c.codec }

// MakeKey returns the namespaced store key for key.
func (c *Cache) MakeKey(key string) string {
	return c.cfg.Namespace + ":" + key
}

// UnmakeKey strips the namespace prefix from a store key.
func (c *Cache) UnmakeKey(key string) string {
	return strings.TrimPrefix(key, c.cfg.Namespace+":")
}

// ────────────────────────────────────────────────────────────────────────────
// Reads
// ────────────────────────────────────────────────────────────────────────────

// Get decodes the value stored under key into dest. It returns ErrNotFound on
// a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (Meta, error) {
	if c.closed.Load() {
		return Meta{}, ErrClosed
	}
	start := time.Now()
	raw, err := c.fetch(ctx, key)
	if err != nil {
		c.cfg.Metrics.RecordLatency(c.cfg.Namespace, "get", time.Since(start))
		return Meta{}, err
	}
	d, err := c.codec.Deserialize(raw, c.cfg.Compress, dest)
	c.cfg.Metrics.RecordLatency(c.cfg.Namespace, "get", time.Since(start))
	if err != nil {
		c.recordError("get")
		c.cfg.Logger.Warn("envelope: undecodable entry", "key", key, "err", err)
		return Meta{}, err
	}
	return meta(d.Version, d.Timestamp, len(raw)), nil
}

// GetTyped is a generic convenience wrapper around Get.
func GetTyped[T any](ctx context.Context, c *Cache, key string) (*Value[T], error) {
	var dest T
	m, err := c.Get(ctx, key, &dest)
	if err != nil {
		return nil, err
	}
	return &Value[T]{Value: dest, Version: m.Version, Timestamp: m.Timestamp}, nil
}

// Inspect reads only the header of the envelope stored under key.
func (c *Cache) Inspect(ctx context.Context, key string) (Meta, error) {
	if c.closed.Load() {
		return Meta{}, ErrClosed
	}
	raw, err := c.fetch(ctx, key)
	if err != nil {
		return Meta{}, err
	}
	ts, v, err := c.codec.ParseVersion(raw)
	if err != nil {
		return Meta{}, err
	}
	return meta(v, ts, len(raw)), nil
}

// Raw returns the envelope bytes stored under key, decrypted if the cache
// seals its entries.
func (c *Cache) Raw(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.fetch(ctx, key)
}

func (c *Cache) fetch(ctx context.Context, key string) ([]byte, error) {
	if c.cfg.Debug {
		c.recordMiss()
		return nil, ErrNotFound
	}
	raw, err := c.store.Get(ctx, c.MakeKey(key))
	if errors.Is(err, ErrMiss) {
		c.recordMiss()
		return nil, ErrNotFound
	}
	if err != nil {
		c.recordError("get")
		return nil, err
	}
	if c.encryptor != nil {
		raw, err = c.encryptor.Decrypt(raw)
		if err != nil {
			c.recordError("decrypt")
			return nil, fmt.Errorf("envelope: decrypt %s: %w", key, err)
		}
	}
	c.stats.Hits.Add(1)
	c.cfg.Metrics.RecordHit(c.cfg.Namespace)
	return raw, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Writes
// ────────────────────────────────────────────────────────────────────────────

// Set stores v under key as an envelope stamped with the current time.
// ttl 0 uses Config.DefaultTTL; a negative ttl never expires.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.cfg.Debug {
		return nil
	}
	switch {
	case ttl == 0:
		ttl = c.cfg.DefaultTTL
	case ttl < 0:
		ttl = 0
	}
	start := time.Now()
	data, err := c.codec.Serialize(clock.UnixSeconds(c.cfg.Clock.Now()), v, c.cfg.Compress)
	if err != nil {
		c.recordError("set")
		return err
	}
	if c.encryptor != nil {
		data, err = c.encryptor.Encrypt(data)
		if err != nil {
			c.recordError("encrypt")
			return fmt.Errorf("envelope: encrypt %s: %w", key, err)
		}
	}
	err = c.store.Set(ctx, c.MakeKey(key), data, ttl)
	c.cfg.Metrics.RecordLatency(c.cfg.Namespace, "set", time.Since(start))
	if err != nil {
		c.recordError("set")
		return err
	}
	c.stats.Writes.Add(1)
	c.cfg.Metrics.RecordWrite(c.cfg.Namespace)
	return nil
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	ok, err := c.store.Delete(ctx, c.MakeKey(key))
	if err != nil {
		c.recordError("delete")
	}
	if ok {
		c.stats.Deletes.Add(1)
	}
	return ok, err
}

// DeleteAll removes every key in the namespace matching pattern ("*" when
// empty) and returns how many were removed.
func (c *Cache) DeleteAll(ctx context.Context, pattern string) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if pattern == "" {
		pattern = "*"
	}
	n, err := c.store.DeleteMatch(ctx, c.MakeKey(pattern))
	if err != nil {
		c.recordError("delete_match")
	}
	c.stats.Deletes.Add(n)
	return n, err
}

// Keys lists the keys in the namespace matching pattern ("*" when empty),
// without the namespace prefix.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if pattern == "" {
		pattern = "*"
	}
	keys, err := c.store.Keys(ctx, c.MakeKey(pattern))
	if err != nil {
		c.recordError("keys")
		return nil, err
	}
	for i, k := range keys {
		keys[i] = c.UnmakeKey(k)
	}
	return keys, nil
}

// PurgeExpired drops expired entries from tiers that keep them on disk
// until read. It returns the number of entries removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return purgeExpired(ctx, c.store)
}

// ────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────────────────────

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	s := Stats{
		Hits:    c.stats.Hits.Load(),
		Misses:  c.stats.Misses.Load(),
		Writes:  c.stats.Writes.Load(),
		Deletes: c.stats.Deletes.Load(),
		Errors:  c.stats.Errors.Load(),
	}
	if c.mem != nil {
		s.L1Entries = c.mem.Stats().Entries
	}
	return s
}

// Close stops invalidation and closes every tier. Later calls return
// ErrClosed.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return ErrClosed
	}
	if c.inv != nil {
		c.inv.stop()
	}
	return c.store.Close()
}

func (c *Cache) recordMiss() {
	c.stats.Misses.Add(1)
	c.cfg.Metrics.RecordMiss(c.cfg.Namespace)
}

func (c *Cache) recordError(op string) {
	c.stats.Errors.Add(1)
	c.cfg.Metrics.RecordError(c.cfg.Namespace, op)
}

func meta(v Version, ts float64, size int) Meta {
	m := Meta{Version: v, Timestamp: ts, Size: size}
	if ts != 0 {
		m.Time = clock.FromUnixSeconds(ts)
	}
	return m
}
