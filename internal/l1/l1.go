// Package l1 provides a sharded, concurrent in-memory envelope store with TTL
// and eviction. It is the fastest tier and is private to one process.
package l1

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/envelope/internal/clock"
	"github.com/AndrewDonelson/envelope/internal/store"
)

const numShards = 256

// EvictionPolicy determines which entry is removed when MaxEntries is reached.
type EvictionPolicy int

const (
	LRU  EvictionPolicy = iota // Least Recently Used
	LFU                        // Least Frequently Used
	FIFO                       // First In, First Out
)

// Options configures an L1 Store.
type Options struct {
	// MaxEntries bounds each shard; zero means unbounded.
	MaxEntries    int
	Eviction      EvictionPolicy
	SweepInterval time.Duration
	Clock         clock.Clock
	OnEvict       func(key string, value []byte)
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	freq      int
	elem      *list.Element
}

type shard struct {
	mu         sync.RWMutex
	items      map[string]*entry
	evictList  *list.List
	maxEntries int
	policy     EvictionPolicy
	onEvict    func(key string, value []byte)
}

// Store is the sharded in-memory store. It implements store.Store.
type Store struct {
	shards    [numShards]*shard
	opts      Options
	clock     clock.Clock
	hits      atomic.Int64
	misses    atomic.Int64
	stopCh    chan struct{}
	closeOnce sync.Once
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.TTLGetter = (*Store)(nil)
)

// New creates a new L1 Store and starts its expiry sweeper.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 30 * time.Second
	}
	s := &Store{opts: opts, clock: opts.Clock, stopCh: make(chan struct{})}
	for i := 0; i < numShards; i++ {
		s.shards[i] = &shard{
			items:      make(map[string]*entry),
			evictList:  list.New(),
			maxEntries: opts.MaxEntries,
			policy:     opts.Eviction,
			onEvict:    opts.OnEvict,
		}
	}
	go s.sweepLoop()
	return s
}

func (s *Store) getShard(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%numShards]
}

// Set stores a copy of value under key. ttl <= 0 never expires.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := append([]byte(nil), value...)
	sh := s.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.clock.Now().Add(ttl)
	}

	if e, ok := sh.items[key]; ok {
		e.value = v
		e.expiresAt = expiresAt
		e.freq++
		if sh.policy != LFU {
			sh.evictList.MoveToFront(e.elem)
		}
		return nil
	}

	if sh.maxEntries > 0 && len(sh.items) >= sh.maxEntries {
		sh.evict()
	}

	e := &entry{key: key, value: v, expiresAt: expiresAt, freq: 1}
	switch sh.policy {
	case LRU, FIFO:
		e.elem = sh.evictList.PushFront(e)
	case LFU:
		e.elem = sh.evictList.PushBack(e)
	}
	sh.items[key] = e
	return nil
}

// Get returns a copy of the bytes stored under key, or store.ErrMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, _, err := s.GetWithTTL(ctx, key)
	return b, err
}

// GetWithTTL is Get plus the entry's remaining lifetime.
func (s *Store) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, error) {
	sh := s.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[key]
	if !ok {
		s.misses.Add(1)
		return nil, 0, store.ErrMiss
	}
	now := s.clock.Now()
	if s.expired(e, now) {
		sh.removeEntry(e)
		s.misses.Add(1)
		return nil, 0, store.ErrMiss
	}
	e.freq++
	if sh.policy == LRU {
		sh.evictList.MoveToFront(e.elem)
	}
	s.hits.Add(1)
	return append([]byte(nil), e.value...), store.Remaining(e.expiresAt, now), nil
}

// Delete removes a key from the store.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	sh := s.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.items[key]
	if !ok {
		return false, nil
	}
	live := !s.expired(e, s.clock.Now())
	sh.removeEntry(e)
	return live, nil
}

// DeleteMatch removes all live entries whose key matches pattern.
func (s *Store) DeleteMatch(_ context.Context, pattern string) (int64, error) {
	now := s.clock.Now()
	var n int64
	for i := 0; i < numShards; i++ {
		sh := s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.items {
			if store.Match(pattern, k) {
				if !s.expired(e, now) {
					n++
				}
				sh.removeEntry(e)
			}
		}
		sh.mu.Unlock()
	}
	return n, nil
}

// Keys returns the live keys matching pattern.
func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	now := s.clock.Now()
	var keys []string
	for i := 0; i < numShards; i++ {
		sh := s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.items {
			if !s.expired(e, now) && store.Match(pattern, k) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	return keys, nil
}

// Flush removes all entries from all shards.
func (s *Store) Flush() {
	for i := 0; i < numShards; i++ {
		sh := s.shards[i]
		sh.mu.Lock()
		sh.items = make(map[string]*entry)
		sh.evictList.Init()
		sh.mu.Unlock()
	}
}

// Stats holds hit/miss/entry counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	var total int64
	for i := 0; i < numShards; i++ {
		sh := s.shards[i]
		sh.mu.RLock()
		total += int64(len(sh.items))
		sh.mu.RUnlock()
	}
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: total}
}

// Close stops background goroutines. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() {
	now := s.clock.Now()
	for i := 0; i < numShards; i++ {
		sh := s.shards[i]
		sh.mu.Lock()
		for _, e := range sh.items {
			if s.expired(e, now) {
				sh.removeEntry(e)
			}
		}
		sh.mu.Unlock()
	}
}

func (sh *shard) evict() {
	switch sh.policy {
	case LRU, FIFO:
		if back := sh.evictList.Back(); back != nil {
			sh.removeEntry(back.Value.(*entry))
		}
	case LFU:
		var minEntry *entry
		for _, e := range sh.items {
			if minEntry == nil || e.freq < minEntry.freq {
				minEntry = e
			}
		}
		if minEntry != nil {
			sh.removeEntry(minEntry)
		}
	}
}

func (sh *shard) removeEntry(e *entry) {
	delete(sh.items, e.key)
	if e.elem != nil {
		sh.evictList.Remove(e.elem)
	}
	if sh.onEvict != nil {
		sh.onEvict(e.key, e.value)
	}
}
