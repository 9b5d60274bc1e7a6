package l1_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AndrewDonelson/envelope/internal/clock"
	"github.com/AndrewDonelson/envelope/internal/l1"
	"github.com/AndrewDonelson/envelope/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, clk clock.Clock) *l1.Store {
	t.Helper()
	s := l1.New(l1.Options{MaxEntries: 100, Clock: clk})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestL1_SetGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, clock.NewMock(time.Time{}))

	require.NoError(t, s.Set(ctx, "key1", []byte("value1"), 0))
	v, err := s.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), v)
}

func TestL1_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, clock.Real{})

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in, 0))
	in[0] = 'x'
	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
	out[1] = 'y'
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestL1_Miss(t *testing.T) {
	s := newStore(t, clock.Real{})
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrMiss)
}

func TestL1_Delete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, clock.Real{})
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))

	ok, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrMiss)
}

func TestL1_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Time{})
	s := newStore(t, clk)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Second))
	clk.Advance(2 * time.Second)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrMiss, "entry should be expired")
}

func TestL1_NoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Time{})
	s := newStore(t, clk)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	clk.Advance(1000 * time.Hour)
	_, err := s.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestL1_GetWithTTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Time{})
	s := newStore(t, clk)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Second))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))
	clk.Advance(4 * time.Second)

	v, ttl, err := s.GetWithTTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 6*time.Second, ttl)

	_, ttl, err = s.GetWithTTL(ctx, "forever")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	_, _, err = s.GetWithTTL(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrMiss)
}

func TestL1_KeysAndDeleteMatch(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Time{})
	s := newStore(t, clk)

	require.NoError(t, s.Set(ctx, "cache:users:1", []byte("a"), 0))
	require.NoError(t, s.Set(ctx, "cache:users:2", []byte("b"), 0))
	require.NoError(t, s.Set(ctx, "cache:orders:1", []byte("c"), 0))
	require.NoError(t, s.Set(ctx, "cache:users:3", []byte("d"), time.Second))
	clk.Advance(2 * time.Second)

	keys, err := s.Keys(ctx, "cache:users:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"cache:users:1", "cache:users:2"}, keys)

	n, err := s.DeleteMatch(ctx, "cache:users:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err = s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache:orders:1"}, keys)
}

func TestL1_Flush(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, clock.Real{})
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}, 0))
	}
	s.Flush()
	assert.Equal(t, int64(0), s.Stats().Entries)
}

func TestL1_OverwriteSameKey(t *testing.T) {
	ctx := context.Background()
	var evicted []string
	s := l1.New(l1.Options{
		MaxEntries: 1,
		Eviction:   l1.LRU,
		OnEvict: func(key string, _ []byte) {
			evicted = append(evicted, key)
		},
	})
	defer s.Close()

	require.NoError(t, s.Set(ctx, "first", []byte{1}, 0))
	require.NoError(t, s.Set(ctx, "first", []byte{2}, 0))
	v, err := s.Get(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, v)
	assert.Empty(t, evicted)
}

func TestL1_EvictionPolicies(t *testing.T) {
	ctx := context.Background()
	for _, policy := range []l1.EvictionPolicy{l1.LRU, l1.LFU, l1.FIFO} {
		s := l1.New(l1.Options{MaxEntries: 1, Eviction: policy})
		// With one entry per shard, the store never holds more than numShards keys.
		for i := 0; i < 2000; i++ {
			require.NoError(t, s.Set(ctx, fmt.Sprintf("key-%d", i), []byte("v"), 0))
		}
		assert.LessOrEqual(t, s.Stats().Entries, int64(256))
		_ = s.Close()
	}
}

func TestL1_Stats(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, clock.Real{})
	require.NoError(t, s.Set(ctx, "x", []byte{1}, 0))
	_, _ = s.Get(ctx, "x") // hit
	_, _ = s.Get(ctx, "y") // miss

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestL1_SweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Time{})
	s := l1.New(l1.Options{Clock: clk, SweepInterval: 10 * time.Millisecond})
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Second))
	clk.Advance(time.Minute)
	assert.Eventually(t, func() bool { return s.Stats().Entries == 0 }, time.Second, 10*time.Millisecond)
}

func TestL1_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, clock.Real{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("g%d:%d", g, i)
				_ = s.Set(ctx, k, []byte(k), 0)
				_, _ = s.Get(ctx, k)
				_, _ = s.Keys(ctx, "g*")
			}
		}(g)
	}
	wg.Wait()
}

func TestL1_CloseTwice(t *testing.T) {
	s := l1.New(l1.Options{})
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
