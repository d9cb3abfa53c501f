package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()

	t.Run("basic round trip", func(t *testing.T) {
		s := NewMemoryStore(10)
		require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))

		got, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v"), got)
	})

	t.Run("absent key", func(t *testing.T) {
		s := NewMemoryStore(10)
		_, ok, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("last writer wins", func(t *testing.T) {
		s := NewMemoryStore(10)
		require.NoError(t, s.Set(ctx, "k", []byte("old"), time.Minute))
		require.NoError(t, s.Set(ctx, "k", []byte("new"), time.Minute))

		got, ok, _ := s.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, []byte("new"), got)
		assert.Equal(t, 1, s.Stats().Size)
	})

	t.Run("stored bytes are copied", func(t *testing.T) {
		s := NewMemoryStore(10)
		value := []byte("original")
		require.NoError(t, s.Set(ctx, "k", value, time.Minute))
		value[0] = 'X'

		got, ok, _ := s.Get(ctx, "k")
		require.True(t, ok)
		assert.Equal(t, []byte("original"), got)

		got[0] = 'Y'
		again, _, _ := s.Get(ctx, "k")
		assert.Equal(t, []byte("original"), again)
	})
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()

	t.Run("entry expires", func(t *testing.T) {
		s := NewMemoryStore(10)
		require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Millisecond))

		time.Sleep(30 * time.Millisecond)
		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, s.Stats().Size)
	})

	t.Run("cleanup removes expired entries", func(t *testing.T) {
		s := NewMemoryStore(10)
		require.NoError(t, s.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
		require.NoError(t, s.Set(ctx, "long", []byte("v"), time.Minute))

		time.Sleep(30 * time.Millisecond)
		removed := s.CleanupExpired()
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, s.Stats().Size)
	})
}

func TestMemoryStore_LRU(t *testing.T) {
	ctx := context.Background()

	t.Run("evicts least recently used at capacity", func(t *testing.T) {
		s := NewMemoryStore(3)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
		}

		// Touch k0 so k1 becomes the oldest
		_, ok, _ := s.Get(ctx, "k0")
		require.True(t, ok)

		require.NoError(t, s.Set(ctx, "k3", []byte("v"), time.Minute))

		_, ok, _ = s.Get(ctx, "k1")
		assert.False(t, ok, "k1 should have been evicted")
		for _, key := range []string{"k0", "k2", "k3"} {
			_, ok, _ := s.Get(ctx, key)
			assert.True(t, ok, "%s should survive", key)
		}
		assert.Equal(t, 3, s.Stats().Size)
	})
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	_, _, _ = s.Get(ctx, "k")
	_, _, _ = s.Get(ctx, "absent")

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k%d", j%20)
				_ = s.Set(ctx, key, []byte(fmt.Sprintf("v%d", n)), time.Minute)
				_, _, _ = s.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Stats().Size, 20)
}
