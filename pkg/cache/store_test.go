package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	var evictedKeys []string
	s := NewStore[int](3, 0, func(key string, _ Meta, reason EvictReason) {
		if reason == EvictCapacity {
			evictedKeys = append(evictedKeys, key)
		}
	})

	s.Put("a", 1, 1, Meta{})
	s.Put("b", 2, 1, Meta{})
	s.Put("c", 3, 1, Meta{})

	_, ok := s.Get("a")
	require.True(t, ok)

	s.Put("d", 4, 1, Meta{})

	assert.Equal(t, []string{"b"}, evictedKeys)
	assert.Equal(t, []string{"d", "a", "c"}, s.keys())
	assert.False(t, s.contains("b"))
}

func TestStoreCostCeiling(t *testing.T) {
	s := NewStore[string](0, 100, nil)

	require.True(t, s.Put("a", "a", 40, Meta{}))
	require.True(t, s.Put("b", "b", 40, Meta{}))
	require.True(t, s.Put("c", "c", 40, Meta{}))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(80), s.Cost())
	assert.False(t, s.contains("a"))

	assert.False(t, s.Put("huge", "x", 101, Meta{}))
	assert.Equal(t, 2, s.Len())
}

func TestStoreReplaceKeepsCost(t *testing.T) {
	s := NewStore[int](0, 0, nil)
	s.Put("a", 1, 10, Meta{})
	s.Put("a", 2, 30, Meta{})

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(30), s.Cost())
}

func TestStoreRemoveFunc(t *testing.T) {
	removed := 0
	s := NewStore[int](0, 0, func(_ string, _ Meta, reason EvictReason) {
		if reason == EvictRemoved {
			removed++
		}
	})
	s.Put("a", 1, 1, Meta{Image: "x"})
	s.Put("b", 2, 1, Meta{Image: "y"})
	s.Put("c", 3, 1, Meta{Image: "x"})

	n := s.RemoveFunc(func(_ string, m Meta) bool { return m.Image == "x" })
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"b"}, s.keys())

	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Zero(t, s.Cost())
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore[int](50, 500, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", w, i%40)
				s.Put(key, i, int64(i%7+1), Meta{})
				s.Get(key)
				if i%13 == 0 {
					s.Remove(key)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 50)
	assert.LessOrEqual(t, s.Cost(), int64(500))

	var sum int64
	for _, k := range s.keys() {
		_, ok := s.Get(k)
		require.True(t, ok)
	}
	s.RemoveFunc(func(string, Meta) bool { sum++; return false })
	assert.Equal(t, int64(s.Len()), sum)
}
