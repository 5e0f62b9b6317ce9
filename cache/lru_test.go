package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLru_GetMiss(t *testing.T) {
	c := NewLru[string, int](4)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestLru_PutGet(t *testing.T) {
	c := NewLru[string, int](4)
	c.Put("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("a", 2)
	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLru_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLru[string, int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", 4)
	_, ok = c.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %s evicted", k)
	}
}

func TestLru_Remove(t *testing.T) {
	c := NewLru[string, int](2)
	c.Put("a", 1)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLru_Clear(t *testing.T) {
	c := NewLru[string, int](4)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLru_ZeroCapacity(t *testing.T) {
	c := NewLru[string, int](0)
	c.Put("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLru_Concurrent(t *testing.T) {
	c := NewLru[int, int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Put(i%100, g)
				c.Get(i % 100)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
