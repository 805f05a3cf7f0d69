package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.SetWithTTL("k", "v", -time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDeleteFiresEviction(t *testing.T) {
	evicted := map[string]any{}
	c := New(Config{OnEviction: func(key string, value any) {
		evicted[key] = value
	}})
	defer c.Close()

	c.Set("k", 42)
	c.Delete("k")
	assert.Equal(t, 42, evicted["k"])
	assert.Zero(t, c.Size())
}

func TestMaxItemsEvictsOldest(t *testing.T) {
	c := New(Config{MaxItems: 3, DefaultTTL: time.Hour})
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		time.Sleep(time.Millisecond)
	}
	c.Set("k3", 3)

	assert.Equal(t, 3, c.Size())
	_, ok := c.Get("k0")
	assert.False(t, ok, "entry closest to expiry is evicted first")
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Zero(t, c.Size())
}
