package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUTTLPerEntryExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRUTTL[string, string](8, 0, time.Hour)
	c.SetClock(func() time.Time { return now })

	c.Set("weather:Beijing", "w", 1, 30*time.Minute)
	c.Set("attractions:Beijing:history", "a", 1, 2*time.Hour)

	now = now.Add(31 * time.Minute)
	_, ok := c.Get("weather:Beijing")
	assert.False(t, ok)
	v, ok := c.Get("attractions:Beijing:history")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUTTLEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUTTL[string, int](2, 0, time.Minute)
	c.Set("a", 1, 0, 0)
	c.Set("b", 2, 0, 0)
	_, _ = c.Get("a")
	c.Set("c", 3, 0, 0)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRUTTLByteBudget(t *testing.T) {
	c := NewLRUTTL[string, []byte](10, 8, time.Minute)
	c.Set("a", make([]byte, 5), 5, 0)
	c.Set("b", make([]byte, 5), 5, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestLRUTTLDelete(t *testing.T) {
	c := NewLRUTTL[string, int](8, 0, time.Minute)
	c.Set("weather:Beijing", 1, 4, 0)
	c.Set("weather:Shanghai", 2, 4, 0)
	c.Set("lodging:Beijing:hotel", 3, 4, 0)

	assert.True(t, c.Delete("lodging:Beijing:hotel"))
	assert.False(t, c.Delete("lodging:Beijing:hotel"))

	n := c.DeleteFunc(func(k string) bool { return len(k) > 8 && k[:8] == "weather:" })
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, c.Len())
}
