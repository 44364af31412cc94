package metacache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestGetSetExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(0, WithClock(clk.Now))
	require.Equal(t, DefaultTTL, c.TTL())

	c.Set(Key("730"), Snapshot{Name: "Counter-Strike 2", Price: 0})
	got, ok := c.Get(Key("730"))
	require.True(t, ok)
	assert.Equal(t, "Counter-Strike 2", got.Name)

	clk.Advance(DefaultTTL - time.Second)
	_, ok = c.Get(Key("730"))
	assert.True(t, ok, "entry should still be fresh just before ttl")

	clk.Advance(time.Second)
	_, ok = c.Get(Key("730"))
	assert.False(t, ok, "entry should be a miss at ttl")
	assert.Equal(t, 0, c.Len())

	st := c.Stats()
	assert.Equal(t, uint64(2), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestSetRefreshesExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := New(time.Hour, WithClock(clk.Now))

	c.Set("k", Snapshot{Price: 100})
	clk.Advance(50 * time.Minute)
	c.Set("k", Snapshot{Price: 90})
	clk.Advance(50 * time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, int64(90), got.Price)
}

func TestPurge(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := New(time.Minute, WithClock(clk.Now))
	c.Set("a", Snapshot{})
	clk.Advance(2 * time.Minute)
	c.Set("b", Snapshot{})

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "game_570", Key("570"))
}
