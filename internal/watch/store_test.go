package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamwatch/internal/catalog"
	"steamwatch/internal/metacache"
)

type fakeCatalog struct {
	mu     sync.Mutex
	items  map[string]catalog.Item
	errs   map[string]error
	called int
}

func (f *fakeCatalog) FetchDetails(_ context.Context, id string) (catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	if err := f.errs[id]; err != nil {
		return catalog.Item{}, err
	}
	it, ok := f.items[id]
	if !ok {
		return catalog.Item{}, &catalog.Error{Kind: catalog.KindNotFound, ItemID: id}
	}
	return it, nil
}

func (f *fakeCatalog) setPrice(id string, p int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[id]
	it.Price = &p
	f.items[id] = it
}

func price(p int64) *int64 { return &p }

func newFake() *fakeCatalog {
	return &fakeCatalog{
		items: map[string]catalog.Item{
			"100": {ID: "100", Name: "Zeta", Price: price(1000)},
			"200": {ID: "200", Name: "alpha", Price: price(500)},
			"570": {ID: "570", Name: "Dota 2"},
		},
		errs: map[string]error{},
	}
}

type recordingAuditor struct {
	subs, unsubs int
}

func (r *recordingAuditor) Subscribed(context.Context, int64, WatchRecord) error {
	r.subs++
	return nil
}

func (r *recordingAuditor) Unsubscribed(context.Context, int64, string) error {
	r.unsubs++
	return errors.New("journal closed")
}

func TestSubscribeRecordsBaselineAndCache(t *testing.T) {
	cat := newFake()
	cache := metacache.New(time.Hour)
	s := New(cat, cache)

	rec, err := s.Subscribe(context.Background(), 1, "100")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rec.BaselinePrice)
	assert.Equal(t, "Zeta", rec.DisplayName)

	snap, ok := cache.Get(metacache.Key("100"))
	require.True(t, ok)
	assert.Equal(t, metacache.Snapshot{Name: "Zeta", Price: 1000}, snap)
}

func TestSubscribeFreeItemHasZeroBaseline(t *testing.T) {
	s := New(newFake(), nil)
	rec, err := s.Subscribe(context.Background(), 1, "570")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.BaselinePrice)
}

func TestSubscribeAlwaysFetches(t *testing.T) {
	cat := newFake()
	cache := metacache.New(time.Hour)
	cache.Set(metacache.Key("100"), metacache.Snapshot{Name: "stale", Price: 1})
	s := New(cat, cache)

	rec, err := s.Subscribe(context.Background(), 1, "100")
	require.NoError(t, err)
	assert.Equal(t, 1, cat.called)
	assert.Equal(t, int64(1000), rec.BaselinePrice)
}

func TestResubscribeResyncsBaseline(t *testing.T) {
	cat := newFake()
	s := New(cat, nil)
	ctx := context.Background()

	_, err := s.Subscribe(ctx, 1, "100")
	require.NoError(t, err)
	_, ok := s.Lower(1, "100", 600, time.Now())
	require.True(t, ok)

	cat.setPrice("100", 1200)
	rec, err := s.Subscribe(ctx, 1, "100")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), rec.BaselinePrice)
	assert.Len(t, s.List(1), 1)
}

func TestSubscribeErrors(t *testing.T) {
	cat := newFake()
	cat.errs["300"] = &catalog.Error{Kind: catalog.KindUnavailable, ItemID: "300"}
	s := New(cat, nil)
	ctx := context.Background()

	_, err := s.Subscribe(ctx, 1, "999")
	require.ErrorIs(t, err, ErrItemNotFound)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = s.Subscribe(ctx, 1, "300")
	require.ErrorIs(t, err, catalog.ErrUnavailable)
	require.NotErrorIs(t, err, ErrItemNotFound)

	assert.Empty(t, s.List(1))
	assert.Equal(t, Stats{}, s.Stats())
}

func TestUnsubscribe(t *testing.T) {
	aud := &recordingAuditor{}
	s := New(newFake(), nil, WithAuditor(aud))
	ctx := context.Background()

	assert.False(t, s.Unsubscribe(ctx, 1, "100"), "absent record")
	assert.Equal(t, 0, aud.unsubs)

	_, err := s.Subscribe(ctx, 1, "100")
	require.NoError(t, err)
	assert.True(t, s.Unsubscribe(ctx, 1, "100"))
	assert.False(t, s.Unsubscribe(ctx, 1, "100"))
	assert.Equal(t, 1, aud.subs)
	assert.Equal(t, 1, aud.unsubs, "audit errors must not fail the operation")
	assert.Equal(t, Stats{}, s.Stats())
}

func TestListSortedByName(t *testing.T) {
	s := New(newFake(), nil)
	ctx := context.Background()
	for _, id := range []string{"100", "570", "200"} {
		_, err := s.Subscribe(ctx, 7, id)
		require.NoError(t, err)
	}
	got := s.List(7)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"200", "570", "100"}, []string{got[0].ItemID, got[1].ItemID, got[2].ItemID})
	assert.Empty(t, s.List(8))
}

func TestAllIsSnapshot(t *testing.T) {
	s := New(newFake(), nil)
	ctx := context.Background()
	_, _ = s.Subscribe(ctx, 1, "100")
	_, _ = s.Subscribe(ctx, 2, "100")

	snap := s.All()
	require.Len(t, snap, 2)
	s.Unsubscribe(ctx, 1, "100")
	_, _ = s.Lower(2, "100", 10, time.Now())

	assert.Len(t, snap, 2)
	for _, e := range snap {
		assert.Equal(t, int64(1000), e.Record.BaselinePrice)
	}
}

func TestLower(t *testing.T) {
	s := New(newFake(), nil)
	ctx := context.Background()
	_, _ = s.Subscribe(ctx, 1, "100")
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	_, ok := s.Lower(1, "100", 1000, at)
	assert.False(t, ok, "equal price is not a drop")
	_, ok = s.Lower(1, "100", 1500, at)
	assert.False(t, ok, "baseline is never raised")

	prev, ok := s.Lower(1, "100", 800, at)
	require.True(t, ok)
	assert.Equal(t, int64(1000), prev.BaselinePrice)

	rec, _ := s.Get(1, "100")
	assert.Equal(t, int64(800), rec.BaselinePrice)
	assert.Equal(t, at, rec.LastCheckedAt)

	_, ok = s.Lower(1, "missing", 1, at)
	assert.False(t, ok)
}

func TestDisplayNamePrefersCache(t *testing.T) {
	cache := metacache.New(time.Hour)
	s := New(newFake(), cache)
	rec, _ := s.Subscribe(context.Background(), 1, "100")
	cache.Set(metacache.Key("100"), metacache.Snapshot{Name: "Zeta GOTY"})
	assert.Equal(t, "Zeta GOTY", s.DisplayName(rec))

	assert.Equal(t, "Zeta", New(newFake(), nil).DisplayName(rec))
}

func TestCacheExpiryLeavesRecordIntact(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := func() time.Time { return now }
	cache := metacache.New(24*time.Hour, metacache.WithClock(clk))
	s := New(newFake(), cache, WithClock(clk))

	rec, err := s.Subscribe(context.Background(), 1, "100")
	require.NoError(t, err)
	cache.Set(metacache.Key("100"), metacache.Snapshot{Name: "Zeta GOTY", Price: 1000})
	require.Equal(t, "Zeta GOTY", s.DisplayName(rec))

	now = now.Add(24*time.Hour + time.Second)

	_, ok := cache.Get(metacache.Key("100"))
	assert.False(t, ok, "entry must expire after the ttl")
	assert.Equal(t, 0, cache.Len())

	got, ok := s.Get(1, "100")
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, int64(1000), got.BaselinePrice)
	assert.Equal(t, "Zeta", s.DisplayName(got))
}
