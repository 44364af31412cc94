package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamwatch/internal/catalog"
	"steamwatch/internal/eventbus"
	"steamwatch/internal/watch"
)

type fakeCatalog struct {
	mu     sync.Mutex
	prices map[string]int64
	kinds  map[string]catalog.Kind
	panics map[string]bool
	calls  []string
	hook   func(id string)
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{prices: map[string]int64{}, kinds: map[string]catalog.Kind{}, panics: map[string]bool{}}
}

func (f *fakeCatalog) set(id string, p int64) {
	f.mu.Lock()
	f.prices[id] = p
	f.mu.Unlock()
}

func (f *fakeCatalog) fail(id string, k catalog.Kind) {
	f.mu.Lock()
	f.kinds[id] = k
	f.mu.Unlock()
}

func (f *fakeCatalog) FetchDetails(_ context.Context, id string) (catalog.Item, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	p, ok := f.prices[id]
	k, failing := f.kinds[id]
	boom := f.panics[id]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if boom {
		panic("decoder exploded")
	}
	if failing {
		return catalog.Item{}, &catalog.Error{Kind: k, ItemID: id}
	}
	if !ok {
		return catalog.Item{}, &catalog.Error{Kind: catalog.KindNotFound, ItemID: id}
	}
	return catalog.Item{ID: id, Name: "Game " + id, Price: &p}, nil
}

type sent struct {
	sub int64
	p   Payload
}

type recordingSink struct {
	mu  sync.Mutex
	out []sent
}

func (s *recordingSink) Notify(_ context.Context, sub int64, p Payload) error {
	s.mu.Lock()
	s.out = append(s.out, sent{sub, p})
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) take() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.out
	s.out = nil
	return out
}

type countingGate struct{ n atomic.Int32 }

func (g *countingGate) Wait(ctx context.Context) error {
	g.n.Add(1)
	return ctx.Err()
}

type fixture struct {
	cat   *fakeCatalog
	store *watch.Store
	sink  *recordingSink
	gate  *countingGate
	tr    *Tracker
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{cat: newFakeCatalog(), sink: &recordingSink{}, gate: &countingGate{}}
	f.store = watch.New(f.cat, nil)
	if opts.Gate == nil {
		opts.Gate = f.gate
	}
	f.tr = New(f.store, f.cat, f.sink, opts)
	return f
}

func (f *fixture) subscribe(t *testing.T, sub int64, id string, price int64) {
	t.Helper()
	f.cat.set(id, price)
	_, err := f.store.Subscribe(context.Background(), sub, id)
	require.NoError(t, err)
}

func TestSweepDropThenSteady(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.subscribe(t, 1, "100", 1000)

	f.cat.set("100", 800)
	rep, err := f.tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Drops)

	got := f.sink.take()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].sub)
	assert.Equal(t, Payload{
		ItemID:          "100",
		Name:            "Game 100",
		OldPrice:        1000,
		NewPrice:        800,
		Savings:         200,
		DiscountPercent: 20,
		URL:             "https://store.steampowered.com/app/100",
	}, got[0].p)

	rec, ok := f.store.Get(1, "100")
	require.True(t, ok)
	assert.Equal(t, int64(800), rec.BaselinePrice)

	rep, err = f.tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Drops)
	assert.Empty(t, f.sink.take())
}

func TestSweepNeverRaisesBaseline(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.subscribe(t, 1, "100", 1000)
	before, _ := f.store.Get(1, "100")

	f.cat.set("100", 1500)
	_, err := f.tr.Sweep(ctx)
	require.NoError(t, err)
	after, _ := f.store.Get(1, "100")
	assert.Equal(t, before, after, "record must be untouched when price rises")

	f.cat.set("100", 1000)
	_, _ = f.tr.Sweep(ctx)
	assert.Empty(t, f.sink.take())

	// rises then drops below the original baseline: measured against 1000
	f.cat.set("100", 900)
	_, _ = f.tr.Sweep(ctx)
	got := f.sink.take()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1000), got[0].p.OldPrice)
}

func TestSweepFreeBaselineNeverTriggers(t *testing.T) {
	f := newFixture(t, Options{})
	f.subscribe(t, 1, "570", 0)
	_, err := f.tr.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.sink.take())
}

func TestSweepContinuesPastFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, Options{Metrics: NewMetrics(reg)})
	f.subscribe(t, 1, "200", 1000)
	f.subscribe(t, 1, "300", 1000)
	f.subscribe(t, 2, "400", 1000)
	f.subscribe(t, 2, "500", 1000)

	f.cat.fail("200", catalog.KindUnavailable)
	f.cat.fail("400", catalog.KindMalformed)
	f.cat.mu.Lock()
	f.cat.panics["500"] = true
	f.cat.mu.Unlock()
	f.cat.set("300", 500)

	rep, err := f.tr.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 1, rep.Drops)
	assert.Equal(t, 1, rep.Unavailable)
	assert.Equal(t, 1, rep.Malformed)
	assert.Equal(t, 1, rep.Panics)
	assert.Equal(t, 3, rep.Failed())
	assert.Equal(t, int32(4), f.gate.n.Load(), "gate must run once per record")

	got := f.sink.take()
	require.Len(t, got, 1)
	assert.Equal(t, 50, got[0].p.DiscountPercent)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.tr.metrics.checks.WithLabelValues("panic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.tr.metrics.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.tr.metrics.sweeps.WithLabelValues("completed")))
}

func TestSweepIsSequentialAndGated(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var order []string
	var mu sync.Mutex

	f := newFixture(t, Options{})
	for _, id := range []string{"1", "2", "3"} {
		f.subscribe(t, 9, id, 100)
	}
	f.cat.hook = func(id string) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}
	f.tr.SetGate(GateFunc(func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "gate")
		mu.Unlock()
		return nil
	}), 0)
	hook := f.cat.hook
	f.cat.hook = func(id string) {
		mu.Lock()
		order = append(order, "fetch")
		mu.Unlock()
		hook(id)
	}

	_, err := f.tr.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, []string{"gate", "fetch", "gate", "fetch", "gate", "fetch"}, order)
}

func TestSweepUnsubscribeDuringSweepIsBenign(t *testing.T) {
	f := newFixture(t, Options{})
	f.subscribe(t, 1, "100", 1000)
	f.cat.set("100", 10)
	f.cat.hook = func(id string) {
		f.store.Unsubscribe(context.Background(), 1, id)
	}

	rep, err := f.tr.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Gone)
	assert.Empty(t, f.sink.take())
}

func TestSweepOverlapIsRejected(t *testing.T) {
	f := newFixture(t, Options{})
	f.subscribe(t, 1, "100", 1000)

	release := make(chan struct{})
	entered := make(chan struct{})
	f.tr.SetGate(GateFunc(func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	}), 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.tr.Sweep(context.Background())
	}()
	<-entered
	assert.True(t, f.tr.Running())
	_, err := f.tr.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)
	close(release)
	<-done
	assert.False(t, f.tr.Running())
}

func TestSweepCanceled(t *testing.T) {
	f := newFixture(t, Options{})
	f.subscribe(t, 1, "1", 10)
	f.subscribe(t, 1, "2", 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := f.tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Canceled)
	assert.Len(t, f.cat.calls, 2, "only the subscribe fetches")
}

func TestSweepPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, "tracker.")
	defer unsub()

	f := newFixture(t, Options{Bus: bus})
	f.subscribe(t, 5, "100", 1000)
	f.cat.set("100", 750)
	_, err := f.tr.Sweep(context.Background())
	require.NoError(t, err)

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.Equal(t, []string{EventSweepStarted, EventPriceDrop, EventSweepFinished}, types)

	last, ok := f.tr.LastReport()
	require.True(t, ok)
	assert.Equal(t, 1, last.Drops)
}
