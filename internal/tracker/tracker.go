// Package tracker runs price sweeps over every watch record.
//
// A sweep snapshots the store, then checks items one at a time: wait on the
// gate, fetch the current price, and on a drop lower the baseline and hand a
// payload to the sink. Calls are never made concurrently. A failure or panic
// while checking one item is logged and counted, and the sweep moves on.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"steamwatch/internal/catalog"
	"steamwatch/internal/eventbus"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

// ErrSweepRunning is returned when a sweep is requested while one is in progress.
var ErrSweepRunning = errors.New("tracker: sweep already running")

const (
	EventSweepStarted  = "tracker.sweep.started"
	EventSweepFinished = "tracker.sweep.finished"
	EventPriceDrop     = "tracker.price.drop"
)

// Store is the slice of the subscription store a sweep needs.
type Store interface {
	All() []watch.Entry
	Lower(sub int64, itemID string, price int64, at time.Time) (watch.WatchRecord, bool)
}

// Payload is what a subscriber is told about a drop.
type Payload struct {
	ItemID          string `json:"item_id"`
	Name            string `json:"name"`
	OldPrice        int64  `json:"old_price"`
	NewPrice        int64  `json:"new_price"`
	Savings         int64  `json:"savings"`
	DiscountPercent int    `json:"discount_percent"`
	Currency        string `json:"currency,omitempty"`
	URL             string `json:"url"`
}

// Sink accepts drop notifications. Notify must not wait for delivery.
type Sink interface {
	Notify(ctx context.Context, sub int64, p Payload) error
}

// Journal records drops for operators. Optional.
type Journal interface {
	PriceDropped(ctx context.Context, sub int64, p Payload) error
}

// DropEvent is the Data of EventPriceDrop.
type DropEvent struct {
	SweepID    string
	Subscriber int64
	Payload    Payload
}

// Report summarizes one sweep.
type Report struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Total       int           `json:"total"`
	Checked     int           `json:"checked"`
	Drops       int           `json:"drops"`
	NotFound    int           `json:"not_found"`
	Unavailable int           `json:"unavailable"`
	Malformed   int           `json:"malformed"`
	Gone        int           `json:"gone"`
	Panics      int           `json:"panics"`
	Canceled    int           `json:"canceled"`
}

// Failed counts items whose fetch or processing failed.
func (r Report) Failed() int { return r.NotFound + r.Unavailable + r.Malformed + r.Panics }

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeDrop
	outcomeNotFound
	outcomeUnavailable
	outcomeMalformed
	outcomeGone
	outcomePanic
	outcomeCanceled
)

func (o outcome) String() string {
	switch o {
	case outcomeDrop:
		return "drop"
	case outcomeNotFound:
		return "not_found"
	case outcomeUnavailable:
		return "unavailable"
	case outcomeMalformed:
		return "malformed"
	case outcomeGone:
		return "gone"
	case outcomePanic:
		return "panic"
	case outcomeCanceled:
		return "canceled"
	default:
		return "unchanged"
	}
}

type Options struct {
	Gate         Gate          // nil means a DelayGate of DefaultInterCallDelay
	FetchTimeout time.Duration // 0 disables the per-item timeout
	Journal      Journal
	Bus          eventbus.Bus
	Metrics      *Metrics
	Log          logx.Logger
	Clock        func() time.Time
}

type Tracker struct {
	store Store
	fetch catalog.Fetcher
	sink  Sink

	mu      sync.RWMutex
	gate    Gate
	timeout time.Duration

	journal Journal
	bus     eventbus.Bus
	metrics *Metrics
	log     logx.Logger
	now     func() time.Time

	running atomic.Bool

	lastMu sync.RWMutex
	last   *Report
}

func New(store Store, fetch catalog.Fetcher, sink Sink, opts Options) *Tracker {
	t := &Tracker{
		store:   store,
		fetch:   fetch,
		sink:    sink,
		gate:    opts.Gate,
		timeout: opts.FetchTimeout,
		journal: opts.Journal,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		log:     opts.Log,
		now:     opts.Clock,
	}
	if t.gate == nil {
		t.gate = NewDelayGate(DefaultInterCallDelay)
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// SetGate swaps the gate used by the next sweep.
func (t *Tracker) SetGate(g Gate, fetchTimeout time.Duration) {
	if g == nil {
		return
	}
	t.mu.Lock()
	t.gate = g
	t.timeout = fetchTimeout
	t.mu.Unlock()
}

func (t *Tracker) Running() bool { return t.running.Load() }

func (t *Tracker) LastReport() (Report, bool) {
	t.lastMu.RLock()
	defer t.lastMu.RUnlock()
	if t.last == nil {
		return Report{}, false
	}
	return *t.last, true
}

// Sweep checks every record present at snapshot time exactly once.
// Overlapping calls fail fast with ErrSweepRunning. Canceling ctx stops the
// sweep between items; the remaining items are counted as canceled.
func (t *Tracker) Sweep(ctx context.Context) (Report, error) {
	if !t.running.CompareAndSwap(false, true) {
		t.metrics.sweepSkipped()
		return Report{}, ErrSweepRunning
	}
	defer t.running.Store(false)

	t.mu.RLock()
	gate, timeout := t.gate, t.timeout
	t.mu.RUnlock()

	entries := t.store.All()
	rep := Report{ID: uuid.NewString(), StartedAt: t.now(), Total: len(entries)}
	log := t.log.With(logx.String("sweep", rep.ID))
	log.Info("sweep started", logx.Int("records", rep.Total))
	t.publish(EventSweepStarted, rep)

	for i, e := range entries {
		if ctx.Err() != nil {
			rep.Canceled = len(entries) - i
			break
		}
		o := t.checkOne(ctx, log, rep.ID, gate, timeout, e)
		t.metrics.observeCheck(o)
		switch o {
		case outcomeUnchanged:
			rep.Checked++
		case outcomeDrop:
			rep.Checked++
			rep.Drops++
		case outcomeNotFound:
			rep.NotFound++
		case outcomeUnavailable:
			rep.Unavailable++
		case outcomeMalformed:
			rep.Malformed++
		case outcomeGone:
			rep.Checked++
			rep.Gone++
		case outcomePanic:
			rep.Panics++
		case outcomeCanceled:
			rep.Canceled = len(entries) - i
		}
		if o == outcomeCanceled {
			break
		}
	}

	rep.Duration = max(t.now().Sub(rep.StartedAt), 0)
	t.lastMu.Lock()
	r := rep
	t.last = &r
	t.lastMu.Unlock()

	t.metrics.observeSweep(rep)
	t.publish(EventSweepFinished, rep)
	log.Info("sweep finished",
		logx.Int("checked", rep.Checked),
		logx.Int("drops", rep.Drops),
		logx.Int("failed", rep.Failed()),
		logx.Int("canceled", rep.Canceled),
		logx.Duration("took", rep.Duration),
	)
	return rep, nil
}

func (t *Tracker) checkOne(ctx context.Context, log logx.Logger, sweepID string, gate Gate, timeout time.Duration, e watch.Entry) (out outcome) {
	rec := e.Record
	log = log.With(logx.Int64("sub", e.Subscriber), logx.String("item", rec.ItemID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("price check panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			out = outcomePanic
		}
	}()

	if err := gate.Wait(ctx); err != nil {
		return outcomeCanceled
	}

	fctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, timeout)
	}
	it, err := t.fetch.FetchDetails(fctx, rec.ItemID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return outcomeCanceled
		}
		switch catalog.KindOf(err) {
		case catalog.KindNotFound:
			log.Warn("item not found during sweep", logx.Err(err))
			return outcomeNotFound
		case catalog.KindMalformed:
			log.Error("malformed catalog response", logx.Err(err))
			return outcomeMalformed
		default:
			log.Warn("catalog unavailable", logx.Err(err))
			return outcomeUnavailable
		}
	}

	price := it.FinalPrice()
	if _, ok := Evaluate(rec.BaselinePrice, price); !ok {
		log.Trace("no drop", logx.Int64("baseline", rec.BaselinePrice), logx.Int64("price", price))
		return outcomeUnchanged
	}

	// The store may have changed since the snapshot; the drop is measured
	// against the baseline at the moment it is lowered.
	prev, ok := t.store.Lower(e.Subscriber, rec.ItemID, price, t.now())
	if !ok {
		if prev.ItemID == "" {
			log.Debug("record removed during sweep")
			return outcomeGone
		}
		return outcomeUnchanged
	}
	d, _ := Evaluate(prev.BaselinePrice, price)

	name := it.Name
	if name == "" {
		name = rec.DisplayName
	}
	p := Payload{
		ItemID:          rec.ItemID,
		Name:            name,
		OldPrice:        d.Old,
		NewPrice:        d.New,
		Savings:         d.Savings,
		DiscountPercent: d.DiscountPercent,
		Currency:        it.Currency,
		URL:             catalog.StoreURL(rec.ItemID),
	}
	log.Info("price drop",
		logx.Int64("old", p.OldPrice),
		logx.Int64("new", p.NewPrice),
		logx.Int("discount", p.DiscountPercent),
	)

	if t.sink != nil {
		if err := t.sink.Notify(ctx, e.Subscriber, p); err != nil {
			log.Warn("notify failed", logx.Err(err))
		}
	}
	if t.journal != nil {
		if err := t.journal.PriceDropped(ctx, e.Subscriber, p); err != nil {
			log.Warn("journal price drop failed", logx.Err(err))
		}
	}
	t.publish(EventPriceDrop, DropEvent{SweepID: sweepID, Subscriber: e.Subscriber, Payload: p})
	return outcomeDrop
}

func (t *Tracker) publish(typ string, data any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Summary is a one-line description of a report for chat output.
func (r Report) Summary() string {
	return fmt.Sprintf("checked %d/%d, drops %d, failed %d, took %s",
		r.Checked, r.Total, r.Drops, r.Failed(), r.Duration.Round(time.Second))
}
