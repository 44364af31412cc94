// Package watch owns every subscriber's watch-list: which items they track
// and the baseline price each drop is measured against.
//
// All state is in memory. Mutations happen under one lock so a record is
// never observed half-written; the price tracker reads through All, which
// returns a copy.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"steamwatch/internal/catalog"
	"steamwatch/internal/metacache"
	logx "steamwatch/pkg/logx"
)

// ErrItemNotFound is returned by Subscribe when the catalog has no such item.
// It wraps the catalog error.
var ErrItemNotFound = errors.New("watch: item not found")

// WatchRecord is the tracking state of one (subscriber, item) pair.
type WatchRecord struct {
	ItemID        string    `json:"item_id"`
	DisplayName   string    `json:"display_name"`
	BaselinePrice int64     `json:"baseline_price"`
	SubscribedAt  time.Time `json:"subscribed_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Entry is one row of the All snapshot.
type Entry struct {
	Subscriber int64
	Record     WatchRecord
}

// Auditor receives subscription changes. Calls are best-effort; errors are
// logged and never fail the operation.
type Auditor interface {
	Subscribed(ctx context.Context, sub int64, rec WatchRecord) error
	Unsubscribed(ctx context.Context, sub int64, itemID string) error
}

type Store struct {
	fetch catalog.Fetcher
	cache *metacache.Cache

	mu   sync.RWMutex
	subs map[int64]map[string]WatchRecord

	audit Auditor
	now   func() time.Time
	log   logx.Logger
}

type Option func(*Store)

func WithAuditor(a Auditor) Option { return func(s *Store) { s.audit = a } }
func WithLogger(l logx.Logger) Option { return func(s *Store) { s.log = l } }
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store. cache may be nil.
func New(fetch catalog.Fetcher, cache *metacache.Cache, opts ...Option) *Store {
	s := &Store{
		fetch: fetch,
		cache: cache,
		subs:  map[int64]map[string]WatchRecord{},
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe fetches the item's current price and records it as the baseline.
// Subscribing again to the same item resets the baseline to the current price.
func (s *Store) Subscribe(ctx context.Context, sub int64, itemID string) (WatchRecord, error) {
	itemID = strings.TrimSpace(itemID)
	it, err := s.fetch.FetchDetails(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return WatchRecord{}, fmt.Errorf("%w: %w", ErrItemNotFound, err)
		}
		return WatchRecord{}, fmt.Errorf("watch: subscribe %s: %w", itemID, err)
	}

	now := s.now()
	rec := WatchRecord{
		ItemID:        itemID,
		DisplayName:   it.Name,
		BaselinePrice: max(it.FinalPrice(), 0),
		SubscribedAt:  now,
		LastCheckedAt: now,
	}

	s.mu.Lock()
	m := s.subs[sub]
	if m == nil {
		m = map[string]WatchRecord{}
		s.subs[sub] = m
	}
	_, existed := m[itemID]
	m[itemID] = rec
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Set(metacache.Key(itemID), metacache.Snapshot{Name: it.Name, Price: rec.BaselinePrice})
	}
	s.log.Info("subscribed",
		logx.Int64("sub", sub),
		logx.String("item", itemID),
		logx.Int64("baseline", rec.BaselinePrice),
		logx.Bool("resync", existed),
	)
	if s.audit != nil {
		if err := s.audit.Subscribed(ctx, sub, rec); err != nil {
			s.log.Warn("audit subscribe failed", logx.Err(err))
		}
	}
	return rec, nil
}

// Unsubscribe removes the record and reports whether it existed.
func (s *Store) Unsubscribe(ctx context.Context, sub int64, itemID string) bool {
	itemID = strings.TrimSpace(itemID)
	s.mu.Lock()
	m := s.subs[sub]
	_, ok := m[itemID]
	if ok {
		delete(m, itemID)
		if len(m) == 0 {
			delete(s.subs, sub)
		}
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.log.Info("unsubscribed", logx.Int64("sub", sub), logx.String("item", itemID))
	if s.audit != nil {
		if err := s.audit.Unsubscribed(ctx, sub, itemID); err != nil {
			s.log.Warn("audit unsubscribe failed", logx.Err(err))
		}
	}
	return true
}

// List returns the subscriber's records sorted by display name, then id.
func (s *Store) List(sub int64) []WatchRecord {
	s.mu.RLock()
	m := s.subs[sub]
	out := make([]WatchRecord, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

func (s *Store) Get(sub int64, itemID string) (WatchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.subs[sub][itemID]
	return r, ok
}

// All copies every record. Later mutations do not affect the returned slice.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.subs {
		n += len(m)
	}
	out := make([]Entry, 0, n)
	for sub, m := range s.subs {
		for _, r := range m {
			out = append(out, Entry{Subscriber: sub, Record: r})
		}
	}
	return out
}

// Lower sets the baseline to price when price is below the current baseline.
// ok is false when the record no longer exists or the price is not lower;
// prev is the record as it was before the update.
func (s *Store) Lower(sub int64, itemID string, price int64, at time.Time) (prev WatchRecord, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.subs[sub]
	r, exists := m[itemID]
	if !exists || price >= r.BaselinePrice {
		return r, false
	}
	prev = r
	r.BaselinePrice = max(price, 0)
	r.LastCheckedAt = at
	m[itemID] = r
	return prev, true
}

type Stats struct {
	Subscribers   int `json:"subscribers"`
	Subscriptions int `json:"subscriptions"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Subscribers: len(s.subs)}
	for _, m := range s.subs {
		st.Subscriptions += len(m)
	}
	return st
}

// DisplayName prefers a fresh cached name over the one stored at subscribe time.
func (s *Store) DisplayName(rec WatchRecord) string {
	if s.cache != nil {
		if snap, ok := s.cache.Get(metacache.Key(rec.ItemID)); ok && snap.Name != "" {
			return snap.Name
		}
	}
	return rec.DisplayName
}
