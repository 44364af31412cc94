package eventbus

import "testing"

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	drops, unsubDrops := b.Subscribe(4, "tracker.price.")
	defer unsubDrops()

	b.Publish(Event{Type: "tracker.sweep.started"})
	b.Publish(Event{Type: "tracker.price.drop", Data: "730"})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(drops); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-drops
	if e.Type != "tracker.price.drop" || e.Time.IsZero() {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "x"})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped() = %d, want 4", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
}
