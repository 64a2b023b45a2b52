package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	only, unsubOnly := b.Subscribe(4, "a")
	defer unsubOnly()

	b.Publish(Event{Type: "a", Data: 1})
	b.Publish(Event{Type: "b", Data: 2})

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
	if len(only) != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", len(only))
	}
	e := <-only
	if e.Type != "a" || e.Data != 1 {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.Time.IsZero() {
		t.Fatal("Publish should stamp the event time")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: "x"})
		b.Publish(Event{Type: "x"})
		b.Publish(Event{Type: "x"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Fatalf("buffered events = %d, want 1", len(ch))
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "late"})
}
