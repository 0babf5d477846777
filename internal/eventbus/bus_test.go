package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "job.summary", Data: 42})
	select {
	case e := <-ch:
		if e.Type != "job.summary" || e.Data.(int) != 42 {
			t.Fatalf("event = %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("publish should stamp the time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The buffer holds one; the rest must be dropped, not block.
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: "x"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub() // second call must not panic

	// Publishing after unsubscribe must not panic either.
	b.Publish(Event{Type: "x"})
}
