package eventbus

import (
	"testing"
	"time"
)

type testEvent string

func (e testEvent) EventName() string { return string(e) }

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	s1 := b.Subscribe(1)
	s2 := b.Subscribe(1)
	defer s1.Close()
	defer s2.Close()

	b.Publish(testEvent("BlockAdded"))

	for _, s := range []*Subscription{s1, s2} {
		select {
		case got := <-s.Events():
			if got.EventName() != "BlockAdded" {
				t.Fatalf("got %q, want BlockAdded", got.EventName())
			}
		case <-time.After(time.Second):
			t.Fatalf("expected an event, got none")
		}
	}
}

func TestPublishNeverBlocksOnAFullSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(testEvent("TxConfirmed"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber channel")
	}
}

func TestCloseStopsDeliveryAndIsIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	sub.Close()
	sub.Close() // must not panic

	b.Publish(testEvent("BlockAdded"))
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected the subscription's channel to be closed")
	}
}
