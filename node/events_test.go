package node

import "testing"

func TestEventBus_PublishDeliversToMatchingSubscriber(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventBlockAuthored)
	defer sub.Unsubscribe()

	bus.Publish(EventBlockAuthored, "hash-1")

	select {
	case ev := <-sub.Chan():
		if ev.Type != EventBlockAuthored || ev.Data != "hash-1" {
			t.Fatalf("got event %+v, want Type=EventBlockAuthored Data=hash-1", ev)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestEventBus_PublishSkipsNonMatchingSubscriber(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventSlotSkipped)
	defer sub.Unsubscribe()

	bus.Publish(EventBlockAuthored, "hash-1")

	select {
	case ev := <-sub.Chan():
		t.Fatalf("unexpected event delivered: %+v", ev)
	default:
	}
}

func TestEventBus_PublishAsyncDropsOnFullBuffer(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventFinalityStall)
	defer sub.Unsubscribe()

	bus.PublishAsync(EventFinalityStall, uint64(1))
	bus.PublishAsync(EventFinalityStall, uint64(2)) // buffer full, dropped

	ev := <-sub.Chan()
	if ev.Data != uint64(1) {
		t.Fatalf("got %v, want first published event to survive", ev.Data)
	}
	select {
	case ev := <-sub.Chan():
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe(EventBlockImported)
	sub.Unsubscribe()

	if n := bus.SubscriberCount(EventBlockImported); n != 0 {
		t.Fatalf("SubscriberCount after Unsubscribe = %d, want 0", n)
	}
	bus.Publish(EventBlockImported, nil) // must not panic or block
}

func TestEventBus_CloseClosesAllSubscriptions(t *testing.T) {
	bus := NewEventBus(0)
	sub := bus.Subscribe(EventBlockRejected)
	bus.Close()

	if _, ok := <-sub.Chan(); ok {
		t.Fatal("subscription channel should be closed after EventBus.Close")
	}
	// Publishing after Close must be a safe no-op.
	bus.Publish(EventBlockRejected, nil)
	bus.PublishAsync(EventBlockRejected, nil)
}

func TestEventBus_SubscribeMultiple(t *testing.T) {
	bus := NewEventBus(2)
	sub := bus.SubscribeMultiple(EventBlockAuthored, EventSlotSkipped)
	defer sub.Unsubscribe()

	bus.Publish(EventBlockAuthored, 1)
	bus.Publish(EventSlotSkipped, 2)
	bus.Publish(EventEquivocation, 3)

	got := map[int]bool{}
	for i := 0; i < 2; i++ {
		ev := <-sub.Chan()
		got[ev.Data.(int)] = true
	}
	if !got[1] || !got[2] || got[3] {
		t.Fatalf("got %v, want exactly {1,2} delivered", got)
	}
}
