package events

import (
	"testing"
	"time"
)

func TestBus_PublishDelivers(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	bus.Publish(RecoveryProgress{SessionID: "s1", Progress: 40, Step: "Syncing"})

	select {
	case ev := <-ch:
		progress, ok := ev.(RecoveryProgress)
		if !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
		if progress.SessionID != "s1" || progress.Progress != 40 {
			t.Errorf("unexpected event: %+v", progress)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	// Second publish must not block even though nobody is reading.
	done := make(chan struct{})
	go func() {
		bus.Publish(Started{NodeID: "node-a"})
		bus.Publish(Stopped{NodeID: "node-a"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Only the first event fit in the buffer.
	ev := <-ch
	if ev.EventType() != TypeStarted {
		t.Errorf("expected the buffered event, got %s", ev.EventType())
	}
	select {
	case ev := <-ch:
		t.Errorf("expected overflow event dropped, got %s", ev.EventType())
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)

	unsub()
	unsub() // repeat is a no-op

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}

	// Publishing to a bus with no subscribers is fine.
	bus.Publish(Started{NodeID: "node-a"})
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Close()
	bus.Close() // repeat is a no-op
	bus.Publish(Started{NodeID: "node-a"})

	if _, ok := <-ch; ok {
		t.Error("expected closed subscriber channel after Close")
	}

	// Subscribing after Close yields an already-closed channel.
	late, lateUnsub := bus.Subscribe(1)
	defer lateUnsub()
	if _, ok := <-late; ok {
		t.Error("expected closed channel for late subscriber")
	}
}
