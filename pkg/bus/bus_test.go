package bus

import (
	"context"
	"testing"
	"time"
)

func TestEventFanout(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	eventsA, unsubA := b.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := b.SubscribeEvents(ctx, 1)
	defer unsubB()

	event := Event{Type: EventUpdateReceived, UpdateID: 10}
	if ok := b.PublishEvent(ctx, event); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventUpdateReceived || got.UpdateID != 10 {
				t.Fatalf("subscriber %s event = %+v", name, got)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s event has no timestamp", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	events, unsubscribe := b.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	if ok := b.PublishEvent(ctx, Event{Type: EventUpdateReceived}); !ok {
		t.Fatal("expected first event publish to succeed")
	}

	start := time.Now()
	if ok := b.PublishEvent(ctx, Event{Type: EventReplySent}); !ok {
		t.Fatal("expected second event publish to succeed")
	}

	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	select {
	case got := <-events:
		if got.Type != EventUpdateReceived {
			t.Fatalf("event type = %q, want the first event kept", got.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx := context.Background()
	events, unsubscribe := b.SubscribeEvents(ctx, 1)
	unsubscribe()
	unsubscribe()

	if ok := b.PublishEvent(ctx, Event{Type: EventUpdateReceived}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := b.SubscribeEvents(ctx, 1)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscription did not end with its context")
	}
}

func TestSubscribeEventsUnblocksOnClose(t *testing.T) {
	b := New()

	ctx := context.Background()
	events, _ := b.SubscribeEvents(ctx, 1)
	b.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event subscription did not unblock after close")
	}

	late, _ := b.SubscribeEvents(ctx, 1)
	if _, ok := <-late; ok {
		t.Fatal("expected subscription after close to be closed")
	}
}

func TestPublishAfterCloseOrCancel(t *testing.T) {
	var nilBus *Bus
	if nilBus.PublishEvent(context.Background(), Event{Type: EventReplySent}) {
		t.Fatal("expected publish on nil bus to report false")
	}

	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if b.PublishEvent(ctx, Event{Type: EventReplySent}) {
		t.Fatal("expected publish to fail on canceled context")
	}

	b.Close()
	if b.PublishEvent(context.Background(), Event{Type: EventReplySent}) {
		t.Fatal("expected publish to fail after close")
	}
}
