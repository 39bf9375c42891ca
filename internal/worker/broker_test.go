package worker

import (
	"testing"
	"time"
)

func TestBroker_SubscribePublishCancel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("r1")
	if b.Subscribers("r1") != 1 {
		t.Fatalf("want 1 subscriber, got %d", b.Subscribers("r1"))
	}

	b.Publish("r1", Event{Name: EventProgress, Data: ProgressData{Step: "validating", Percent: 20}})
	select {
	case ev := <-ch:
		if ev.Name != EventProgress {
			t.Fatalf("unexpected event %+v", ev)
		}
		pd, ok := ev.Data.(ProgressData)
		if !ok || pd.Percent != 20 {
			t.Fatalf("unexpected payload %+v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	if b.Subscribers("r1") != 0 {
		t.Fatalf("cancel did not unregister, got %d", b.Subscribers("r1"))
	}
	// The channel is closed after cancel.
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	// Cancel is safe to call twice.
	cancel()
}

func TestBroker_PublishIsolatedPerReading(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe("r1")
	defer cancel1()
	_, cancel2 := b.Subscribe("r2")
	defer cancel2()

	b.Publish("r2", Event{Name: EventComplete})
	select {
	case ev := <-ch1:
		t.Fatalf("event for r2 leaked to r1: %+v", ev)
	default:
	}
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("r1")
	defer cancel()

	// Overfill the subscriber buffer; extra events are dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("r1", Event{Name: EventProgress, Data: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if got := len(ch); got > cap(ch) {
		t.Fatalf("buffer overrun: %d", got)
	}
}

func TestBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroker()
	// Must be a no-op, not a panic.
	b.Publish("nobody", Event{Name: EventError, Data: ErrorData{Code: "x"}})
}
