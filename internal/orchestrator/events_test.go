package orchestrator

import (
	"testing"
	"time"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: EventStepStarted, StepID: "s1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.StepID != "s1" {
				t.Errorf("subscriber %d got step %s, want s1", i, ev.StepID)
			}
			if ev.Timestamp.IsZero() {
				t.Errorf("subscriber %d event has zero timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBroadcasterSlowSubscriberDrops(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	// slow never reads; fast reads everything.
	_, unsubSlow := b.Subscribe()
	defer unsubSlow()
	fast, unsubFast := b.Subscribe()
	defer unsubFast()

	received := make(chan int)
	go func() {
		count := 0
		for range fast {
			count++
			if count == subscriberBuffer+100 {
				received <- count
				return
			}
		}
	}()

	for i := 0; i < subscriberBuffer+100; i++ {
		b.Publish(Event{Type: EventWorkerOutput, Line: "line"})
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("fast subscriber was blocked by slow subscriber")
	}

	if b.DroppedEventCount() == 0 {
		t.Error("expected dropped events for the slow subscriber")
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch, unsub := b.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: EventError})
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch, _ := b.Subscribe()

	b.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}

	// Idempotent close and post-close operations must not panic.
	b.Close()
	b.Publish(Event{Type: EventError})

	ch2, unsub := b.Subscribe()
	if _, ok := <-ch2; ok {
		t.Error("subscription after Close should return a closed channel")
	}
	unsub()
}
