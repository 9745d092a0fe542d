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

	b.Publish(Event{Type: TypeConversationUpdated, Data: ConversationUpdated{ConversationID: 7}})

	select {
	case e := <-ch:
		if e.Type != TypeConversationUpdated {
			t.Fatalf("Type = %q, want %q", e.Type, TypeConversationUpdated)
		}
		if e.ID == "" {
			t.Fatal("expected generated event id")
		}
		if e.Time.IsZero() {
			t.Fatal("expected event time to be set")
		}
		d, ok := e.Data.(ConversationUpdated)
		if !ok || d.ConversationID != 7 {
			t.Fatalf("unexpected payload: %#v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeNotificationReceived})
	b.Publish(Event{Type: TypeNotificationReceived}) // buffer full, dropped

	<-ch
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Must not panic after the channel is closed.
	b.Publish(Event{Type: TypePaywallPrompt})
}
