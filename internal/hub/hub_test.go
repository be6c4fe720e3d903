package hub

import (
	"testing"
	"time"

	"github.com/tradeloop/convocore/internal/store"
)

func mustMessage(t *testing.T, ch <-chan *store.Message) *store.Message {
	t.Helper()

	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected message not received")
	}
	return nil
}

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	h := New(8, nil)

	alice := h.Subscribe("conv-1", "alice")
	bob := h.Subscribe("conv-1", "bob")
	defer alice.Close()
	defer bob.Close()

	for i := int64(1); i <= 3; i++ {
		h.Publish("conv-1", &store.Message{ID: i, ConversationID: "conv-1"})
	}

	for _, sub := range []*Subscription{alice, bob} {
		for i := int64(1); i <= 3; i++ {
			msg := mustMessage(t, sub.Messages())
			if msg.ID != i {
				t.Fatalf("subscriber %s: expected message %d, got %d", sub.ViewerID, i, msg.ID)
			}
		}
	}
}

func TestPublishScopedToConversation(t *testing.T) {
	h := New(8, nil)

	one := h.Subscribe("conv-1", "alice")
	other := h.Subscribe("conv-2", "alice")
	defer one.Close()
	defer other.Close()

	h.Publish("conv-1", &store.Message{ID: 1, ConversationID: "conv-1"})

	if msg := mustMessage(t, one.Messages()); msg.ConversationID != "conv-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	select {
	case msg := <-other.Messages():
		t.Fatalf("conv-2 subscriber received foreign message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLateSubscriberMissesEarlierMessages(t *testing.T) {
	h := New(8, nil)

	h.Publish("conv-1", &store.Message{ID: 1, ConversationID: "conv-1"})

	late := h.Subscribe("conv-1", "alice")
	defer late.Close()

	select {
	case msg := <-late.Messages():
		t.Fatalf("late subscriber received pre-subscription message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// But it does receive what comes after.
	h.Publish("conv-1", &store.Message{ID: 2, ConversationID: "conv-1"})
	if msg := mustMessage(t, late.Messages()); msg.ID != 2 {
		t.Fatalf("expected message 2, got %d", msg.ID)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := New(2, nil)

	slow := h.Subscribe("conv-1", "alice")
	defer slow.Close()

	for i := int64(1); i <= 4; i++ {
		h.Publish("conv-1", &store.Message{ID: i, ConversationID: "conv-1"})
	}

	// Buffer of 2 with drop-oldest: 1 and 2 were pushed out by 3 and 4.
	if msg := mustMessage(t, slow.Messages()); msg.ID != 3 {
		t.Fatalf("expected message 3 first, got %d", msg.ID)
	}
	if msg := mustMessage(t, slow.Messages()); msg.ID != 4 {
		t.Fatalf("expected message 4 second, got %d", msg.ID)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New(8, nil)

	sub := h.Subscribe("conv-1", "alice")
	if got := h.SubscriberCount("conv-1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	sub.Close()
	sub.Close()
	h.Unsubscribe(sub)

	if got := h.SubscriberCount("conv-1"); got != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", got)
	}

	// The channel is closed, not left dangling.
	if _, ok := <-sub.Messages(); ok {
		t.Fatal("expected closed message channel")
	}

	// Publishing after the last unsubscribe is a no-op.
	h.Publish("conv-1", &store.Message{ID: 1, ConversationID: "conv-1"})
}
