package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/store"
)

// DefaultBuffer is the per-subscriber queue size when none is configured.
const DefaultBuffer = 32

// Hub fans newly appended messages out to live viewers. Subscriptions are
// keyed by conversation id, so a publish touches only the viewers of that
// conversation. Delivery is best-effort: the message store is the source of
// truth and clients re-read history on reconnect.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	log    *zerolog.Logger
}

// New creates a hub with the given per-subscriber buffer size.
func New(buffer int, logger *zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    logger,
	}
}

// Subscribe registers a live viewer for a conversation. Multiple viewers per
// conversation are allowed; the same viewer may hold several subscriptions
// (one per open view).
func (h *Hub) Subscribe(conversationID, viewerID string) *Subscription {
	sub := &Subscription{
		ConversationID: conversationID,
		ViewerID:       viewerID,
		messages:       make(chan *store.Message, h.buffer),
		hub:            h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[conversationID] = set
	}
	set[sub] = struct{}{}

	return sub
}

// Unsubscribe releases a registration. Safe to call multiple times.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true

	if set, ok := h.subs[sub.ConversationID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.ConversationID)
		}
	}
	close(sub.messages)
}

// Publish delivers msg to every active subscription for the conversation.
// A full subscriber queue drops its oldest entry rather than stalling the
// send; the viewer catches up from the store on its next history read.
func (h *Hub) Publish(conversationID string, msg *store.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[conversationID] {
		select {
		case sub.messages <- msg:
		default:
			select {
			case <-sub.messages:
			default:
			}
			select {
			case sub.messages <- msg:
			default:
			}
			if h.log != nil {
				h.log.Debug().
					Str("conversation_id", conversationID).
					Str("viewer_id", sub.ViewerID).
					Msg("slow subscriber, dropped oldest queued message")
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions for a conversation.
func (h *Hub) SubscriberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}
