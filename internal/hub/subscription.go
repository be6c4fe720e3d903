package hub

import "github.com/tradeloop/convocore/internal/store"

// Subscription is a live view onto one conversation. It has exactly two
// states: active from Subscribe until Close, then closed for good.
type Subscription struct {
	ConversationID string
	ViewerID       string

	messages chan *store.Message
	hub      *Hub
	closed   bool // guarded by hub.mu
}

// Messages is the stream of newly appended messages. The channel is closed
// when the subscription is.
func (s *Subscription) Messages() <-chan *store.Message {
	return s.messages
}

// Close releases the subscription. Idempotent; also invoked by transports on
// viewer disconnect.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}
