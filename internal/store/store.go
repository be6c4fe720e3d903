package store

import (
	"context"
	"errors"
	"time"
)

// Common storage errors. Implementations wrap driver errors; callers match
// with errors.Is.
var (
	// ErrInvalidParticipants is returned when a conversation is requested
	// between an identity and itself, or with a blank participant id.
	ErrInvalidParticipants = errors.New("invalid participants")
	// ErrNotAParticipant is returned when a sender is not one of the
	// conversation's two participants.
	ErrNotAParticipant = errors.New("not a participant")
	// ErrEmptyContent is returned when message content is empty after trimming.
	ErrEmptyContent = errors.New("empty content")
	// ErrConversationNotFound is returned for unknown conversation ids.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Conversation is the unique channel between two identities. For any
// unordered pair of ids at most one conversation exists; the pair key
// enforces that at the storage layer.
type Conversation struct {
	ID           string
	PairKey      string
	ParticipantA string
	ParticipantB string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id string) bool {
	return id == c.ParticipantA || id == c.ParticipantB
}

// Peer returns the other participant relative to id.
func (c *Conversation) Peer(id string) string {
	if id == c.ParticipantA {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message is a persisted chat message. Append-only: nothing but the read
// flag ever changes after insert. The autoincrement ID is the tie-break for
// same-timestamp sends, so (CreatedAt, ID) is a total order per conversation.
type Message struct {
	ID             int64
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	IsRead         bool
}

// PairKey returns the normalized, order-independent key for an unordered
// pair of identity ids: "pair:{lo}:{hi}". Both argument orders map to the
// same key, which is what collapses concurrent find-or-create calls from
// the two participants into a single row.
func PairKey(idA, idB string) string {
	lo, hi := idA, idB
	if hi < lo {
		lo, hi = hi, lo
	}
	return "pair:" + lo + ":" + hi
}

// ConversationStore owns conversation records and the one-per-pair invariant.
type ConversationStore interface {
	// FindOrCreateConversation returns the conversation for the unordered
	// pair {idA, idB}, creating it if absent. Safe under concurrent calls
	// with either argument order. Fails with ErrInvalidParticipants when
	// idA == idB or either id is blank.
	FindOrCreateConversation(ctx context.Context, idA, idB string) (*Conversation, error)

	// GetConversation retrieves a conversation by id.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns all conversations where id is a participant,
	// most recently active first.
	ListConversations(ctx context.Context, id string) ([]*Conversation, error)

	// TouchConversation bumps updated_at to ts. A ts earlier than the stored
	// value is a no-op: activity time never moves backward.
	TouchConversation(ctx context.Context, conversationID string, ts time.Time) error
}

// MessageStore owns ordered, append-only messages scoped to a conversation.
type MessageStore interface {
	// AppendMessage validates the sender and content, stores the message
	// with a monotonically non-decreasing created_at, and bumps the owning
	// conversation's updated_at.
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*Message, error)

	// ListMessages returns the full history of a conversation in send order
	// (ascending when asc is true).
	ListMessages(ctx context.Context, conversationID string, asc bool) ([]*Message, error)

	// MarkRead flags every message in the conversation not sent by viewerID
	// as read.
	MarkRead(ctx context.Context, conversationID, viewerID string) error

	// CountUnread returns the number of unread messages in the conversation
	// addressed to viewerID.
	CountUnread(ctx context.Context, conversationID, viewerID string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
