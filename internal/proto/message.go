package proto

// Envelope types for the live channel. The stream is server-to-client only;
// sends go through the REST API.
const (
	OutboundTypeMessage = "message"
	OutboundTypeError   = "error"
)

// Outbound is the envelope for frames sent to a live-channel client.
type Outbound struct {
	Type    string        `json:"type"`
	Message *MessageEvent `json:"message,omitempty"`
	Error   *Error        `json:"error,omitempty"`
}

// MessageEvent is a newly appended message as seen on the live channel.
type MessageEvent struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
	IsRead         bool   `json:"is_read"`
}

// Error describes a protocol-level error frame.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
