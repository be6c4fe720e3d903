package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/tradeloop/convocore/internal/proto"
	"github.com/tradeloop/convocore/internal/service/conversations"
	"github.com/tradeloop/convocore/internal/store"
)

// Error codes returned on the wire.
const (
	ErrCodeInvalidParticipants  = "invalid_participants"
	ErrCodeEmptyContent         = "empty_content"
	ErrCodeNotAParticipant      = "not_a_participant"
	ErrCodeNoSupportAvailable   = "no_support_available"
	ErrCodeStorageUnavailable   = "storage_unavailable"
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeNotAViewer           = "not_a_viewer"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID           string       `json:"id"`
	ParticipantA string       `json:"participant_a"`
	ParticipantB string       `json:"participant_b"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
	Peer         *PeerProfile `json:"peer,omitempty"`
	Unread       int64        `json:"unread,omitempty"`
}

// PeerProfile is the other participant's directory profile.
type PeerProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	IsRead         bool   `json:"is_read"`
}

func conversationResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:           conv.ID,
		ParticipantA: conv.ParticipantA,
		ParticipantB: conv.ParticipantB,
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    conv.UpdatedAt.Format(time.RFC3339),
	}
}

func summaryResponse(s *conversations.Summary) ConversationResponse {
	resp := conversationResponse(s.Conversation)
	resp.Unread = s.Unread
	if s.Peer != nil {
		resp.Peer = &PeerProfile{
			ID:          s.Peer.ID,
			DisplayName: s.Peer.DisplayName,
			AvatarURL:   s.Peer.AvatarURL,
			Role:        string(s.Peer.Role),
		}
	}
	return resp
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
		IsRead:         msg.IsRead,
	}
}

func messageEvent(msg *store.Message) *proto.MessageEvent {
	return &proto.MessageEvent{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.UnixMilli(),
		IsRead:         msg.IsRead,
	}
}

// mapDomainError translates a service or store error into an HTTP status and
// wire code. Unknown errors map to a plain 500.
func mapDomainError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, store.ErrInvalidParticipants):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid participants", Code: ErrCodeInvalidParticipants}
	case errors.Is(err, store.ErrEmptyContent):
		return http.StatusBadRequest, ErrorResponse{Error: "message content is empty", Code: ErrCodeEmptyContent}
	case errors.Is(err, store.ErrNotAParticipant):
		return http.StatusForbidden, ErrorResponse{Error: "not a participant of this conversation", Code: ErrCodeNotAParticipant}
	case errors.Is(err, conversations.ErrNotAViewer):
		return http.StatusForbidden, ErrorResponse{Error: "not a viewer of this conversation", Code: ErrCodeNotAViewer}
	case errors.Is(err, store.ErrConversationNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "conversation not found", Code: ErrCodeConversationNotFound}
	case errors.Is(err, conversations.ErrNoSupportAvailable):
		return http.StatusNotFound, ErrorResponse{Error: "no support identity available", Code: ErrCodeNoSupportAvailable}
	case errors.Is(err, conversations.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: ErrCodeStorageUnavailable}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}
