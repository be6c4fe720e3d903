package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/service/conversations"
)

// ConversationHandlers provides HTTP handlers for the conversation endpoints.
type ConversationHandlers struct {
	svc *conversations.Service
	log *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *conversations.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		svc: svc,
		log: logger,
	}
}

// OpenConversationRequest represents the open conversation request body.
type OpenConversationRequest struct {
	TargetID string `json:"target_id" binding:"required"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// OpenConversation finds or creates the conversation with a target identity.
// POST /api/conversations
func (h *ConversationHandlers) OpenConversation(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid open conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.svc.OpenWith(c.Request.Context(), selfID, req.TargetID)
	if err != nil {
		status, resp := mapDomainError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("self_id", selfID).Str("target_id", req.TargetID).Msg("failed to open conversation")
		}
		c.JSON(status, resp)
		return
	}

	h.log.Info().Str("conversation_id", conv.ID).Str("self_id", selfID).Str("target_id", req.TargetID).Msg("conversation opened")
	c.JSON(http.StatusOK, conversationResponse(conv))
}

// ListConversations lists the caller's conversations, most recent first.
// GET /api/conversations
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	summaries, err := h.svc.ListConversations(c.Request.Context(), selfID)
	if err != nil {
		h.log.Error().Err(err).Str("self_id", selfID).Msg("failed to list conversations")
		status, resp := mapDomainError(err)
		c.JSON(status, resp)
		return
	}

	response := make([]ConversationResponse, 0, len(summaries))
	for _, s := range summaries {
		response = append(response, summaryResponse(s))
	}

	c.JSON(http.StatusOK, response)
}

// SendMessage appends a message to a conversation and fans it out live.
// POST /api/conversations/:id/messages
func (h *ConversationHandlers) SendMessage(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message content is empty", Code: ErrCodeEmptyContent})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), selfID, c.Param("id"), req.Content)
	if err != nil {
		status, resp := mapDomainError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("conversation_id", c.Param("id")).Str("self_id", selfID).Msg("failed to send message")
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusCreated, messageResponse(msg))
}

// ListMessages returns the full history of a conversation in send order.
// GET /api/conversations/:id/messages
func (h *ConversationHandlers) ListMessages(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messages, err := h.svc.ListMessages(c.Request.Context(), selfID, c.Param("id"))
	if err != nil {
		status, resp := mapDomainError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("conversation_id", c.Param("id")).Msg("failed to list messages")
		}
		c.JSON(status, resp)
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messageResponse(msg))
	}

	c.JSON(http.StatusOK, response)
}

// MarkRead flags the peer's messages in a conversation as read.
// POST /api/conversations/:id/read
func (h *ConversationHandlers) MarkRead(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), selfID, c.Param("id")); err != nil {
		status, resp := mapDomainError(err)
		c.JSON(status, resp)
		return
	}

	c.Status(http.StatusNoContent)
}

// ContactSupport opens (or returns) the caller's conversation with support.
// POST /api/support
func (h *ConversationHandlers) ContactSupport(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conv, err := h.svc.ContactSupport(c.Request.Context(), selfID)
	if err != nil {
		status, resp := mapDomainError(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("self_id", selfID).Msg("failed to contact support")
		}
		c.JSON(status, resp)
		return
	}

	h.log.Info().Str("conversation_id", conv.ID).Str("self_id", selfID).Msg("support conversation opened")
	c.JSON(http.StatusOK, conversationResponse(conv))
}
