package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/auth"
)

// TokenHandlers provides the token issuance endpoint.
type TokenHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewTokenHandlers creates a new token handlers instance.
func NewTokenHandlers(authService *auth.Service, logger *zerolog.Logger) *TokenHandlers {
	return &TokenHandlers{
		authService: authService,
		log:         logger,
	}
}

// TokenRequest represents the token request body.
type TokenRequest struct {
	IdentityID string `json:"identity_id" binding:"required"`
	AccessKey  string `json:"access_key" binding:"required"`
}

// TokenResponse represents the token response body.
type TokenResponse struct {
	Token string `json:"token"`
}

// IssueToken exchanges an identity id and access key for a bearer token.
// POST /api/token
func (h *TokenHandlers) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.IssueToken(c.Request.Context(), req.IdentityID, req.AccessKey)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("identity_id", req.IdentityID).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}
