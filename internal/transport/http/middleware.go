package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/auth"
)

const (
	// ContextKeyIdentityID is the context key for the calling identity id.
	ContextKeyIdentityID = "identity_id"
	// ContextKeyRole is the context key for the calling identity's role.
	ContextKeyRole = "role"
)

// AuthMiddleware creates a middleware that validates bearer tokens. Browser
// WebSocket clients cannot set headers, so a `token` query parameter is
// accepted as a fallback.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug().Msg("invalid authorization header format")
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
		}

		if token == "" {
			logger.Debug().Msg("missing credentials")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing credentials"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyIdentityID, claims.IdentityID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// callerIdentity extracts the authenticated identity id from the gin context.
func callerIdentity(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyIdentityID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
