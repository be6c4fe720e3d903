package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/auth"
	"github.com/tradeloop/convocore/internal/config"
	"github.com/tradeloop/convocore/internal/service/conversations"
)

// NewServer builds the HTTP server: a public token endpoint, authenticated
// conversation routes, and the live channel.
func NewServer(svc *conversations.Service, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	tokenHandlers := NewTokenHandlers(authService, logger)
	router.POST("/api/token", tokenHandlers.IssueToken)

	convHandlers := NewConversationHandlers(svc, logger)
	wsHandler := NewWSHandler(svc, logger)

	authed := router.Group("/")
	authed.Use(AuthMiddleware(authService, logger))
	{
		authed.POST("/api/conversations", convHandlers.OpenConversation)
		authed.GET("/api/conversations", convHandlers.ListConversations)
		authed.POST("/api/conversations/:id/messages", convHandlers.SendMessage)
		authed.GET("/api/conversations/:id/messages", convHandlers.ListMessages)
		authed.POST("/api/conversations/:id/read", convHandlers.MarkRead)
		authed.POST("/api/support", convHandlers.ContactSupport)

		authed.GET("/ws/conversations/:id", wsHandler.Serve)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
