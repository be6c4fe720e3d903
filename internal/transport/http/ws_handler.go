package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/hub"
	"github.com/tradeloop/convocore/internal/proto"
	"github.com/tradeloop/convocore/internal/service/conversations"
)

// WSHandler upgrades HTTP connections into live-channel subscriptions. The
// stream is server-to-client only; a client that reconnects re-reads history
// over REST to fill any gap.
type WSHandler struct {
	svc *conversations.Service
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(svc *conversations.Service, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{svc: svc, log: logger}
}

// Serve subscribes the caller to a conversation's live channel.
// GET /ws/conversations/:id
func (h *WSHandler) Serve(c *gin.Context) {
	selfID, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID := c.Param("id")
	println("ZZDEBUG Serve: self=", selfID, " conv=", conversationID)
	sub, err := h.svc.Subscribe(c.Request.Context(), selfID, conversationID)
	if err != nil {
		status, resp := mapDomainError(err)
		c.JSON(status, resp)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		sub.Close()
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	defer sub.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sub)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			// Late failures here mean a viewer went away mid-delivery; the
			// message is already durable, so this never reaches the sender.
			h.log.Warn().Err(err).Str("conversation_id", conversationID).Str("viewer_id", selfID).Msg("live channel closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop discards inbound frames; its only job is to notice disconnects.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *hub.Subscription) error {
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			out := proto.Outbound{
				Type:    proto.OutboundTypeMessage,
				Message: messageEvent(msg),
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
