// Command ws_tail follows a conversation's live channel and prints each
// message event, for manual smoke testing against a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tradeloop/convocore/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_tail: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "ws://localhost:8080", "server base URL")
	conversation := flag.String("conversation", "", "conversation id to follow")
	token := flag.String("token", "", "bearer token from /api/token")
	timeout := flag.Duration("timeout", time.Minute, "total timeout for the run")
	flag.Parse()

	if *conversation == "" || *token == "" {
		return fmt.Errorf("both -conversation and -token are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := fmt.Sprintf("%s/ws/conversations/%s?token=%s", *base, *conversation, *token)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch out.Type {
		case proto.OutboundTypeMessage:
			if out.Message != nil {
				fmt.Printf("[%s] %s: %s\n",
					time.UnixMilli(out.Message.CreatedAt).Format(time.RFC3339),
					out.Message.SenderID,
					out.Message.Content,
				)
			}
		case proto.OutboundTypeError:
			if out.Error != nil {
				fmt.Printf("error %s: %s\n", out.Error.Code, out.Error.Msg)
			}
		}
	}
}
