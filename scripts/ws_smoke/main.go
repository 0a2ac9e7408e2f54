package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomchat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080/ws", "WebSocket base address")
	user := flag.String("user", "tester", "username to set")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := strings.TrimRight(*base, "/") + "/" + *room
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var history proto.Frame
	if err := wsjson.Read(ctx, conn, &history); err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if history.Type != proto.TypeHistory {
		return fmt.Errorf("expected History frame first, got %s", history.Type)
	}
	fmt.Printf("History: %d messages\n", len(history.Messages))

	for _, line := range []string{"/user " + *user, *text} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
			return fmt.Errorf("send %q: %w", line, err)
		}
	}

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received frame: type=%s\n", frame.Type)
		switch frame.Type {
		case proto.TypeError:
			return fmt.Errorf("server error %s: %s", frame.Code, frame.Reason)
		case proto.TypeNewMessage:
			if frame.Username != *user || frame.Content != *text {
				continue
			}
			fmt.Printf("NewMessage: room=%s seq=%d user=%s text=%q ts=%s\n",
				*room, frame.Seq, frame.Username, frame.Content, frame.Timestamp.Format(time.RFC3339))
			return nil
		case proto.TypeUserJoined:
			fmt.Printf("Join: user=%s\n", frame.Username)
		case proto.TypeUserLeft:
			fmt.Printf("Left: user=%s\n", frame.Username)
		}
	}
}
