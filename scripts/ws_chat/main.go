package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomchat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080/ws", "WebSocket base address")
	user := flag.String("user", "", "username to set on connect (empty to stay anonymous)")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := strings.TrimRight(*base, "/") + "/" + *room
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *user != "" {
		if err := conn.Write(ctx, websocket.MessageText, []byte("/user "+*user)); err != nil {
			return fmt.Errorf("set username: %w", err)
		}
	}

	fmt.Printf("Connected to %s\n", url)
	fmt.Println("Type messages and press Enter to send. Commands: /user <name>, /history [n]. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		printFrame(frame)
	}
}

func printFrame(frame proto.Frame) {
	switch frame.Type {
	case proto.TypeNewMessage:
		fmt.Printf("[%s] #%d %s: %s\n", frame.Timestamp.Local().Format("15:04:05"), frame.Seq, frame.Username, frame.Content)
	case proto.TypeUserJoined:
		fmt.Printf("* %s joined\n", frame.Username)
	case proto.TypeUserLeft:
		fmt.Printf("* %s left\n", frame.Username)
	case proto.TypeHistory:
		fmt.Printf("--- history (%d) ---\n", len(frame.Messages))
		for _, msg := range frame.Messages {
			fmt.Printf("[%s] #%d %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), msg.Seq, msg.Username, msg.Content)
		}
		fmt.Println("---")
	case proto.TypeError:
		fmt.Printf("! %s (%s)\n", frame.Reason, frame.Code)
	default:
		fmt.Printf("unknown frame type=%s\n", frame.Type)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
