package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

type testEnv struct {
	ts       *httptest.Server
	server   *Server
	hub      *core.Hub
	shutdown context.CancelFunc
}

// startTestServer runs the full router on an httptest server. Cancelling
// env.shutdown behaves like a server shutdown for live sessions.
func startTestServer(t *testing.T, st store.MessageStore, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	if mutate != nil {
		mutate(&cfg)
	}

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(st, core.Options{CacheSize: cfg.Chat.CacheSize}, &disabledLogger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	baseCtx, shutdown := context.WithCancel(context.Background())
	server := NewServer(baseCtx, hub, st, &cfg, &disabledLogger)

	ts := httptest.NewUnstartedServer(server.Handler)
	ts.Config.BaseContext = server.BaseContext
	ts.Start()

	t.Cleanup(func() {
		shutdown()
		ts.Close()
		hubCancel()
	})

	return &testEnv{ts: ts, server: server, hub: hub, shutdown: shutdown}
}

func (e *testEnv) wsURL(room string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/" + room
}

// dial connects to room and consumes the initial History frame.
func (e *testEnv) dial(t *testing.T, ctx context.Context, room string) (*websocket.Conn, proto.Frame) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(room), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", room, err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	first := readFrame(t, ctx, conn)
	if first.Type != proto.TypeHistory {
		t.Fatalf("expected initial History frame, got %+v", first)
	}
	return conn, first
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Frame {
	t.Helper()

	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) proto.Frame {
	t.Helper()

	for range 100 {
		frame := readFrame(t, ctx, conn)
		if frame.Type == typ {
			return frame
		}
	}
	t.Fatalf("no %s frame received", typ)
	return proto.Frame{}
}

// expectSilence asserts nothing arrives within wait. The read deadline closes conn.
func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err == nil {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}
