package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

// Server is the HTTP server plus the websocket sessions it has handed off.
type Server struct {
	*stdhttp.Server

	ws *WSHandler
}

// WaitSessions blocks until every websocket session has left its room, or ctx is done.
// New upgrades are refused from the first call on.
func (s *Server) WaitSessions(ctx context.Context) error {
	return s.ws.Wait(ctx)
}

// NewServer builds the HTTP server: health check, websocket rooms and the REST API.
// baseCtx becomes the parent of every request context, so cancelling it closes
// live websocket sessions on shutdown. A nil baseCtx means context.Background.
func NewServer(baseCtx context.Context, hub *core.Hub, st store.MessageStore, cfg *config.Config, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	ws := NewWSHandler(hub, SessionOptions{
		QueueSize:          cfg.Chat.QueueSize,
		HistoryLimit:       cfg.Chat.HistoryLimit,
		DefaultHistory:     cfg.Chat.CacheSize,
		RateLimitPerMinute: cfg.Chat.RateLimitPerMinute,
		MaxFrameBytes:      cfg.Chat.MaxFrameBytes,
	}, logger)
	router.GET("/ws", ws.MissingRoom)
	router.GET("/ws/:room", ws.Handle)

	rooms := NewRoomHandlers(hub, st, logger)
	api := router.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:room/messages", rooms.ListMessages)
	}

	srv := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	if baseCtx != nil {
		srv.BaseContext = func(net.Listener) context.Context { return baseCtx }
	}
	return &Server{Server: srv, ws: ws}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
