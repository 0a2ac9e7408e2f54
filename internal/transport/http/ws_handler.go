package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/utils"
)

const drainTimeout = 500 * time.Millisecond

// SessionOptions tunes websocket sessions.
type SessionOptions struct {
	QueueSize          int
	HistoryLimit       int
	DefaultHistory     int
	RateLimitPerMinute int
	MaxFrameBytes      int64
}

// WSHandler upgrades HTTP connections and runs one session per socket.
type WSHandler struct {
	hub  *core.Hub
	opts SessionOptions
	log  *zerolog.Logger

	// http.Server.Shutdown does not wait for hijacked connections, so live
	// sessions are counted here.
	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, opts SessionOptions, logger *zerolog.Logger) *WSHandler {
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > core.MaxHistoryLimit {
		opts.HistoryLimit = core.MaxHistoryLimit
	}
	if opts.DefaultHistory <= 0 {
		opts.DefaultHistory = core.DefaultCacheSize
	}
	return &WSHandler{hub: hub, opts: opts, log: logger}
}

// MissingRoom rejects /ws without a room segment.
func (h *WSHandler) MissingRoom(c *gin.Context) {
	c.JSON(stdhttp.StatusBadRequest, errorFrame(core.ValidationError("room name is required")))
}

// Handle serves GET /ws/:room.
func (h *WSHandler) Handle(c *gin.Context) {
	room := c.Param("room")
	if err := core.ValidateRoomName(room); err != nil {
		c.JSON(stdhttp.StatusBadRequest, errorFrame(err))
		return
	}

	if !h.track() {
		c.JSON(stdhttp.StatusServiceUnavailable, errorFrame(&core.CoreError{
			Code:    "unavailable",
			Message: "server is shutting down",
		}))
		return
	}
	defer h.sessions.Done()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.opts.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.opts.MaxFrameBytes)
	}

	client := core.NewClient(utils.NewClientID(), h.opts.QueueSize)
	logger := h.log.With().Str("client_id", client.ID).Str("room", room).Logger()
	s := &session{
		hub:    h.hub,
		conn:   conn,
		client: client,
		room:   room,
		opts:   h.opts,
		log:    &logger,
	}
	s.serve(c.Request.Context())
}

func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.sessions.Add(1)
	return true
}

// Wait refuses new sessions and blocks until the live ones have ended or ctx is done.
func (h *WSHandler) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session bridges one websocket to the hub.
type session struct {
	hub     *core.Hub
	conn    *websocket.Conn
	client  *core.Client
	room    string
	opts    SessionOptions
	limiter *rateLimiter
	log     *zerolog.Logger

	state     sessionState
	leaveOnce sync.Once
}

func (s *session) serve(parent context.Context) {
	defer s.state.advance(StateClosed)

	res, err := s.hub.Join(parent, s.room, s.client)
	if err != nil {
		s.log.Warn().Err(err).Msg("join rejected")
		_ = wsjson.Write(parent, s.conn, errorFrame(err))
		s.conn.Close(websocket.StatusPolicyViolation, "join rejected")
		return
	}
	s.state.advance(StateAwaitingUsername)
	defer s.leave()

	s.limiter = newRateLimiter(s.opts.RateLimitPerMinute)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	s.limiter.startReset(stop)

	// A cancelled read context makes the library close the socket with
	// PolicyViolation, so reads only end when the connection does.
	readCtx := context.WithoutCancel(parent)

	readErr := make(chan error, 1)
	writeErr := make(chan error, 1)
	go func() {
		readErr <- s.readLoop(readCtx)
	}()
	go func() {
		writeErr <- s.writeLoop(ctx, res.History)
	}()

	var readDone, writeDone bool
	select {
	case err = <-readErr:
		readDone = true
	case err = <-writeErr:
		writeDone = true
	}
	s.state.advance(StateClosing)
	cancel()
	if !writeDone {
		<-writeErr
	}

	s.leave()
	s.drain()

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case parent.Err() != nil:
		status = websocket.StatusGoingAway
		reason = "server shutting down"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if code := websocket.CloseStatus(err); code != -1 {
			status = code
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "transport error"
			s.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	_ = s.conn.Close(status, reason)
	if !readDone {
		<-readErr
	}
	s.log.Info().Uint64("dropped", s.client.Dropped()).Msg("session closed")
}

// leave deregisters from the hub exactly once.
func (s *session) leave() {
	s.leaveOnce.Do(func() {
		s.hub.Leave(s.room, s.client.ID)
	})
}

// drain writes whatever is still queued, best-effort.
func (s *session) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev := <-s.client.Events:
			if err := wsjson.Write(ctx, s.conn, outboundFromEvent(ev)); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: read frame: %w", core.ErrTransport, err)
		}

		if !s.limiter.allow() {
			if err := s.reply(ctx, errorFrame(&core.CoreError{
				Code:    "rate_limited",
				Message: "too many messages, slow down",
				Err:     core.ErrValidation,
			})); err != nil {
				return err
			}
			continue
		}

		cmd, err := proto.ParseInbound(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("bad inbound frame")
			if err := s.reply(ctx, errorFrame(parseError(err))); err != nil {
				return err
			}
			continue
		}

		if err := s.dispatch(ctx, cmd); err != nil {
			return err
		}
	}
}

// dispatch runs one command. Only transport failures are returned; domain
// errors become Error frames and the session keeps going.
func (s *session) dispatch(ctx context.Context, cmd proto.Command) error {
	switch cmd.Kind {
	case proto.CommandSetUsername:
		if err := s.hub.SetUsername(s.client.ID, s.room, cmd.Username); err != nil {
			return s.reply(ctx, errorFrame(err))
		}
		s.state.advance(StateActive)
		return nil

	case proto.CommandChat:
		if _, err := s.hub.SendMessage(s.room, s.client.ID, cmd.Content); err != nil {
			if errors.Is(err, core.ErrNotMember) && s.state.load() < StateClosing {
				s.log.Error().Err(err).Msg("active session is not a room member")
			}
			return s.reply(ctx, errorFrame(err))
		}
		return nil

	case proto.CommandHistory:
		limit := cmd.Limit
		if limit == 0 {
			limit = s.opts.DefaultHistory
		}
		msgs, err := s.hub.LoadHistory(ctx, s.room, min(limit, s.opts.HistoryLimit))
		if err != nil {
			return s.reply(ctx, errorFrame(err))
		}
		return s.reply(ctx, historyFrame(msgs))

	default:
		return nil
	}
}

func (s *session) reply(ctx context.Context, v any) error {
	if err := wsjson.Write(ctx, s.conn, v); err != nil {
		return fmt.Errorf("%w: write reply: %w", core.ErrTransport, err)
	}
	return nil
}

func (s *session) writeLoop(ctx context.Context, history []core.ChatMessage) error {
	if err := wsjson.Write(ctx, s.conn, historyFrame(history)); err != nil {
		return fmt.Errorf("%w: write history: %w", core.ErrTransport, err)
	}

	for {
		select {
		case event := <-s.client.Events:
			if err := wsjson.Write(ctx, s.conn, outboundFromEvent(event)); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error().Err(err).Msg("write ws event")
				return fmt.Errorf("%w: write event: %w", core.ErrTransport, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
