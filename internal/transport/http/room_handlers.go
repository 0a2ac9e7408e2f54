package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ErrorResponse is the JSON body of a failed REST call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomHandlers provides read-only HTTP endpoints for rooms and their history.
type RoomHandlers struct {
	hub   *core.Hub
	store store.MessageStore
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, st store.MessageStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// RoomResponse represents a live room in API responses.
type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
	Cached  int    `json:"cached"`
	LastSeq int64  `json:"last_seq"`
}

// MessagesResponse is one page of persisted room history, oldest-first.
type MessagesResponse struct {
	Room     string             `json:"room"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Total    int64              `json:"total"`
	Messages []proto.NewMessage `json:"messages"`
}

// ListRooms handles listing rooms that currently have members.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	infos := h.hub.Rooms()

	response := make([]RoomResponse, 0, len(infos))
	for _, info := range infos {
		response = append(response, RoomResponse{
			Name:    info.Name,
			Members: info.Members,
			Cached:  info.Cached,
			LastSeq: info.LastSeq,
		})
	}

	h.log.Debug().Int("room_count", len(response)).Msg("rooms listed")
	c.JSON(http.StatusOK, response)
}

// ListMessages handles paginated persisted history.
// GET /api/rooms/:room/messages?page=1&page_size=50
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	room := c.Param("room")
	if err := core.ValidateRoomName(room); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	page, ok := positiveQuery(c, "page", 1)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "page must be a positive integer"})
		return
	}
	pageSize, ok := positiveQuery(c, "page_size", defaultPageSize)
	if !ok || pageSize > maxPageSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "page_size must be within 1..100"})
		return
	}

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history storage is disabled"})
		return
	}

	ctx := c.Request.Context()
	total, err := h.store.CountMessages(ctx, room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to count messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	rows, err := h.store.QueryPage(ctx, room, page, pageSize)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Int("page", page).Msg("failed to load messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	messages := make([]proto.NewMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, proto.NewMessage{
			Type:      proto.TypeNewMessage,
			Username:  row.Username,
			Content:   row.Body,
			Timestamp: row.CreatedAt,
			Seq:       row.Seq,
		})
	}

	c.JSON(http.StatusOK, MessagesResponse{
		Room:     room,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Messages: messages,
	})
}

func positiveQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
