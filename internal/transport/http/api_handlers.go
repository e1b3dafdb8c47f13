package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/proto"
)

// maxHistoryLimit caps the limit a caller may ask for.
const maxHistoryLimit = 1000

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	deps         Deps
	historyLimit int
	log          *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(deps Deps, historyLimit int, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		deps:         deps,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryQuery are the query parameters of the history endpoint.
type HistoryQuery struct {
	Room   string `form:"room" binding:"max=128"`
	Before string `form:"before"`
	Limit  *int   `form:"limit" binding:"omitempty,min=0,max=1000"`
}

// HistoryResponse is the body of the history endpoint.
type HistoryResponse struct {
	Room     string                 `json:"room"`
	Before   string                 `json:"before"`
	Messages []proto.MessagePayload `json:"messages"`
}

// RoomResponse describes a private room in stats.
type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// StatsResponse is the body of the stats endpoint.
type StatsResponse struct {
	Connections int            `json:"connections"`
	Global      int            `json:"global"`
	Rooms       []RoomResponse `json:"rooms"`
}

// OnlineUsers returns the current online list.
// GET /api/online-users
func (h *APIHandlers) OnlineUsers(c *gin.Context) {
	online, err := h.deps.Presence.ListOnline(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list online users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, onlineUsers(online))
}

// History returns messages of a room created before a point in time.
// An empty room selects the lobby.
// GET /api/rooms/history?room=&before=&limit=
func (h *APIHandlers) History(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid history request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters"})
		return
	}

	before := time.Now()
	if q.Before != "" {
		parsed, err := parseBefore(q.Before)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "before must be RFC 3339 or unix milliseconds"})
			return
		}
		before = parsed
	}

	limit := h.historyLimit
	if q.Limit != nil {
		limit = *q.Limit
	}
	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := h.deps.Events.QueryBefore(c.Request.Context(), q.Room, before, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", core.RoomLabel(q.Room)).Msg("failed to query history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Room:     q.Room,
		Before:   proto.FormatTime(before),
		Messages: messagePayloads(messages),
	})
}

// Stats reports live connection and room counts.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	reg := h.deps.Registry
	c.JSON(http.StatusOK, StatsResponse{
		Connections: reg.ConnectionCount(),
		Global:      reg.GlobalCount(),
		Rooms: append([]RoomResponse{}, lo.Map(reg.Rooms(), func(r core.RoomStats, _ int) RoomResponse {
			return RoomResponse{Name: r.Name, Members: r.Members}
		})...),
	})
}

// parseBefore accepts the same forms as a message createdAt.
func parseBefore(raw string) (time.Time, error) {
	quoted, err := json.Marshal(raw)
	if err != nil {
		return time.Time{}, err
	}
	var ts proto.Timestamp
	if err := json.Unmarshal(quoted, &ts); err != nil {
		return time.Time{}, err
	}
	return ts.Time, nil
}
