package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/core"
	"github.com/vovakirdan/roompool/internal/service/rooms"
)

// RoomHandlers provides HTTP handlers for private room management.
type RoomHandlers struct {
	pool            *core.Pool
	registry        *rooms.Service
	checkoutTimeout time.Duration
	log             *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(pool *core.Pool, registry *rooms.Service, checkoutTimeout time.Duration, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		pool:            pool,
		registry:        registry,
		checkoutTimeout: checkoutTimeout,
		log:             logger,
	}
}

// RegisterRoomRequest represents the register room request body.
type RegisterRoomRequest struct {
	SpaceID string `json:"space_id" binding:"required,max=128"`
}

// CheckoutRequest represents the checkout request body.
type CheckoutRequest struct {
	Occupants []string `json:"occupants" binding:"required,min=1,dive,required"`
}

// RoomResponse represents a private room in API responses.
type RoomResponse struct {
	Number    int      `json:"number"`
	SpaceID   string   `json:"space_id"`
	State     string   `json:"state"`
	ChannelID string   `json:"channel_id,omitempty"`
	Allowed   []string `json:"allowed_occupants"`
	CreatedAt string   `json:"created_at"`
}

// PoolResponse lists every managed room.
type PoolResponse struct {
	Available int            `json:"available"`
	Rooms     []RoomResponse `json:"rooms"`
}

// CheckoutResponse describes a room handed out for use.
type CheckoutResponse struct {
	Room       RoomResponse `json:"room"`
	InviteLink string       `json:"invite_link,omitempty"`
	JumpLink   string       `json:"jump_link,omitempty"`
}

// RegisteredResponse answers a registration lookup.
type RegisteredResponse struct {
	SpaceID    string `json:"space_id"`
	Registered bool   `json:"registered"`
}

// LinksResponse carries the links into a room's active channel.
type LinksResponse struct {
	InviteLink string `json:"invite_link"`
	JumpLink   string `json:"jump_link"`
}

func roomResponse(room *core.ManagedRoom) RoomResponse {
	resp := RoomResponse{
		Number:    room.Number(),
		SpaceID:   room.SpaceID(),
		State:     room.State().String(),
		Allowed:   room.AllowedOccupants(),
		CreatedAt: room.Record().CreatedAt.Format(time.RFC3339),
	}
	if ch := room.ActiveChannel(); ch != nil {
		resp.ChannelID = ch.ID
	}
	return resp
}

// ListRooms handles listing every private room with its state.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	managed := h.pool.Rooms()

	response := PoolResponse{
		Available: h.pool.AvailableCount(),
		Rooms:     make([]RoomResponse, 0, len(managed)),
	}
	for _, room := range managed {
		response.Rooms = append(response.Rooms, roomResponse(room))
	}

	h.log.Debug().Int("room_count", len(managed)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, response)
}

// RegisterRoom registers an existing platform space as a private room.
// POST /api/rooms
func (h *RoomHandlers) RegisterRoom(c *gin.Context) {
	var req RegisterRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.pool.Add(c.Request.Context(), req.SpaceID)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyRegistered) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "space is already registered"})
			return
		}
		h.log.Error().Err(err).Str("space_id", req.SpaceID).Msg("failed to register room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, roomResponse(room))
}

// IsRegistered reports whether a space is a registered private room.
// GET /api/rooms/:space_id/registered
func (h *RoomHandlers) IsRegistered(c *gin.Context) {
	spaceID := c.Param("space_id")

	registered, err := h.registry.IsRegistered(c.Request.Context(), spaceID)
	if err != nil {
		h.log.Error().Err(err).Str("space_id", spaceID).Msg("failed to look up room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RegisteredResponse{SpaceID: spaceID, Registered: registered})
}

// Checkout takes the next available room and begins usage for the occupants.
// Waits up to the checkout timeout for a room to free up.
// POST /api/rooms/checkout
func (h *RoomHandlers) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid checkout request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	waitCtx := ctx
	if h.checkoutTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, h.checkoutTimeout)
		defer cancel()
	}

	room, err := h.pool.Take(waitCtx)
	if err != nil {
		h.log.Info().Err(err).Msg("no private room became available")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no private room available"})
		return
	}

	if _, err := room.BeginUsage(ctx, req.Occupants); err != nil {
		h.log.Error().Err(err).Int("room_number", room.Number()).Msg("failed to begin usage")
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrAlreadyInUse) {
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{Error: "could not prepare private room"})
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		Room:       roomResponse(room),
		InviteLink: room.InviteLink(ctx),
		JumpLink:   room.JumpLink(ctx),
	})
}

// Links returns the invite and jump links of a room in use.
// GET /api/rooms/:space_id/links
func (h *RoomHandlers) Links(c *gin.Context) {
	room, ok := h.pool.Room(c.Param("space_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	if !room.InUse() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "room is not in use"})
		return
	}

	ctx := c.Request.Context()
	c.JSON(http.StatusOK, LinksResponse{
		InviteLink: room.InviteLink(ctx),
		JumpLink:   room.JumpLink(ctx),
	})
}

// EndUsage checks a room back in. Also the repair path for broken rooms.
// POST /api/rooms/:space_id/end
func (h *RoomHandlers) EndUsage(c *gin.Context) {
	room, ok := h.pool.Room(c.Param("space_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	room.EndUsage(c.Request.Context())

	h.log.Info().Int("room_number", room.Number()).Str("state", room.State().String()).Msg("room checked in")
	c.JSON(http.StatusOK, roomResponse(room))
}
