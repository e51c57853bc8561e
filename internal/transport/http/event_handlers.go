package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/core"
)

// EventHandlers accepts membership events pushed by the platform.
type EventHandlers struct {
	pool *core.Pool
	log  *zerolog.Logger
}

// NewEventHandlers creates a new event handlers instance.
func NewEventHandlers(pool *core.Pool, logger *zerolog.Logger) *EventHandlers {
	return &EventHandlers{pool: pool, log: logger}
}

// MemberJoinRequest represents a member-join webhook body.
type MemberJoinRequest struct {
	SpaceID string `json:"space_id" binding:"required"`
	UserID  string `json:"user_id" binding:"required"`
}

// MemberJoin applies the access gate for a user who joined a space.
// POST /api/events/member-join
func (h *EventHandlers) MemberJoin(c *gin.Context) {
	var req MemberJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid member join event")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.pool.OnMemberJoin(c.Request.Context(), core.MemberJoin{SpaceID: req.SpaceID, UserID: req.UserID})
	c.Status(http.StatusAccepted)
}
