package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/platform"
)

// JoinHandlers exchanges invite links for platform join credentials.
type JoinHandlers struct {
	invites platform.InviteRedeemer
	log     *zerolog.Logger
}

// NewJoinHandlers creates a new join handlers instance.
func NewJoinHandlers(invites platform.InviteRedeemer, logger *zerolog.Logger) *JoinHandlers {
	return &JoinHandlers{invites: invites, log: logger}
}

// JoinQuery holds the query parameters of an invite link.
type JoinQuery struct {
	Room     string `form:"room" binding:"required"`
	Invite   string `form:"invite" binding:"required"`
	Identity string `form:"identity" binding:"required,max=64"`
}

// Join redeems an invite code. The invite code is the credential, so the route is public.
// GET /join?room=<space>&invite=<code>&identity=<user>
func (h *JoinHandlers) Join(c *gin.Context) {
	var q JoinQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "room, invite and identity are required"})
		return
	}

	info, err := h.invites.RedeemInvite(c.Request.Context(), q.Room, q.Invite, q.Identity)
	if err != nil {
		if errors.Is(err, platform.ErrInviteNotFound) || errors.Is(err, platform.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invite not found"})
			return
		}
		h.log.Error().Err(err).Str("space_id", q.Room).Msg("failed to redeem invite")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "could not redeem invite"})
		return
	}

	h.log.Info().Str("space_id", info.SpaceID).Str("identity", info.Identity).Msg("invite redeemed")
	c.JSON(http.StatusOK, info)
}
