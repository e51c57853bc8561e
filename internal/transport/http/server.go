package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/auth"
	"github.com/vovakirdan/roompool/internal/config"
	"github.com/vovakirdan/roompool/internal/core"
	"github.com/vovakirdan/roompool/internal/platform"
	"github.com/vovakirdan/roompool/internal/service/rooms"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Pool     *core.Pool
	Registry *rooms.Service
	Auth     *auth.Service
	// Metrics serves /metrics when set.
	Metrics stdhttp.Handler
	// Invites serves /join when the platform redeems its own invite links.
	Invites platform.InviteRedeemer
}

// NewServer builds the admin HTTP server.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers all routes on a gin engine.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Invites != nil {
		router.GET("/join", NewJoinHandlers(deps.Invites, logger).Join)
	}

	roomHandlers := NewRoomHandlers(deps.Pool, deps.Registry, cfg.Pool.CheckoutTimeout, logger)
	eventHandlers := NewEventHandlers(deps.Pool, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(deps.Auth, logger))
	{
		api.GET("/rooms", roomHandlers.ListRooms)
		api.POST("/rooms", roomHandlers.RegisterRoom)
		api.POST("/rooms/checkout", roomHandlers.Checkout)
		api.GET("/rooms/:space_id/registered", roomHandlers.IsRegistered)
		api.GET("/rooms/:space_id/links", roomHandlers.Links)
		api.POST("/rooms/:space_id/end", roomHandlers.EndUsage)

		events := api.Group("/events")
		events.Use(RateLimitMiddleware(newRateLimiter(cfg.Events.WebhookRateLimit)))
		events.POST("/member-join", eventHandlers.MemberJoin)
		events.GET("/stream", eventHandlers.Stream)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
