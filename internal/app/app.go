package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/auth"
	"github.com/vovakirdan/roompool/internal/config"
	"github.com/vovakirdan/roompool/internal/core"
	"github.com/vovakirdan/roompool/internal/events"
	"github.com/vovakirdan/roompool/internal/metrics"
	"github.com/vovakirdan/roompool/internal/platform"
	"github.com/vovakirdan/roompool/internal/platform/livekit"
	"github.com/vovakirdan/roompool/internal/platform/memory"
	"github.com/vovakirdan/roompool/internal/service/rooms"
	"github.com/vovakirdan/roompool/internal/store"
	"github.com/vovakirdan/roompool/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roompool/internal/transport/http"
)

// App wires together the pool, its collaborators and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	pool            *core.Pool
	store           store.Store
	redis           *redis.Client
	source          *events.RedisSource
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	client, err := NewPlatform(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	logger.Info().Str("driver", cfg.Platform.Driver).Msg("chat platform configured")

	sink := metrics.NewPrometheus(cfg.Metrics.Namespace)
	registry := rooms.New(st)

	pool, err := core.NewPool(ctx, registry, client, sink, logger, PoolOptions(cfg))
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init pool: %w", err)
	}
	a.pool = pool

	if cfg.Events.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Events.Redis.URL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.source = events.NewRedisSource(a.redis, cfg.Events.Redis.Channel, logger)
	}

	authService := auth.NewService(JWTConfig(cfg))
	if cfg.Admin.JWTSecret == config.DefaultJWTSecret {
		logger.Warn().Msg("admin.jwt_secret is the default placeholder, change it before exposing the server")
	}

	deps := transporthttp.Deps{
		Pool:     pool,
		Registry: registry,
		Auth:     authService,
		Metrics:  sink.Handler(),
	}
	if redeemer, ok := client.(platform.InviteRedeemer); ok {
		deps.Invites = redeemer
	}
	a.server = transporthttp.NewServer(deps, cfg, logger)

	return a, nil
}

// NewPlatform builds the configured chat platform driver.
func NewPlatform(cfg *config.Config) (platform.Client, error) {
	switch cfg.Platform.Driver {
	case "memory":
		return memory.New(cfg.Platform.BaseURL), nil
	case "livekit":
		lk := cfg.Platform.LiveKit
		client, err := livekit.New(livekit.Config{
			URL:         lk.URL,
			APIKey:      lk.APIKey,
			APISecret:   lk.APISecret,
			JoinBaseURL: lk.JoinBaseURL,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("init livekit: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown platform driver %q", cfg.Platform.Driver)
	}
}

// PoolOptions maps configuration onto pool options.
func PoolOptions(cfg *config.Config) core.Options {
	opts := core.DefaultOptions()
	if cfg.Pool.OccupantRole != "" {
		opts.OccupantRole = cfg.Pool.OccupantRole
	}
	if cfg.Pool.ChannelName != "" {
		opts.ChannelName = cfg.Pool.ChannelName
	}
	if cfg.Pool.ResolveAttempts > 0 {
		opts.Resolve.Attempts = cfg.Pool.ResolveAttempts
	}
	if cfg.Pool.ResolveDelay > 0 {
		opts.Resolve.Delay = cfg.Pool.ResolveDelay
	}
	if cfg.Pool.CleanupTimeout > 0 {
		opts.CleanupTimeout = cfg.Pool.CleanupTimeout
	}
	return opts
}

// JWTConfig maps configuration onto admin token settings.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Admin.JWTSecret),
		Issuer:   cfg.Admin.JWTIssuer,
		Audience: cfg.Admin.JWTAudience,
		TTL:      cfg.Admin.TokenTTL,
	}
}

// Pool exposes the room pool.
func (a *App) Pool() *core.Pool {
	return a.pool
}

// Run starts the HTTP server and the event subscription, blocking until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.source != nil {
		go func() {
			if err := a.source.Run(ctx, a.pool.OnMemberJoin); err != nil {
				a.log.Error().Err(err).Msg("member join subscription stopped")
			}
		}()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting roompool server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
