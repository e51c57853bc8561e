package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roompool/internal/config"
	"github.com/vovakirdan/roompool/internal/platform/livekit"
	"github.com/vovakirdan/roompool/internal/platform/memory"
)

func TestNewPlatformSelectsDriver(t *testing.T) {
	cfg := config.Default()

	client, err := NewPlatform(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &memory.Platform{}, client)

	cfg.Platform.Driver = "livekit"
	cfg.Platform.LiveKit.APIKey = "key"
	cfg.Platform.LiveKit.APISecret = "secret"
	client, err = NewPlatform(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &livekit.Client{}, client)

	cfg.Platform.Driver = "carrier-pigeon"
	_, err = NewPlatform(&cfg)
	assert.Error(t, err)
}

func TestPoolOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.OccupantRole = "Wolf"
	cfg.Pool.ChannelName = "wolfchat"
	cfg.Pool.ResolveAttempts = 7
	cfg.Pool.ResolveDelay = time.Second
	cfg.Pool.CleanupTimeout = time.Minute

	opts := PoolOptions(&cfg)
	assert.Equal(t, "Wolf", opts.OccupantRole)
	assert.Equal(t, "wolfchat", opts.ChannelName)
	assert.Equal(t, 7, opts.Resolve.Attempts)
	assert.Equal(t, time.Second, opts.Resolve.Delay)
	assert.Equal(t, time.Minute, opts.CleanupTimeout)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "roompool.db")
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, &cfg, &logger)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Pool().AvailableCount())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
