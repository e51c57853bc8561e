package http

import (
	"bytes"
	"context"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/auth"
	"github.com/vovakirdan/roompool/internal/config"
	"github.com/vovakirdan/roompool/internal/core"
	"github.com/vovakirdan/roompool/internal/metrics"
	"github.com/vovakirdan/roompool/internal/platform/memory"
	"github.com/vovakirdan/roompool/internal/service/rooms"
	"github.com/vovakirdan/roompool/internal/store/sqlite"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	deps     Deps
	cfg      config.Config
	platform *memory.Platform
	metrics  *metrics.Prometheus
	token    string
}

// createTestEnv builds an in-memory pool over the given spaces, each owned by "owner".
func createTestEnv(t *testing.T, spaces ...string) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry := rooms.New(st)
	plat := memory.New("https://chat.test")
	ctx := context.Background()
	for _, id := range spaces {
		plat.AddSpace(id, "owner")
		if _, err := registry.Register(ctx, id); err != nil {
			t.Fatalf("failed to register %s: %v", id, err)
		}
	}

	disabledLogger := zerolog.Nop()
	opts := core.DefaultOptions()
	opts.Resolve = core.Retry{Attempts: 1}

	sink := metrics.NewPrometheus("roompool")
	pool, err := core.NewPool(ctx, registry, plat, sink, &disabledLogger, opts)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	authService := createTestAuthService(t, testJWTSecret)
	token, err := authService.IssueToken("ops")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.Pool.CheckoutTimeout = 50 * time.Millisecond
	cfg.Events.WebhookRateLimit = 0

	return &testEnv{
		deps: Deps{
			Pool:     pool,
			Registry: registry,
			Auth:     authService,
			Metrics:  sink.Handler(),
		},
		cfg:      cfg,
		platform: plat,
		metrics:  sink,
		token:    token,
	}
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(jwtConfig)
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// serve runs one JSON request through handler, authenticated with token when set.
func serve(handler stdhttp.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}
