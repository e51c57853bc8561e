package core

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/platform"
	"github.com/vovakirdan/roompool/internal/platform/memory"
	"github.com/vovakirdan/roompool/internal/service/rooms"
	"github.com/vovakirdan/roompool/internal/store/sqlite"
)

type recordingSink struct {
	mu     sync.Mutex
	gauges map[string]float64
}

func (s *recordingSink) SetGauge(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gauges == nil {
		s.gauges = make(map[string]float64)
	}
	s.gauges[name] = value
}

func (s *recordingSink) get(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gauges[name]
}

// syncBuffer lets the logger be written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	pool     *Pool
	platform *memory.Platform
	registry *rooms.Service
	sink     *recordingSink
	logs     *syncBuffer
	sleeps   *int
}

// newFixture builds a pool over an in-memory registry and platform.
// Every space is owned by "owner" and registered in order, so spaces[i] gets number i+1.
func newFixture(t *testing.T, spaces ...string) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, spaces...)
}

// newFixtureWith is newFixture with the pool talking to wrap(platform) instead.
func newFixtureWith(t *testing.T, wrap func(*memory.Platform) platform.Client, spaces ...string) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
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

	logs := &syncBuffer{}
	logger := zerolog.New(logs).Level(zerolog.DebugLevel)
	sink := &recordingSink{}

	var sleeps int
	var sleepsMu sync.Mutex
	opts := DefaultOptions()
	opts.Resolve = Retry{
		Attempts: 3,
		Delay:    time.Second,
		Sleep: func(context.Context, time.Duration) error {
			sleepsMu.Lock()
			sleeps++
			sleepsMu.Unlock()
			return nil
		},
	}

	var client platform.Client = plat
	if wrap != nil {
		client = wrap(plat)
	}

	pool, err := NewPool(ctx, registry, client, sink, &logger, opts)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	return &fixture{
		pool:     pool,
		platform: plat,
		registry: registry,
		sink:     sink,
		logs:     logs,
		sleeps:   &sleeps,
	}
}

func (f *fixture) room(t *testing.T, spaceID string) *ManagedRoom {
	t.Helper()
	room, ok := f.pool.Room(spaceID)
	if !ok {
		t.Fatalf("room %s not managed by pool", spaceID)
	}
	return room
}

// takeSpace polls rooms until it gets the one for spaceID, putting the others back.
func (f *fixture) takeSpace(t *testing.T, spaceID string) *ManagedRoom {
	t.Helper()
	var skipped []*ManagedRoom
	defer func() {
		for _, r := range skipped {
			f.pool.PutBack(r)
		}
	}()
	for {
		room, ok := f.pool.Poll()
		if !ok {
			t.Fatalf("room %s is not available", spaceID)
		}
		if room.SpaceID() == spaceID {
			return room
		}
		skipped = append(skipped, room)
	}
}

func targets(calls []memory.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Target)
	}
	return out
}

// ctxBoundPlatform behaves like a network client: calls fail once ctx is done.
// With hangSystemChannel set, SetSystemChannel blocks until then.
type ctxBoundPlatform struct {
	*memory.Platform
	hangSystemChannel bool
}

func (p ctxBoundPlatform) SetSystemChannel(ctx context.Context, spaceID, channelID string) error {
	if p.hangSystemChannel {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Platform.SetSystemChannel(ctx, spaceID, channelID)
}

func (p ctxBoundPlatform) DeleteChannel(ctx context.Context, spaceID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Platform.DeleteChannel(ctx, spaceID, channelID)
}

func (p ctxBoundPlatform) ListMembers(ctx context.Context, spaceID string) ([]platform.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Platform.ListMembers(ctx, spaceID)
}

func (p ctxBoundPlatform) Evict(ctx context.Context, spaceID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Platform.Evict(ctx, spaceID, userID)
}

func ctxBound(hangSystemChannel bool) func(*memory.Platform) platform.Client {
	return func(p *memory.Platform) platform.Client {
		return ctxBoundPlatform{Platform: p, hangSystemChannel: hangSystemChannel}
	}
}
