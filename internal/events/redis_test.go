package events

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roompool/internal/core"
)

func setupSource(t *testing.T) (*RedisSource, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zerolog.New(io.Discard)
	return NewRedisSource(rdb, "", &logger), mr
}

type collector struct {
	mu     sync.Mutex
	events []core.MemberJoin
}

func (c *collector) handle(_ context.Context, ev core.MemberJoin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []core.MemberJoin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.MemberJoin(nil), c.events...)
}

func startSource(t *testing.T, src *RedisSource, mr *miniredis.Miniredis, handle Handler) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, handle) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(src.Channel())[src.Channel()] == 1
	}, 2*time.Second, 10*time.Millisecond)

	return cancel, done
}

func TestRedisSourceDeliversEventsInOrder(t *testing.T) {
	src, mr := setupSource(t)
	c := &collector{}
	cancel, done := startSource(t, src, mr, c.handle)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, src.Publish(ctx, core.MemberJoin{SpaceID: "s1", UserID: "u1"}))
	require.NoError(t, src.Publish(ctx, core.MemberJoin{SpaceID: "s1", UserID: "u2"}))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []core.MemberJoin{
		{SpaceID: "s1", UserID: "u1"},
		{SpaceID: "s1", UserID: "u2"},
	}, c.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRedisSourceSkipsMalformedPayloads(t *testing.T) {
	src, mr := setupSource(t)
	c := &collector{}
	cancel, _ := startSource(t, src, mr, c.handle)
	defer cancel()

	mr.Publish(DefaultChannel, "not json")
	mr.Publish(DefaultChannel, `{"space_id":"s1"}`)
	mr.Publish(DefaultChannel, `{"space_id":"s1","user_id":"u1"}`)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, core.MemberJoin{SpaceID: "s1", UserID: "u1"}, c.snapshot()[0])
}

func TestRedisSourceFailsWhenServerIsGone(t *testing.T) {
	src, mr := setupSource(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := src.Run(ctx, func(context.Context, core.MemberJoin) {})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"space_id":"s1","user_id":"u1"}`, false},
		{"missing user", `{"space_id":"s1"}`, true},
		{"missing space", `{"user_id":"u1"}`, true},
		{"garbage", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
