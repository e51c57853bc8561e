// Package events delivers platform membership events to the pool.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/core"
)

// DefaultChannel is the pub/sub channel join events are published on.
const DefaultChannel = "roompool:member_join"

// Handler receives decoded member-join events.
type Handler func(ctx context.Context, ev core.MemberJoin)

// RedisSource subscribes to member-join events published as JSON on a Redis channel.
type RedisSource struct {
	rdb     *redis.Client
	channel string
	log     *zerolog.Logger
}

// NewRedisSource creates a source on rdb. An empty channel means DefaultChannel.
func NewRedisSource(rdb *redis.Client, channel string, logger *zerolog.Logger) *RedisSource {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSource{rdb: rdb, channel: channel, log: logger}
}

// Channel returns the subscribed channel name.
func (s *RedisSource) Channel() string {
	return s.channel
}

// Run delivers events to handle until ctx is done. Handlers run one at a time in
// publish order. Malformed payloads are logged and skipped.
func (s *RedisSource) Run(ctx context.Context, handle Handler) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so a failing server surfaces here.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.Info().Str("channel", s.channel).Msg("subscribed to member join events")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("member join subscription closed")
			}
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				s.log.Warn().Err(err).Str("payload", msg.Payload).Msg("dropping member join event")
				continue
			}
			s.log.Debug().Str("space_id", ev.SpaceID).Str("user_id", ev.UserID).Msg("member joined")
			handle(ctx, ev)
		}
	}
}

// Publish sends a member-join event on the source's channel.
func (s *RedisSource) Publish(ctx context.Context, ev core.MemberJoin) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode member join: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish member join: %w", err)
	}
	return nil
}

// Decode parses and validates a member-join payload.
func Decode(payload []byte) (core.MemberJoin, error) {
	var ev core.MemberJoin
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("decode member join: %w", err)
	}
	if ev.SpaceID == "" || ev.UserID == "" {
		return ev, errors.New("member join needs space_id and user_id")
	}
	return ev, nil
}
