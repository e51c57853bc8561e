package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/platform"
	"github.com/vovakirdan/roompool/internal/store"
)

// RoomState is the lifecycle state of a managed room.
type RoomState int

const (
	// StateAvailable means the room is idle and can be checked out.
	StateAvailable RoomState = iota
	// StateInUse means the room is checked out.
	StateInUse
	// StateBroken means teardown failed; the room stays out of the queue until an operator fixes it.
	StateBroken
)

func (s RoomState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateInUse:
		return "in_use"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// ManagedRoom adds usage state to a registered room.
// Transitions and membership checks are serialized by the room's own lock.
type ManagedRoom struct {
	record store.RoomRecord
	pool   *Pool
	client platform.Client
	opts   Options
	log    zerolog.Logger

	mu      sync.Mutex
	allowed map[string]struct{}

	// Written only while holding mu; readable without it.
	inUse   atomic.Bool
	broken  atomic.Bool
	channel atomic.Pointer[platform.Channel]
}

func newManagedRoom(rec store.RoomRecord, pool *Pool) *ManagedRoom {
	return &ManagedRoom{
		record:  rec,
		pool:    pool,
		client:  pool.client,
		opts:    pool.opts,
		log:     pool.log.With().Int("room_number", rec.Number).Str("space_id", rec.SpaceID).Logger(),
		allowed: make(map[string]struct{}),
	}
}

// SpaceID returns the id of the hosted space.
func (r *ManagedRoom) SpaceID() string {
	return r.record.SpaceID
}

// Number returns the room's display number.
func (r *ManagedRoom) Number() int {
	return r.record.Number
}

// Record returns the persisted record.
func (r *ManagedRoom) Record() store.RoomRecord {
	return r.record
}

// InUse reports whether the room is checked out.
func (r *ManagedRoom) InUse() bool {
	return r.inUse.Load()
}

// State reports the room's lifecycle state.
func (r *ManagedRoom) State() RoomState {
	switch {
	case r.broken.Load():
		return StateBroken
	case r.inUse.Load():
		return StateInUse
	default:
		return StateAvailable
	}
}

// ActiveChannel returns the channel of the current usage session, or nil.
func (r *ManagedRoom) ActiveChannel() *platform.Channel {
	return r.channel.Load()
}

// AllowedOccupants returns the users currently allowed in the space, sorted.
func (r *ManagedRoom) AllowedOccupants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.allowed))
	for id := range r.allowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *ManagedRoom) String() string {
	return fmt.Sprintf("private room #%d (%s, %s)", r.record.Number, r.record.SpaceID, r.State())
}

// BeginUsage checks the room out for the given occupants: evicts everyone else,
// creates a fresh channel and grants the occupant role access to it.
// If preparation fails the room is torn down again and the error returned.
func (r *ManagedRoom) BeginUsage(ctx context.Context, occupants []string) (*platform.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inUse.Load() {
		return nil, fmt.Errorf("begin usage of private room #%d: %w", r.record.Number, ErrAlreadyInUse)
	}
	r.inUse.Store(true)

	sp, err := r.ResolveSpace(ctx)
	if err != nil {
		cleanupCtx, cancel := r.cleanupContext(ctx)
		defer cancel()
		r.teardownLocked(cleanupCtx, nil)
		return nil, fmt.Errorf("begin usage of private room #%d: %w", r.record.Number, err)
	}

	ch, err := r.prepareLocked(ctx, sp, occupants)
	if err != nil {
		r.log.Warn().Err(err).Msg("could not prepare private room, tearing down")
		cleanupCtx, cancel := r.cleanupContext(ctx)
		defer cancel()
		r.teardownLocked(cleanupCtx, sp)
		return nil, fmt.Errorf("begin usage of private room #%d: %w", r.record.Number, err)
	}

	r.log.Info().Strs("occupants", occupants).Str("channel_id", ch.ID).Msg("private room in use")
	return ch, nil
}

func (r *ManagedRoom) prepareLocked(ctx context.Context, sp *platform.Space, occupants []string) (*platform.Channel, error) {
	r.evictMembersLocked(ctx, sp)

	r.allowed = make(map[string]struct{}, len(occupants))
	for _, id := range occupants {
		r.allowed[id] = struct{}{}
	}

	ch, err := r.client.CreateChannel(ctx, sp.ID, r.opts.ChannelName)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	r.channel.Store(ch)

	if err := r.client.SetSystemChannel(ctx, sp.ID, ch.ID); err != nil {
		return nil, fmt.Errorf("set system channel: %w", err)
	}
	if err := r.client.GrantChannelAccess(ctx, sp.ID, ch.ID, r.opts.OccupantRole); err != nil {
		return nil, fmt.Errorf("grant channel access: %w", err)
	}

	return ch, nil
}

// EndUsage checks the room back in: evicts occupants, revokes invites, deletes the
// channel and returns the room to the pool. If the channel cannot be deleted the room
// is left broken and stays out of the pool. Cancelling ctx does not interrupt cleanup.
func (r *ManagedRoom) EndUsage(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inUse.Load() {
		r.log.Warn().Msg("ending usage of a private room that is not in use")
		r.pool.PutBack(r)
		return
	}

	ctx, cancel := r.cleanupContext(ctx)
	defer cancel()

	sp, err := r.ResolveSpace(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("could not resolve space for cleanup, skipping member and invite cleanup")
		sp = nil
	}
	r.teardownLocked(ctx, sp)
}

// cleanupContext detaches teardown from the caller so an abandoned request
// cannot strand the room half cleaned.
func (r *ManagedRoom) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if r.opts.CleanupTimeout > 0 {
		return context.WithTimeout(ctx, r.opts.CleanupTimeout)
	}
	return ctx, func() {}
}

// teardownLocked runs the check-in cleanup. sp may be nil when the space could not be
// resolved; member and invite cleanup are skipped then.
func (r *ManagedRoom) teardownLocked(ctx context.Context, sp *platform.Space) {
	if sp != nil {
		r.evictMembersLocked(ctx, sp)
		r.revokeInvitesLocked(ctx)
	}

	if ch := r.channel.Load(); ch != nil {
		err := r.client.DeleteChannel(ctx, r.record.SpaceID, ch.ID)
		switch {
		case err == nil:
		case errors.Is(err, platform.ErrChannelNotFound):
			r.log.Error().Str("channel_id", ch.ID).Msg("did not find channel to delete")
		default:
			// Leave the room broken; it has to be fixed manually.
			r.broken.Store(true)
			r.log.Error().Err(err).
				Int("room_number", r.record.Number).
				Str("space_id", r.record.SpaceID).
				Str("channel_id", ch.ID).
				Msg("failed to delete channel, private room is broken")
			return
		}
	}

	r.allowed = make(map[string]struct{})
	r.channel.Store(nil)
	r.broken.Store(false)
	r.inUse.Store(false)
	r.log.Info().Msg("private room released")
	r.pool.PutBack(r)
}

// evictMembersLocked kicks everyone except the space owner and integrations. Failures are logged.
func (r *ManagedRoom) evictMembersLocked(ctx context.Context, sp *platform.Space) {
	members, err := r.client.ListMembers(ctx, sp.ID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list members for cleanup")
		return
	}

	for _, m := range members {
		if m.Owner || m.Integration || m.UserID == sp.OwnerID {
			continue
		}
		if err := r.client.Evict(ctx, sp.ID, m.UserID); err != nil {
			r.log.Warn().Err(err).Str("user_id", m.UserID).Msg("failed to evict member")
		}
	}
}

func (r *ManagedRoom) revokeInvitesLocked(ctx context.Context) {
	invites, err := r.client.ListInvites(ctx, r.record.SpaceID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list invites for cleanup")
		return
	}

	for _, inv := range invites {
		if err := r.client.RevokeInvite(ctx, r.record.SpaceID, inv.Code); err != nil {
			r.log.Warn().Err(err).Str("invite", inv.Code).Msg("failed to revoke invite")
		}
	}
}

// OnMemberJoin applies the access gate to a join event. Events for other spaces are ignored.
func (r *ManagedRoom) OnMemberJoin(ctx context.Context, ev MemberJoin) {
	if ev.SpaceID != r.record.SpaceID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.allowed[ev.UserID]; !ok {
		r.log.Debug().Str("user_id", ev.UserID).Strs("allowed", r.allowedLocked()).Msg("denied user")

		msg := fmt.Sprintf("You are not allowed to join private room #%d currently.", r.record.Number)
		if err := r.client.NotifyUser(ctx, r.record.SpaceID, ev.UserID, msg); err != nil {
			r.log.Debug().Err(err).Str("user_id", ev.UserID).Msg("could not notify denied user")
		}
		if err := r.client.Evict(ctx, r.record.SpaceID, ev.UserID); err != nil {
			r.log.Warn().Err(err).Str("user_id", ev.UserID).Msg("failed to evict denied user")
		}
		return
	}

	if err := r.client.GrantRole(ctx, r.record.SpaceID, ev.UserID, r.opts.OccupantRole); err != nil {
		r.log.Warn().Err(err).Str("user_id", ev.UserID).Msg("failed to grant occupant role")
		return
	}

	ch := r.channel.Load()
	if ch == nil {
		return
	}
	if _, err := r.client.FindChannel(ctx, r.record.SpaceID, ch.ID); err != nil {
		r.log.Debug().Err(err).Str("channel_id", ch.ID).Msg("active channel gone, skipping welcome")
		return
	}
	welcome := fmt.Sprintf("%s, welcome to the private channel!", ev.UserID)
	if err := r.client.SendMessage(ctx, r.record.SpaceID, ch.ID, welcome); err != nil {
		r.log.Warn().Err(err).Str("user_id", ev.UserID).Msg("failed to send welcome message")
	}
}

func (r *ManagedRoom) allowedLocked() []string {
	ids := make([]string, 0, len(r.allowed))
	for id := range r.allowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveSpace looks up the room's space, retrying while the platform has not caught up.
// Returns an error wrapping ErrSpaceNotFound once the attempts are used up.
func (r *ManagedRoom) ResolveSpace(ctx context.Context) (*platform.Space, error) {
	var sp *platform.Space
	err := r.opts.Resolve.Do(ctx, func(attempt int) error {
		found, err := r.client.ResolveSpace(ctx, r.record.SpaceID)
		if err != nil {
			r.log.Error().Err(err).Int("attempt", attempt).Msg("could not find private room space, trying in a moment")
			return err
		}
		sp = found
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAttemptsExhausted) {
			return nil, fmt.Errorf("%w: #%d (%s): %w", ErrSpaceNotFound, r.record.Number, r.record.SpaceID, err)
		}
		return nil, err
	}
	return sp, nil
}

// InviteLink returns an invite into the active channel, reusing an existing one.
// Returns "" when no link can be produced.
func (r *ManagedRoom) InviteLink(ctx context.Context) string {
	ch, ok := r.findActiveChannel(ctx)
	if !ok {
		return ""
	}

	invites, err := r.client.ListInvites(ctx, r.record.SpaceID)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list invites")
	}
	for _, inv := range invites {
		if inv.ChannelID == ch.ID {
			return inv.URL
		}
	}

	inv, err := r.client.CreateInvite(ctx, r.record.SpaceID, ch.ID)
	if err != nil {
		r.log.Error().Err(err).Msg("could not create invite to private room")
		return ""
	}
	return inv.URL
}

// JumpLink returns a link to the active channel, or "" when there is none.
func (r *ManagedRoom) JumpLink(ctx context.Context) string {
	ch, ok := r.findActiveChannel(ctx)
	if !ok {
		return ""
	}
	return ch.URL
}

func (r *ManagedRoom) findActiveChannel(ctx context.Context) (*platform.Channel, bool) {
	if _, err := r.ResolveSpace(ctx); err != nil {
		r.log.Error().Err(err).Msg("could not resolve private room space")
		return nil, false
	}

	active := r.channel.Load()
	if active == nil {
		r.log.Error().Msg("private room has no active channel")
		return nil, false
	}

	ch, err := r.client.FindChannel(ctx, r.record.SpaceID, active.ID)
	if err != nil {
		r.log.Error().Err(err).Str("channel_id", active.ID).Msg("could not find active channel")
		return nil, false
	}
	return ch, true
}
