package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roompool/internal/metrics"
	"github.com/vovakirdan/roompool/internal/platform"
	"github.com/vovakirdan/roompool/internal/store"
)

// Registry is the persisted set of private rooms the pool is built from.
type Registry interface {
	ListAll(ctx context.Context) ([]*store.RoomRecord, error)
	Register(ctx context.Context, spaceID string) (*store.RoomRecord, error)
}

// Options tune how rooms are prepared and looked up.
type Options struct {
	// OccupantRole is granted to allowed occupants and given access to the channel.
	OccupantRole string
	// ChannelName names the channel created for every usage session.
	ChannelName string
	// Resolve bounds the lookups of a space the platform does not know yet.
	Resolve Retry
	// CleanupTimeout bounds teardown. Teardown ignores the caller's cancellation;
	// zero leaves it unbounded.
	CleanupTimeout time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		OccupantRole:   "occupant",
		ChannelName:    "private-chat",
		Resolve:        Retry{Attempts: 100, Delay: 5 * time.Second},
		CleanupTimeout: 10 * time.Minute,
	}
}

// Pool hands out private rooms for exclusive use.
//
// Rooms not checked out wait in a FIFO queue. The list of all rooms only grows.
type Pool struct {
	registry Registry
	client   platform.Client
	metrics  metrics.Sink
	log      *zerolog.Logger
	opts     Options

	roomsMu sync.RWMutex
	rooms   []*ManagedRoom

	mu        sync.Mutex
	available deque.Deque[*ManagedRoom]
	queued    chan struct{} // closed and replaced whenever a room is queued
}

// NewPool loads every registered room and queues them all as available.
func NewPool(ctx context.Context, registry Registry, client platform.Client, sink metrics.Sink, logger *zerolog.Logger, opts Options) (*Pool, error) {
	if sink == nil {
		sink = metrics.Nop{}
	}

	p := &Pool{
		registry: registry,
		client:   client,
		metrics:  sink,
		log:      logger,
		opts:     opts,
		queued:   make(chan struct{}),
	}

	records, err := registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load private rooms: %w", err)
	}

	p.mu.Lock()
	for _, rec := range records {
		room := newManagedRoom(*rec, p)
		p.rooms = append(p.rooms, room)
		p.pushLocked(room)
	}
	p.mu.Unlock()

	logger.Info().Int("count", len(records)).Msg("private rooms loaded")
	return p, nil
}

// pushLocked queues a room, wakes waiting takers and updates the gauge. Caller holds mu.
func (p *Pool) pushLocked(room *ManagedRoom) {
	p.available.PushBack(room)
	close(p.queued)
	p.queued = make(chan struct{})
	p.reportLocked()
}

func (p *Pool) reportLocked() {
	p.metrics.SetGauge(metrics.AvailablePrivateRooms, float64(p.available.Len()))
}

// Take removes and returns the next available room, blocking until one is queued
// or ctx is done.
func (p *Pool) Take(ctx context.Context) (*ManagedRoom, error) {
	for {
		p.mu.Lock()
		if p.available.Len() > 0 {
			room := p.available.PopFront()
			p.reportLocked()
			p.mu.Unlock()

			if room.InUse() {
				p.log.Warn().Stringer("room", room).Msg("got a room that is still in use")
			}
			return room, nil
		}
		wait := p.queued
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Poll removes and returns the next available room without blocking.
func (p *Pool) Poll() (*ManagedRoom, bool) {
	p.mu.Lock()
	if p.available.Len() == 0 {
		p.mu.Unlock()
		return nil, false
	}
	room := p.available.PopFront()
	p.reportLocked()
	p.mu.Unlock()

	if room.InUse() {
		p.log.Warn().Stringer("room", room).Msg("got a room that is still in use")
	}
	return room, true
}

// PutBack returns a room to the available queue. A room whose space is already
// queued is discarded.
func (p *Pool) PutBack(room *ManagedRoom) {
	if room.InUse() {
		p.log.Warn().Stringer("room", room).Msg("putting back a room that is still in use")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	queued := p.available.Index(func(r *ManagedRoom) bool {
		return r.SpaceID() == room.SpaceID()
	})
	if queued >= 0 {
		p.log.Warn().Stringer("room", room).Msg("tried to put room into queue that is already there")
		return
	}
	p.pushLocked(room)
}

// Add registers a new space as a private room and makes it available immediately.
// Returns ErrAlreadyRegistered if the space is known already.
func (p *Pool) Add(ctx context.Context, spaceID string) (*ManagedRoom, error) {
	rec, err := p.registry.Register(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", spaceID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, spaceID)
	}

	room := newManagedRoom(*rec, p)

	p.roomsMu.Lock()
	p.rooms = append(p.rooms, room)
	p.roomsMu.Unlock()

	p.mu.Lock()
	p.pushLocked(room)
	p.mu.Unlock()

	p.log.Info().Int("room_number", rec.Number).Str("space_id", spaceID).Msg("private room added")
	return room, nil
}

// AvailableCount returns the current size of the available queue.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available.Len()
}

// Rooms returns a snapshot of every managed room.
func (p *Pool) Rooms() []*ManagedRoom {
	p.roomsMu.RLock()
	defer p.roomsMu.RUnlock()

	out := make([]*ManagedRoom, len(p.rooms))
	copy(out, p.rooms)
	return out
}

// Room finds a managed room by space id.
func (p *Pool) Room(spaceID string) (*ManagedRoom, bool) {
	for _, room := range p.Rooms() {
		if room.SpaceID() == spaceID {
			return room, true
		}
	}
	return nil, false
}

// OnMemberJoin fans a join event out to every room; only the owner of the space acts on it.
// Linear in the number of rooms, which stays small for an administratively sized pool.
func (p *Pool) OnMemberJoin(ctx context.Context, ev MemberJoin) {
	for _, room := range p.Rooms() {
		room.OnMemberJoin(ctx, ev)
	}
}
