package store

import (
	"context"
	"time"
)

// RoomRecord is a registered private room.
// SpaceID is the platform-assigned identifier of the hosted space,
// Number is the dense human-facing label.
type RoomRecord struct {
	SpaceID   string
	Number    int
	CreatedAt time.Time
}

// RoomStore handles private room persistence.
type RoomStore interface {
	// InsertIfAbsent registers spaceID under the smallest free number.
	// created is false when the space was already registered; no row is written then.
	InsertIfAbsent(ctx context.Context, spaceID string) (rec *RoomRecord, created bool, err error)

	// FindAll lists every registered room ordered by number ascending.
	FindAll(ctx context.Context) ([]*RoomRecord, error)

	// FindBySpaceID retrieves a room by its space id, or nil if it is not registered.
	FindBySpaceID(ctx context.Context, spaceID string) (*RoomRecord, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore

	// Close closes the underlying database connection.
	Close() error
}
