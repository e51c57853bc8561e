package rooms

import (
	"context"
	"fmt"

	"github.com/vovakirdan/roompool/internal/store"
)

// StoreError reports a failure of the underlying room store.
// Callers should treat it as transient and retry unless it recurs.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("room store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Service is the registry of private rooms.
type Service struct {
	store store.RoomStore
}

// New creates a new room registry service.
func New(st store.RoomStore) *Service {
	return &Service{store: st}
}

// ListAll returns all registered rooms ordered by number.
func (s *Service) ListAll(ctx context.Context) ([]*store.RoomRecord, error) {
	rooms, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return rooms, nil
}

// Register attempts to register a space as a private room.
// If the space is already registered nothing happens and nil is returned.
func (s *Service) Register(ctx context.Context, spaceID string) (*store.RoomRecord, error) {
	if spaceID == "" {
		return nil, fmt.Errorf("register: empty space id")
	}

	rec, created, err := s.store.InsertIfAbsent(ctx, spaceID)
	if err != nil {
		return nil, &StoreError{Op: "register", Err: err}
	}
	if !created {
		return nil, nil
	}
	return rec, nil
}

// IsRegistered reports whether the space is a registered private room.
func (s *Service) IsRegistered(ctx context.Context, spaceID string) (bool, error) {
	rec, err := s.store.FindBySpaceID(ctx, spaceID)
	if err != nil {
		return false, &StoreError{Op: "lookup", Err: err}
	}
	return rec != nil, nil
}
