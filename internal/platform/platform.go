package platform

import (
	"context"
	"errors"
)

var (
	// ErrSpaceNotFound is returned when the platform does not (yet) know a space.
	ErrSpaceNotFound = errors.New("space not found")
	// ErrChannelNotFound is returned when a channel does not exist in a space.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrInviteNotFound is returned when an invite code is unknown or revoked.
	ErrInviteNotFound = errors.New("invite not found")
)

// Space is the platform's view of a hosted room.
type Space struct {
	ID      string
	Name    string
	OwnerID string
}

// Channel is a sub-channel inside a space.
type Channel struct {
	ID      string
	SpaceID string
	Name    string
	URL     string // jump link
}

// Member is a user currently present in a space.
type Member struct {
	UserID      string
	Owner       bool
	Integration bool // bots, agents and other platform integrations
}

// Invite is an outstanding invite link into a space.
type Invite struct {
	Code      string
	SpaceID   string
	ChannelID string
	URL       string
}

// Client abstracts the chat platform hosting the private rooms.
// All calls may block on network I/O and may fail transiently.
type Client interface {
	// ResolveSpace looks up a space. Returns ErrSpaceNotFound on a miss.
	ResolveSpace(ctx context.Context, spaceID string) (*Space, error)

	// CreateChannel creates a sub-channel in the space.
	CreateChannel(ctx context.Context, spaceID, name string) (*Channel, error)

	// FindChannel looks up a sub-channel. Returns ErrChannelNotFound on a miss.
	FindChannel(ctx context.Context, spaceID, channelID string) (*Channel, error)

	// DeleteChannel removes a sub-channel.
	DeleteChannel(ctx context.Context, spaceID, channelID string) error

	// SetSystemChannel routes join/welcome notifications of the space to the channel.
	SetSystemChannel(ctx context.Context, spaceID, channelID string) error

	// GrantChannelAccess lets holders of role view and send in the channel.
	GrantChannelAccess(ctx context.Context, spaceID, channelID, role string) error

	// ListMembers lists the users currently in the space.
	ListMembers(ctx context.Context, spaceID string) ([]Member, error)

	// Evict removes a user from the space.
	Evict(ctx context.Context, spaceID, userID string) error

	// GrantRole assigns role to a user of the space.
	GrantRole(ctx context.Context, spaceID, userID, role string) error

	// CreateInvite creates an invite link into the channel.
	CreateInvite(ctx context.Context, spaceID, channelID string) (*Invite, error)

	// ListInvites lists outstanding invites across all channels of the space.
	ListInvites(ctx context.Context, spaceID string) ([]Invite, error)

	// RevokeInvite invalidates an invite.
	RevokeInvite(ctx context.Context, spaceID, code string) error

	// SendMessage posts text to a channel.
	SendMessage(ctx context.Context, spaceID, channelID, text string) error

	// NotifyUser sends text privately to a user. spaceID is the space the notice is about.
	NotifyUser(ctx context.Context, spaceID, userID, text string) error
}

// JoinInfo contains what a client needs to enter a space through an invite.
type JoinInfo struct {
	URL       string `json:"url"`   // platform endpoint, e.g. a LiveKit WebSocket URL
	Token     string `json:"token"` // platform access token
	SpaceID   string `json:"space_id"`
	ChannelID string `json:"channel_id"`
	Identity  string `json:"identity"`
}

// InviteRedeemer is implemented by platforms whose invite links are exchanged
// for join credentials by this service.
type InviteRedeemer interface {
	// RedeemInvite checks code and returns credentials for identity.
	// Returns ErrInviteNotFound for unknown or revoked codes.
	RedeemInvite(ctx context.Context, spaceID, code, identity string) (*JoinInfo, error)
}
