package core

// MemberJoin notifies the pool that a user joined a space on the platform.
type MemberJoin struct {
	SpaceID string `json:"space_id"`
	UserID  string `json:"user_id"`
}
