// Package memory provides an in-process chat platform.
// It backs the development driver and records every call for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vovakirdan/roompool/internal/platform"
)

// Operation names as recorded in the call log.
const (
	OpResolveSpace       = "resolve_space"
	OpCreateChannel      = "create_channel"
	OpFindChannel        = "find_channel"
	OpDeleteChannel      = "delete_channel"
	OpSetSystemChannel   = "set_system_channel"
	OpGrantChannelAccess = "grant_channel_access"
	OpListMembers        = "list_members"
	OpEvict              = "evict"
	OpGrantRole          = "grant_role"
	OpCreateInvite       = "create_invite"
	OpListInvites        = "list_invites"
	OpRevokeInvite       = "revoke_invite"
	OpSendMessage        = "send_message"
	OpNotifyUser         = "notify_user"
)

// Call is one recorded platform call.
type Call struct {
	Op      string
	SpaceID string
	Target  string // user id, channel id or invite code, depending on Op
}

type channel struct {
	name     string
	roles    map[string]struct{}
	messages []string
}

type space struct {
	name          string
	owner         string
	members       map[string]platform.Member
	roles         map[string]map[string]struct{}
	channels      map[string]*channel
	invites       map[string]platform.Invite
	systemChannel string
	hiddenFor     int
}

// Platform is a thread-safe in-memory platform.Client.
type Platform struct {
	mu       sync.Mutex
	baseURL  string
	spaces   map[string]*space
	dms      map[string][]string
	calls    []Call
	failures map[string]error
}

// New creates an empty platform. baseURL prefixes generated links.
func New(baseURL string) *Platform {
	return &Platform{
		baseURL:  strings.TrimRight(baseURL, "/"),
		spaces:   make(map[string]*space),
		dms:      make(map[string][]string),
		failures: make(map[string]error),
	}
}

// AddSpace creates a space owned by ownerID. The owner is a member.
func (p *Platform) AddSpace(spaceID, ownerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp := &space{
		name:     spaceID,
		owner:    ownerID,
		members:  make(map[string]platform.Member),
		roles:    make(map[string]map[string]struct{}),
		channels: make(map[string]*channel),
		invites:  make(map[string]platform.Invite),
	}
	if ownerID != "" {
		sp.members[ownerID] = platform.Member{UserID: ownerID, Owner: true}
	}
	p.spaces[spaceID] = sp
}

// HideSpace makes the next misses lookups of the space fail with ErrSpaceNotFound.
func (p *Platform) HideSpace(spaceID string, misses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.spaces[spaceID]; ok {
		sp.hiddenFor = misses
	}
}

// Join adds a user to a space. It does not emit any event.
func (p *Platform) Join(spaceID, userID string) {
	p.join(spaceID, platform.Member{UserID: userID})
}

// JoinIntegration adds an integration account (bot) to a space.
func (p *Platform) JoinIntegration(spaceID, userID string) {
	p.join(spaceID, platform.Member{UserID: userID, Integration: true})
}

func (p *Platform) join(spaceID string, m platform.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.spaces[spaceID]; ok {
		sp.members[m.UserID] = m
	}
}

// FailOn makes every subsequent call of op fail with err. A nil err clears the failure.
func (p *Platform) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// Calls returns a copy of the call log.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsOf returns the recorded calls of one operation.
func (p *Platform) CallsOf(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (p *Platform) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Members lists the user ids present in a space, sorted.
func (p *Platform) Members(spaceID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.spaces[spaceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(sp.members))
	for id := range sp.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasRole reports whether the user holds role in the space.
func (p *Platform) HasRole(spaceID, userID, role string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.spaces[spaceID]
	if !ok {
		return false
	}
	_, has := sp.roles[userID][role]
	return has
}

// ChannelIDs lists the channels of a space, sorted.
func (p *Platform) ChannelIDs(spaceID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.spaces[spaceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(sp.channels))
	for id := range sp.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SystemChannel returns the system channel of a space.
func (p *Platform) SystemChannel(spaceID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.spaces[spaceID]; ok {
		return sp.systemChannel
	}
	return ""
}

// Messages returns the messages posted to a channel.
func (p *Platform) Messages(spaceID, channelID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.spaces[spaceID]
	if !ok {
		return nil
	}
	ch, ok := sp.channels[channelID]
	if !ok {
		return nil
	}
	return append([]string(nil), ch.messages...)
}

// DirectMessages returns the private notices sent to a user.
func (p *Platform) DirectMessages(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dms[userID]...)
}

// record logs the call and returns the injected failure for op, if any. Caller holds mu.
func (p *Platform) record(op, spaceID, target string) error {
	p.calls = append(p.calls, Call{Op: op, SpaceID: spaceID, Target: target})
	if err, ok := p.failures[op]; ok {
		return err
	}
	return nil
}

// lookup returns the space or ErrSpaceNotFound. Caller holds mu.
func (p *Platform) lookup(spaceID string) (*space, error) {
	sp, ok := p.spaces[spaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrSpaceNotFound, spaceID)
	}
	return sp, nil
}

func (p *Platform) channelURL(spaceID, channelID string) string {
	return fmt.Sprintf("%s/spaces/%s/channels/%s", p.baseURL, spaceID, channelID)
}

// ResolveSpace implements platform.Client.
func (p *Platform) ResolveSpace(_ context.Context, spaceID string) (*platform.Space, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpResolveSpace, spaceID, ""); err != nil {
		return nil, err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return nil, err
	}
	if sp.hiddenFor > 0 {
		sp.hiddenFor--
		return nil, fmt.Errorf("%w: %s", platform.ErrSpaceNotFound, spaceID)
	}
	return &platform.Space{ID: spaceID, Name: sp.name, OwnerID: sp.owner}, nil
}

// CreateChannel implements platform.Client.
func (p *Platform) CreateChannel(_ context.Context, spaceID, name string) (*platform.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpCreateChannel, spaceID, name); err != nil {
		return nil, err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	sp.channels[id] = &channel{name: name, roles: make(map[string]struct{})}
	return &platform.Channel{ID: id, SpaceID: spaceID, Name: name, URL: p.channelURL(spaceID, id)}, nil
}

// FindChannel implements platform.Client.
func (p *Platform) FindChannel(_ context.Context, spaceID, channelID string) (*platform.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpFindChannel, spaceID, channelID); err != nil {
		return nil, err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return nil, err
	}
	ch, ok := sp.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
	}
	return &platform.Channel{ID: channelID, SpaceID: spaceID, Name: ch.name, URL: p.channelURL(spaceID, channelID)}, nil
}

// DeleteChannel implements platform.Client.
func (p *Platform) DeleteChannel(_ context.Context, spaceID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpDeleteChannel, spaceID, channelID); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	if _, ok := sp.channels[channelID]; !ok {
		return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
	}
	delete(sp.channels, channelID)
	for code, inv := range sp.invites {
		if inv.ChannelID == channelID {
			delete(sp.invites, code)
		}
	}
	if sp.systemChannel == channelID {
		sp.systemChannel = ""
	}
	return nil
}

// SetSystemChannel implements platform.Client.
func (p *Platform) SetSystemChannel(_ context.Context, spaceID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpSetSystemChannel, spaceID, channelID); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	sp.systemChannel = channelID
	return nil
}

// GrantChannelAccess implements platform.Client.
func (p *Platform) GrantChannelAccess(_ context.Context, spaceID, channelID, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpGrantChannelAccess, spaceID, channelID); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	ch, ok := sp.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
	}
	ch.roles[role] = struct{}{}
	return nil
}

// ListMembers implements platform.Client.
func (p *Platform) ListMembers(_ context.Context, spaceID string) ([]platform.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpListMembers, spaceID, ""); err != nil {
		return nil, err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return nil, err
	}
	members := make([]platform.Member, 0, len(sp.members))
	for _, m := range sp.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// Evict implements platform.Client.
func (p *Platform) Evict(_ context.Context, spaceID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpEvict, spaceID, userID); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	if _, ok := sp.members[userID]; !ok {
		return fmt.Errorf("evict %s: not a member of %s", userID, spaceID)
	}
	delete(sp.members, userID)
	delete(sp.roles, userID)
	return nil
}

// GrantRole implements platform.Client.
func (p *Platform) GrantRole(_ context.Context, spaceID, userID, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpGrantRole, spaceID, userID); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	if _, ok := sp.members[userID]; !ok {
		return fmt.Errorf("grant role to %s: not a member of %s", userID, spaceID)
	}
	if sp.roles[userID] == nil {
		sp.roles[userID] = make(map[string]struct{})
	}
	sp.roles[userID][role] = struct{}{}
	return nil
}

// CreateInvite implements platform.Client.
func (p *Platform) CreateInvite(_ context.Context, spaceID, channelID string) (*platform.Invite, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpCreateInvite, spaceID, channelID); err != nil {
		return nil, err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return nil, err
	}
	if _, ok := sp.channels[channelID]; !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
	}
	code := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	inv := platform.Invite{
		Code:      code,
		SpaceID:   spaceID,
		ChannelID: channelID,
		URL:       p.baseURL + "/invite/" + code,
	}
	sp.invites[code] = inv
	return &inv, nil
}

// ListInvites implements platform.Client.
func (p *Platform) ListInvites(_ context.Context, spaceID string) ([]platform.Invite, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpListInvites, spaceID, ""); err != nil {
		return nil, err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return nil, err
	}
	invites := make([]platform.Invite, 0, len(sp.invites))
	for _, inv := range sp.invites {
		invites = append(invites, inv)
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].Code < invites[j].Code })
	return invites, nil
}

// RevokeInvite implements platform.Client.
func (p *Platform) RevokeInvite(_ context.Context, spaceID, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpRevokeInvite, spaceID, code); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	delete(sp.invites, code)
	return nil
}

// SendMessage implements platform.Client.
func (p *Platform) SendMessage(_ context.Context, spaceID, channelID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpSendMessage, spaceID, channelID); err != nil {
		return err
	}
	sp, err := p.lookup(spaceID)
	if err != nil {
		return err
	}
	ch, ok := sp.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
	}
	ch.messages = append(ch.messages, text)
	return nil
}

// NotifyUser implements platform.Client.
func (p *Platform) NotifyUser(_ context.Context, spaceID, userID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(OpNotifyUser, spaceID, userID); err != nil {
		return err
	}
	p.dms[userID] = append(p.dms[userID], text)
	return nil
}

// Ensure Platform implements platform.Client
var _ platform.Client = (*Platform)(nil)
