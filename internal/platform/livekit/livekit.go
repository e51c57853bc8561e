// Package livekit hosts private rooms on a LiveKit server.
//
// A space is a LiveKit room. LiveKit has no sub-channels, roles or invites, so
// they are kept in the room metadata as JSON and enforced by clients. Role grants
// become participant attributes and messages are sent as reliable data packets.
package livekit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"
	"github.com/twitchtv/twirp"

	"github.com/vovakirdan/roompool/internal/platform"
	"github.com/vovakirdan/roompool/internal/utils"
)

const (
	// RoleAttributePrefix prefixes participant attributes that mark a granted role.
	RoleAttributePrefix = "roompool.role."
	// ChannelTopicPrefix prefixes the data topic of a channel's messages.
	ChannelTopicPrefix = "roompool.channel."
	// NoticeTopic is the data topic of private notices.
	NoticeTopic = "roompool.notice"

	adminTokenTTL = time.Minute
	joinTokenTTL  = time.Hour
	inviteCodeLen = 12
)

// Config configures the LiveKit driver.
type Config struct {
	URL         string // RoomService endpoint, e.g. http://localhost:7880
	APIKey      string
	APISecret   string
	JoinBaseURL string // client page that accepts room/channel/invite query params
}

// roomMetadata is what the driver stores in the LiveKit room metadata.
type roomMetadata struct {
	Owner         string                     `json:"owner,omitempty"`
	SystemChannel string                     `json:"system_channel,omitempty"`
	Channels      map[string]channelMetadata `json:"channels,omitempty"`
	Invites       map[string]string          `json:"invites,omitempty"` // code -> channel id
}

type channelMetadata struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

type dataMessage struct {
	ChannelID string `json:"channel_id,omitempty"`
	SpaceID   string `json:"space_id"`
	Text      string `json:"text"`
}

// Client implements platform.Client against the LiveKit RoomService.
type Client struct {
	rooms     lkproto.RoomService
	wsURL     string
	apiKey    string
	apiSecret string
	joinBase  string

	// serializes metadata read-modify-write cycles
	metaMu sync.Mutex
}

// New creates a Client talking twirp JSON to the RoomService at cfg.URL.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("livekit url is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("livekit api key and secret are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	base := strings.TrimRight(toHTTP(cfg.URL), "/")
	joinBase := cfg.JoinBaseURL
	if joinBase == "" {
		joinBase = base
	}

	return &Client{
		rooms:     lkproto.NewRoomServiceJSONClient(base, httpClient),
		wsURL:     toWS(cfg.URL),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		joinBase:  strings.TrimRight(joinBase, "/"),
	}, nil
}

func toWS(u string) string {
	switch {
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	default:
		return u
	}
}

func toHTTP(u string) string {
	switch {
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	default:
		return u
	}
}

// withAdmin attaches a short-lived admin token for room to ctx.
func (c *Client) withAdmin(ctx context.Context, room string) (context.Context, error) {
	at := auth.NewAccessToken(c.apiKey, c.apiSecret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomAdmin:  true,
		RoomList:   true,
		RoomCreate: true,
		Room:       room,
	}).SetValidFor(adminTokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate admin token: %w", err)
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	return twirp.WithHTTPRequestHeaders(ctx, header)
}

func (c *Client) fetchRoom(ctx context.Context, spaceID string) (*lkproto.Room, *roomMetadata, error) {
	ctx, err := c.withAdmin(ctx, spaceID)
	if err != nil {
		return nil, nil, err
	}

	res, err := c.rooms.ListRooms(ctx, &lkproto.ListRoomsRequest{Names: []string{spaceID}})
	if err != nil {
		return nil, nil, fmt.Errorf("list rooms: %w", err)
	}
	for _, room := range res.GetRooms() {
		if room.GetName() != spaceID {
			continue
		}
		meta, err := decodeMetadata(room.GetMetadata())
		if err != nil {
			return nil, nil, fmt.Errorf("room %s: %w", spaceID, err)
		}
		return room, meta, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", platform.ErrSpaceNotFound, spaceID)
}

func decodeMetadata(raw string) (*roomMetadata, error) {
	meta := &roomMetadata{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if meta.Channels == nil {
		meta.Channels = make(map[string]channelMetadata)
	}
	if meta.Invites == nil {
		meta.Invites = make(map[string]string)
	}
	return meta, nil
}

// updateMetadata applies fn to the room metadata and writes it back when fn succeeds.
func (c *Client) updateMetadata(ctx context.Context, spaceID string, fn func(*roomMetadata) error) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	_, meta, err := c.fetchRoom(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := fn(meta); err != nil {
		return err
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	ctx, err = c.withAdmin(ctx, spaceID)
	if err != nil {
		return err
	}
	if _, err := c.rooms.UpdateRoomMetadata(ctx, &lkproto.UpdateRoomMetadataRequest{
		Room:     spaceID,
		Metadata: string(raw),
	}); err != nil {
		return fmt.Errorf("update room metadata: %w", err)
	}
	return nil
}

func (c *Client) channelURL(spaceID, channelID string) string {
	q := url.Values{}
	q.Set("room", spaceID)
	q.Set("channel", channelID)
	return c.joinBase + "?" + q.Encode()
}

func (c *Client) inviteURL(spaceID, code string) string {
	q := url.Values{}
	q.Set("room", spaceID)
	q.Set("invite", code)
	return c.joinBase + "?" + q.Encode()
}

// ResolveSpace implements platform.Client.
func (c *Client) ResolveSpace(ctx context.Context, spaceID string) (*platform.Space, error) {
	room, meta, err := c.fetchRoom(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return &platform.Space{ID: room.GetName(), Name: room.GetName(), OwnerID: meta.Owner}, nil
}

// CreateChannel implements platform.Client.
func (c *Client) CreateChannel(ctx context.Context, spaceID, name string) (*platform.Channel, error) {
	id := uuid.NewString()
	err := c.updateMetadata(ctx, spaceID, func(meta *roomMetadata) error {
		meta.Channels[id] = channelMetadata{Name: name}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return &platform.Channel{ID: id, SpaceID: spaceID, Name: name, URL: c.channelURL(spaceID, id)}, nil
}

// FindChannel implements platform.Client.
func (c *Client) FindChannel(ctx context.Context, spaceID, channelID string) (*platform.Channel, error) {
	_, meta, err := c.fetchRoom(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	ch, ok := meta.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
	}
	return &platform.Channel{ID: channelID, SpaceID: spaceID, Name: ch.Name, URL: c.channelURL(spaceID, channelID)}, nil
}

// DeleteChannel implements platform.Client. Invites into the channel go with it.
func (c *Client) DeleteChannel(ctx context.Context, spaceID, channelID string) error {
	return c.updateMetadata(ctx, spaceID, func(meta *roomMetadata) error {
		if _, ok := meta.Channels[channelID]; !ok {
			return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
		}
		delete(meta.Channels, channelID)
		for code, target := range meta.Invites {
			if target == channelID {
				delete(meta.Invites, code)
			}
		}
		if meta.SystemChannel == channelID {
			meta.SystemChannel = ""
		}
		return nil
	})
}

// SetSystemChannel implements platform.Client.
func (c *Client) SetSystemChannel(ctx context.Context, spaceID, channelID string) error {
	return c.updateMetadata(ctx, spaceID, func(meta *roomMetadata) error {
		if _, ok := meta.Channels[channelID]; !ok {
			return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
		}
		meta.SystemChannel = channelID
		return nil
	})
}

// GrantChannelAccess implements platform.Client.
func (c *Client) GrantChannelAccess(ctx context.Context, spaceID, channelID, role string) error {
	return c.updateMetadata(ctx, spaceID, func(meta *roomMetadata) error {
		ch, ok := meta.Channels[channelID]
		if !ok {
			return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
		}
		for _, r := range ch.Roles {
			if r == role {
				return nil
			}
		}
		ch.Roles = append(ch.Roles, role)
		meta.Channels[channelID] = ch
		return nil
	})
}

// ListMembers implements platform.Client. Agents, SIP and other non-standard
// participants are reported as integrations.
func (c *Client) ListMembers(ctx context.Context, spaceID string) ([]platform.Member, error) {
	_, meta, err := c.fetchRoom(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	ctx, err = c.withAdmin(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	res, err := c.rooms.ListParticipants(ctx, &lkproto.ListParticipantsRequest{Room: spaceID})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	members := make([]platform.Member, 0, len(res.GetParticipants()))
	for _, p := range res.GetParticipants() {
		members = append(members, platform.Member{
			UserID:      p.GetIdentity(),
			Owner:       meta.Owner != "" && p.GetIdentity() == meta.Owner,
			Integration: p.GetKind() != lkproto.ParticipantInfo_STANDARD,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// Evict implements platform.Client.
func (c *Client) Evict(ctx context.Context, spaceID, userID string) error {
	ctx, err := c.withAdmin(ctx, spaceID)
	if err != nil {
		return err
	}
	if _, err := c.rooms.RemoveParticipant(ctx, &lkproto.RoomParticipantIdentity{Room: spaceID, Identity: userID}); err != nil {
		return fmt.Errorf("remove participant %s: %w", userID, err)
	}
	return nil
}

// GrantRole implements platform.Client by setting a role attribute on the participant.
func (c *Client) GrantRole(ctx context.Context, spaceID, userID, role string) error {
	ctx, err := c.withAdmin(ctx, spaceID)
	if err != nil {
		return err
	}
	_, err = c.rooms.UpdateParticipant(ctx, &lkproto.UpdateParticipantRequest{
		Room:       spaceID,
		Identity:   userID,
		Attributes: map[string]string{RoleAttributePrefix + role: "true"},
	})
	if err != nil {
		return fmt.Errorf("update participant %s: %w", userID, err)
	}
	return nil
}

// CreateInvite implements platform.Client.
func (c *Client) CreateInvite(ctx context.Context, spaceID, channelID string) (*platform.Invite, error) {
	code := utils.NewCode(inviteCodeLen)
	err := c.updateMetadata(ctx, spaceID, func(meta *roomMetadata) error {
		if _, ok := meta.Channels[channelID]; !ok {
			return fmt.Errorf("%w: %s", platform.ErrChannelNotFound, channelID)
		}
		meta.Invites[code] = channelID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return &platform.Invite{Code: code, SpaceID: spaceID, ChannelID: channelID, URL: c.inviteURL(spaceID, code)}, nil
}

// ListInvites implements platform.Client.
func (c *Client) ListInvites(ctx context.Context, spaceID string) ([]platform.Invite, error) {
	_, meta, err := c.fetchRoom(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	invites := make([]platform.Invite, 0, len(meta.Invites))
	for code, channelID := range meta.Invites {
		invites = append(invites, platform.Invite{
			Code:      code,
			SpaceID:   spaceID,
			ChannelID: channelID,
			URL:       c.inviteURL(spaceID, code),
		})
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].Code < invites[j].Code })
	return invites, nil
}

// RevokeInvite implements platform.Client. Revoking an unknown code is a no-op.
func (c *Client) RevokeInvite(ctx context.Context, spaceID, code string) error {
	return c.updateMetadata(ctx, spaceID, func(meta *roomMetadata) error {
		delete(meta.Invites, code)
		return nil
	})
}

// SendMessage implements platform.Client.
func (c *Client) SendMessage(ctx context.Context, spaceID, channelID, text string) error {
	return c.sendData(ctx, spaceID, ChannelTopicPrefix+channelID, nil, dataMessage{
		ChannelID: channelID,
		SpaceID:   spaceID,
		Text:      text,
	})
}

// NotifyUser implements platform.Client. The notice only reaches the user while
// they are connected to the room.
func (c *Client) NotifyUser(ctx context.Context, spaceID, userID, text string) error {
	return c.sendData(ctx, spaceID, NoticeTopic, []string{userID}, dataMessage{
		SpaceID: spaceID,
		Text:    text,
	})
}

func (c *Client) sendData(ctx context.Context, spaceID, topic string, to []string, msg dataMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ctx, err = c.withAdmin(ctx, spaceID)
	if err != nil {
		return err
	}
	_, err = c.rooms.SendData(ctx, &lkproto.SendDataRequest{
		Room:                  spaceID,
		Data:                  payload,
		Kind:                  lkproto.DataPacket_RELIABLE,
		DestinationIdentities: to,
		Topic:                 &topic,
	})
	if err != nil {
		return fmt.Errorf("send data: %w", err)
	}
	return nil
}

// RedeemInvite implements platform.InviteRedeemer. The returned token lets identity
// join the room; the access gate still decides whether they may stay.
func (c *Client) RedeemInvite(ctx context.Context, spaceID, code, identity string) (*platform.JoinInfo, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	_, meta, err := c.fetchRoom(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	channelID, ok := meta.Invites[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", platform.ErrInviteNotFound, code)
	}

	at := auth.NewAccessToken(c.apiKey, c.apiSecret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomJoin: true,
		Room:     spaceID,
	}).
		SetIdentity(identity).
		SetName(identity).
		SetValidFor(joinTokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate join token: %w", err)
	}

	return &platform.JoinInfo{
		URL:       c.wsURL,
		Token:     token,
		SpaceID:   spaceID,
		ChannelID: channelID,
		Identity:  identity,
	}, nil
}

var (
	_ platform.Client         = (*Client)(nil)
	_ platform.InviteRedeemer = (*Client)(nil)
)
