package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vovakirdan/roompool/internal/core"
	"github.com/vovakirdan/roompool/internal/platform/memory"
)

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(NewRouter(e.deps, &e.cfg, nopLogger()), method, path, body, e.token)
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", resp.Body.String(), err)
	}
	return v
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := createTestEnv(t, "s1", "s2")
	env.token = ""

	resp := env.do(t, http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("expected ok, got %d %q", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "roompool_available_private_rooms 2") {
		t.Fatalf("expected gauge in metrics output, got %s", resp.Body.String())
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := createTestEnv(t, "s1")

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.token = tt.token
			resp := env.do(t, http.MethodGet, "/api/rooms", "")
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", resp.Code)
			}
		})
	}

	other := createTestAuthService(t, "other-secret")
	forged, err := other.IssueToken("ops")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	env.token = forged
	if resp := env.do(t, http.MethodGet, "/api/rooms", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for foreign token, got %d", resp.Code)
	}
}

func TestListRooms(t *testing.T) {
	env := createTestEnv(t, "s1", "s2")

	resp := env.do(t, http.MethodGet, "/api/rooms", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	pool := decodeBody[PoolResponse](t, resp)
	if pool.Available != 2 || len(pool.Rooms) != 2 {
		t.Fatalf("unexpected pool response %+v", pool)
	}
	if pool.Rooms[0].Number != 1 || pool.Rooms[0].SpaceID != "s1" || pool.Rooms[0].State != "available" {
		t.Fatalf("unexpected first room %+v", pool.Rooms[0])
	}
}

func TestRegisterRoom(t *testing.T) {
	env := createTestEnv(t, "s1")
	env.platform.AddSpace("s2", "owner")

	resp := env.do(t, http.MethodPost, "/api/rooms", `{"space_id":"s2"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	room := decodeBody[RoomResponse](t, resp)
	if room.Number != 2 || room.SpaceID != "s2" {
		t.Fatalf("unexpected room %+v", room)
	}

	resp = env.do(t, http.MethodPost, "/api/rooms", `{"space_id":"s2"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	resp = env.do(t, http.MethodPost, "/api/rooms", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	if got := env.deps.Pool.AvailableCount(); got != 2 {
		t.Fatalf("expected 2 available rooms, got %d", got)
	}
}

func TestIsRegistered(t *testing.T) {
	env := createTestEnv(t, "s1")

	tests := []struct {
		spaceID string
		want    bool
	}{
		{"s1", true},
		{"unknown", false},
	}
	for _, tt := range tests {
		resp := env.do(t, http.MethodGet, "/api/rooms/"+tt.spaceID+"/registered", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.Code)
		}
		got := decodeBody[RegisteredResponse](t, resp)
		if got.Registered != tt.want {
			t.Errorf("%s: expected registered=%v, got %v", tt.spaceID, tt.want, got.Registered)
		}
	}
}

func TestCheckoutAndEndUsage(t *testing.T) {
	env := createTestEnv(t, "s1")

	resp := env.do(t, http.MethodPost, "/api/rooms/checkout", `{"occupants":["u1","u2"]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	checkout := decodeBody[CheckoutResponse](t, resp)
	if checkout.Room.State != "in_use" || checkout.Room.ChannelID == "" {
		t.Fatalf("unexpected room %+v", checkout.Room)
	}
	if checkout.InviteLink == "" || checkout.JumpLink == "" {
		t.Fatalf("expected links, got %+v", checkout)
	}

	// The only room is taken, so a second checkout times out.
	resp = env.do(t, http.MethodPost, "/api/rooms/checkout", `{"occupants":["u3"]}`)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}

	resp = env.do(t, http.MethodGet, "/api/rooms/s1/links", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	links := decodeBody[LinksResponse](t, resp)
	if links.InviteLink != checkout.InviteLink {
		t.Fatalf("expected invite to be reused, got %q and %q", links.InviteLink, checkout.InviteLink)
	}

	resp = env.do(t, http.MethodPost, "/api/rooms/s1/end", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if room := decodeBody[RoomResponse](t, resp); room.State != "available" {
		t.Fatalf("expected room to be available, got %+v", room)
	}
	if got := env.deps.Pool.AvailableCount(); got != 1 {
		t.Fatalf("expected room back in the pool, got %d", got)
	}

	resp = env.do(t, http.MethodGet, "/api/rooms/s1/links", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for idle room, got %d", resp.Code)
	}
}

func TestCheckoutRejectsEmptyOccupants(t *testing.T) {
	env := createTestEnv(t, "s1")

	for _, body := range []string{`{}`, `{"occupants":[]}`, `{"occupants":[""]}`} {
		resp := env.do(t, http.MethodPost, "/api/rooms/checkout", body)
		if resp.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", body, resp.Code)
		}
	}
	if got := env.deps.Pool.AvailableCount(); got != 1 {
		t.Fatalf("expected no room to be taken, got %d available", got)
	}
}

func TestCheckoutReportsPlatformFailure(t *testing.T) {
	env := createTestEnv(t, "s1")
	env.platform.FailOn(memory.OpCreateChannel, errInjected)

	resp := env.do(t, http.MethodPost, "/api/rooms/checkout", `{"occupants":["u1"]}`)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", resp.Code)
	}
	if got := env.deps.Pool.AvailableCount(); got != 1 {
		t.Fatalf("expected room to be requeued, got %d", got)
	}
}

func TestEndUsageRepairsBrokenRoom(t *testing.T) {
	env := createTestEnv(t, "s1")

	resp := env.do(t, http.MethodPost, "/api/rooms/checkout", `{"occupants":["u1"]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	env.platform.FailOn(memory.OpDeleteChannel, errInjected)
	resp = env.do(t, http.MethodPost, "/api/rooms/s1/end", "")
	if room := decodeBody[RoomResponse](t, resp); room.State != core.StateBroken.String() {
		t.Fatalf("expected broken room, got %+v", room)
	}

	env.platform.FailOn(memory.OpDeleteChannel, nil)
	resp = env.do(t, http.MethodPost, "/api/rooms/s1/end", "")
	if room := decodeBody[RoomResponse](t, resp); room.State != core.StateAvailable.String() {
		t.Fatalf("expected repaired room, got %+v", room)
	}
}

func TestEndUsageUnknownRoom(t *testing.T) {
	env := createTestEnv(t, "s1")

	resp := env.do(t, http.MethodPost, "/api/rooms/nope/end", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}
