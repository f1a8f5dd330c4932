package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/net/websocket"
)

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// tokens maps credential -> user id; members maps group id -> user ids.
type fakeAuth struct {
	tokens  map[string]string
	members map[string][]string
	err     error
}

func (f fakeAuth) Authenticate(_ context.Context, token string) (Identity, error) {
	uid, ok := f.tokens[token]
	if !ok {
		return Identity{}, errors.New("bad token")
	}
	return Identity{UserID: uid, Username: "user-" + uid}, nil
}

func (f fakeAuth) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, u := range f.members[groupID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func newTestGateway(t *testing.T, fa fakeAuth, opts Options) (*Gateway, *httptest.Server) {
	t.Helper()
	g := New(fa, fa, opts)
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(func() {
		_ = g.Close()
		srv.Close()
	})
	return g, srv
}

func dial(srvURL, groupID, token, origin string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws?groupId=" + groupID
	if origin == "" {
		origin = srvURL
	}
	cfg, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, err
	}
	cfg.Header = make(http.Header)
	if token != "" {
		cfg.Header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DialConfig(cfg)
}

func mustDial(t *testing.T, srvURL, groupID, token string) *websocket.Conn {
	t.Helper()
	conn, err := dial(srvURL, groupID, token, "")
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got testFrame
	if err := websocket.JSON.Receive(conn, &got); err != nil {
		t.Fatalf("receive frame: %v", err)
	}
	return got
}

func TestBroadcast_BeforeStart(t *testing.T) {
	g := New(fakeAuth{}, fakeAuth{}, Options{})
	err := g.Broadcast(primitive.NewObjectID().Hex(), EventImagesUploaded, nil)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestBroadcast_EmptyRoom(t *testing.T) {
	g := New(fakeAuth{}, fakeAuth{}, Options{})
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := g.Broadcast(primitive.NewObjectID().Hex(), EventGroupDelete, map[string]string{}); err != nil {
		t.Errorf("empty room broadcast should succeed, got %v", err)
	}
}

func TestStart_AfterClose(t *testing.T) {
	g := New(fakeAuth{}, fakeAuth{}, Options{})
	_ = g.Close()
	if err := g.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"alice-tok": "alice", "bob-tok": "bob"},
		members: map[string][]string{group: {"alice"}},
	}
	g := New(fa, fa, Options{})

	tests := []struct {
		name    string
		token   string
		groupID string
		kind    apperr.Kind
	}{
		{"missing group", "alice-tok", "", apperr.KindValidation},
		{"bad group id", "alice-tok", "nope", apperr.KindValidation},
		{"missing token", "", group, apperr.KindUnauthorized},
		{"bad token", "forged", group, apperr.KindUnauthorized},
		{"not a member", "bob-tok", group, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Authenticate(context.Background(), tt.token, tt.groupID)
			if err == nil {
				t.Fatal("expected error")
			}
			if k := apperr.KindOf(err); k != tt.kind {
				t.Errorf("kind = %v, want %v", k, tt.kind)
			}
		})
	}

	sess, err := g.Authenticate(context.Background(), "alice-tok", group)
	if err != nil {
		t.Fatalf("member should authenticate: %v", err)
	}
	if sess.UserID != "alice" || sess.GroupID != group {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestAuthenticate_MembershipLookupFails(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{tokens: map[string]string{"t": "u"}, err: errors.New("db down")}
	g := New(fa, fa, Options{})
	_, err := g.Authenticate(context.Background(), "t", group)
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("expected upstream kind, got %v", err)
	}
}

func TestHandler_ConnectedThenBroadcast(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"alice-tok": "alice", "bob-tok": "bob"},
		members: map[string][]string{group: {"alice", "bob"}},
	}
	g, srv := newTestGateway(t, fa, Options{})

	alice := mustDial(t, srv.URL, group, "alice-tok")
	bob := mustDial(t, srv.URL, group, "bob-tok")

	for _, c := range []*websocket.Conn{alice, bob} {
		if got := readFrame(t, c); got.Event != EventConnected {
			t.Fatalf("first frame = %q, want connected", got.Event)
		}
	}
	if n := g.RoomSize(group); n != 2 {
		t.Fatalf("room size = %d, want 2", n)
	}
	if n := g.Rooms(); n != 1 {
		t.Fatalf("rooms = %d, want 1", n)
	}

	payload := map[string]any{"imagesDeleted": 2, "totalImages": 5, "deletedBy": "alice"}
	if err := g.Broadcast(group, EventImagesDeleted, payload); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for _, c := range []*websocket.Conn{alice, bob} {
		got := readFrame(t, c)
		if got.Event != EventImagesDeleted {
			t.Fatalf("event = %q, want %q", got.Event, EventImagesDeleted)
		}
		var data struct {
			ImagesDeleted int    `json:"imagesDeleted"`
			TotalImages   int    `json:"totalImages"`
			DeletedBy     string `json:"deletedBy"`
		}
		if err := json.Unmarshal(got.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data.ImagesDeleted != 2 || data.TotalImages != 5 || data.DeletedBy != "alice" {
			t.Errorf("unexpected data %+v", data)
		}
	}
}

func TestHandler_RoomsAreIsolated(t *testing.T) {
	groupA := primitive.NewObjectID().Hex()
	groupB := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"a": "alice", "b": "bob"},
		members: map[string][]string{groupA: {"alice"}, groupB: {"bob"}},
	}
	g, srv := newTestGateway(t, fa, Options{})

	alice := mustDial(t, srv.URL, groupA, "a")
	bob := mustDial(t, srv.URL, groupB, "b")
	readFrame(t, alice)
	readFrame(t, bob)

	if err := g.Broadcast(groupA, EventGroupLeft, map[string]string{"userId": "x"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := readFrame(t, alice); got.Event != EventGroupLeft {
		t.Errorf("alice got %q", got.Event)
	}

	_ = bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var f testFrame
	if err := websocket.JSON.Receive(bob, &f); err == nil {
		t.Errorf("bob should not receive group A events, got %q", f.Event)
	}
}

func TestHandler_RejectsBeforeUpgrade(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"bob-tok": "bob"},
		members: map[string][]string{group: {"alice"}},
	}
	_, srv := newTestGateway(t, fa, Options{})

	if _, err := dial(srv.URL, group, "", ""); err == nil {
		t.Error("expected dial without token to fail")
	}
	if _, err := dial(srv.URL, group, "bob-tok", ""); err == nil {
		t.Error("expected non-member dial to fail")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ws?groupId="+group, nil)
	req.Header.Set("Authorization", "Bearer bob-tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("plain GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHandler_Origin(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"a": "alice"},
		members: map[string][]string{group: {"alice"}},
	}
	_, srv := newTestGateway(t, fa, Options{AllowedOrigins: []string{"https://app.example.com/"}})

	if _, err := dial(srv.URL, group, "a", "https://evil.example.com"); err == nil {
		t.Error("expected foreign origin to be rejected")
	}
	conn, err := dial(srv.URL, group, "a", "https://app.example.com")
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	defer conn.Close()
	if got := readFrame(t, conn); got.Event != EventConnected {
		t.Errorf("first frame = %q", got.Event)
	}
}

func TestHandler_NotStarted(t *testing.T) {
	g := New(fakeAuth{}, fakeAuth{}, Options{})
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?groupId=x", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestClose_DisconnectsPeers(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"a": "alice"},
		members: map[string][]string{group: {"alice"}},
	}
	g, srv := newTestGateway(t, fa, Options{})

	conn := mustDial(t, srv.URL, group, "a")
	readFrame(t, conn)

	_ = g.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f testFrame
	if err := websocket.JSON.Receive(conn, &f); err == nil {
		t.Error("expected connection to be closed")
	}
	if err := g.Broadcast(group, EventGroupDelete, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if n := g.RoomSize(group); n != 0 {
		t.Errorf("room size after close = %d", n)
	}
}

func waitRoomSize(t *testing.T, g *Gateway, group string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for g.RoomSize(group) != want {
		if time.Now().After(deadline) {
			t.Fatalf("room size = %d, want %d", g.RoomSize(group), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f testFrame
	if err := websocket.JSON.Receive(conn, &f); err == nil {
		t.Errorf("expected connection to be closed, got %q", f.Event)
	}
}

func TestBroadcast_DoesNotWaitForStalledPeers(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"a": "alice", "b": "bob"},
		members: map[string][]string{group: {"alice", "bob"}},
	}
	g, srv := newTestGateway(t, fa, Options{WriteTimeout: 2 * time.Second})

	// Neither client ever reads.
	mustDial(t, srv.URL, group, "a")
	mustDial(t, srv.URL, group, "b")
	waitRoomSize(t, g, group, 2)

	payload := map[string]string{"blob": strings.Repeat("x", 1<<20)}
	start := time.Now()
	for i := 0; i < 2*sendQueue; i++ {
		if err := g.Broadcast(group, EventImagesUploaded, payload); err != nil {
			t.Fatalf("Broadcast: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("broadcasts took %v; they must not wait on slow peers", elapsed)
	}

	waitRoomSize(t, g, group, 0)
}

func TestEvict_LeaverStopsReceiving(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"a": "alice", "b": "bob"},
		members: map[string][]string{group: {"alice", "bob"}},
	}
	g, srv := newTestGateway(t, fa, Options{})

	alice := mustDial(t, srv.URL, group, "a")
	bob := mustDial(t, srv.URL, group, "b")
	readFrame(t, alice)
	readFrame(t, bob)

	if err := g.Broadcast(group, EventGroupLeft, map[string]string{"userId": "bob"}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n := g.Evict(group, "bob"); n != 1 {
		t.Fatalf("Evict = %d, want 1", n)
	}
	if n := g.RoomSize(group); n != 1 {
		t.Errorf("room size = %d, want 1", n)
	}

	if got := readFrame(t, bob); got.Event != EventGroupLeft {
		t.Errorf("bob's last frame = %q, want %q", got.Event, EventGroupLeft)
	}
	expectClosed(t, bob)

	if got := readFrame(t, alice); got.Event != EventGroupLeft {
		t.Errorf("alice got %q", got.Event)
	}
	if err := g.Broadcast(group, EventImagesUploaded, map[string]int{"totalImages": 1}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if got := readFrame(t, alice); got.Event != EventImagesUploaded {
		t.Errorf("alice got %q", got.Event)
	}

	if n := g.Evict(group, "nobody"); n != 0 {
		t.Errorf("Evict unknown user = %d", n)
	}
}

func TestCloseRoom_FlushesThenDisconnects(t *testing.T) {
	group := primitive.NewObjectID().Hex()
	fa := fakeAuth{
		tokens:  map[string]string{"a": "alice", "b": "bob"},
		members: map[string][]string{group: {"alice", "bob"}},
	}
	g, srv := newTestGateway(t, fa, Options{})

	alice := mustDial(t, srv.URL, group, "a")
	bob := mustDial(t, srv.URL, group, "b")
	readFrame(t, alice)
	readFrame(t, bob)

	if err := g.Broadcast(group, EventGroupDelete, map[string]string{"groupId": group}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n := g.CloseRoom(group); n != 2 {
		t.Fatalf("CloseRoom = %d, want 2", n)
	}
	if g.RoomSize(group) != 0 || g.Rooms() != 0 {
		t.Errorf("room still open: size=%d rooms=%d", g.RoomSize(group), g.Rooms())
	}
	for _, c := range []*websocket.Conn{alice, bob} {
		if got := readFrame(t, c); got.Event != EventGroupDelete {
			t.Errorf("last frame = %q, want %q", got.Event, EventGroupDelete)
		}
		expectClosed(t, c)
	}
}
