// Package fanout pushes group events to connected clients over WebSocket.
//
// Each connection is authenticated before the upgrade and bound to exactly
// one group room for its lifetime. The server writes frames of the form
// {"event": "...", "data": {...}}; anything the client sends is read and
// discarded.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// Event names sent to clients.
const (
	EventConnected      = "connected"
	EventImagesUploaded = "imagesUploaded"
	EventImagesDeleted  = "imagesDeleted"
	EventGroupLeft      = "groupLeft"
	EventGroupDelete    = "groupDelete"
)

var (
	// ErrNotInitialized is returned by Broadcast before Start.
	ErrNotInitialized = errors.New("fanout: gateway not initialized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("fanout: gateway closed")
)

// DefaultWriteTimeout bounds a single frame write to one peer. A peer
// whose write times out is disconnected.
const DefaultWriteTimeout = 5 * time.Second

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   string
	Username string
	Name     string
}

// Session is an authenticated connection request for one group.
type Session struct {
	Identity
	GroupID string
}

// Authenticator verifies a bearer credential.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// MembershipChecker reports whether userID belongs to groupID.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// Options configures a Gateway.
type Options struct {
	WriteTimeout   time.Duration
	AllowedOrigins []string
	CookieName     string
	Logger         *zap.Logger
}

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// sendQueue is how many frames may wait for a slow peer before it is
// dropped.
const sendQueue = 32

// peer is one connection. Frames are queued by Broadcast and written by
// the peer's own writer goroutine, so a stalled client never holds up the
// caller.
type peer struct {
	conn   *websocket.Conn
	userID string
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func newPeer(conn *websocket.Conn, userID string) *peer {
	return &peer{
		conn:   conn,
		userID: userID,
		out:    make(chan []byte, sendQueue),
		done:   make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the peer is
// closed or its queue is full. A nil msg tells the writer to close the
// connection once everything before it is sent.
func (p *peer) enqueue(msg []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

// finish closes the peer after its queued frames are written.
func (p *peer) finish() {
	if !p.enqueue(nil) {
		p.close()
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// writeLoop drains the queue until the peer closes or a write fails.
func (p *peer) writeLoop(timeout time.Duration) {
	defer p.close()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.out:
			if msg == nil {
				return
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := websocket.Message.Send(p.conn, string(msg)); err != nil {
				return
			}
		}
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("fanout: encode %s: %w", event, err)
	}
	return b, nil
}

// Gateway owns the group rooms. The zero state after New is uninitialized;
// Start must be called before Broadcast or Handler accept work.
type Gateway struct {
	auth    Authenticator
	members MembershipChecker
	log     *zap.Logger

	writeTimeout time.Duration
	origins      []string
	cookieName   string

	mu      sync.RWMutex
	started bool
	closed  bool
	rooms   map[string]map[*peer]struct{}
}

// New returns an uninitialized gateway.
func New(auth Authenticator, members MembershipChecker, opts Options) *Gateway {
	g := &Gateway{
		auth:         auth,
		members:      members,
		log:          opts.Logger,
		writeTimeout: opts.WriteTimeout,
		cookieName:   opts.CookieName,
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	if g.writeTimeout <= 0 {
		g.writeTimeout = DefaultWriteTimeout
	}
	if g.cookieName == "" {
		g.cookieName = "jwt"
	}
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			g.origins = append(g.origins, o)
		}
	}
	return g
}

// Start makes the gateway ready. Calling it twice is harmless.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if !g.started {
		g.rooms = make(map[string]map[*peer]struct{})
		g.started = true
	}
	return nil
}

// Close disconnects every peer and drops all rooms.
func (g *Gateway) Close() error {
	g.mu.Lock()
	rooms := g.rooms
	g.rooms = nil
	g.closed = true
	g.mu.Unlock()

	for _, room := range rooms {
		for p := range room {
			p.close()
		}
	}
	return nil
}

// RoomSize returns the number of peers connected to groupID.
func (g *Gateway) RoomSize(groupID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[groupID])
}

// Rooms returns the number of groups with at least one connected peer.
func (g *Gateway) Rooms() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Gateway) ready() error {
	if g.closed {
		return ErrClosed
	}
	if !g.started {
		return ErrNotInitialized
	}
	return nil
}

func (g *Gateway) join(groupID string, p *peer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ready(); err != nil {
		return err
	}
	room, ok := g.rooms[groupID]
	if !ok {
		room = make(map[*peer]struct{})
		g.rooms[groupID] = room
	}
	room[p] = struct{}{}
	return nil
}

func (g *Gateway) leave(groupID string, p *peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[groupID]
	if !ok {
		return
	}
	delete(room, p)
	if len(room) == 0 {
		delete(g.rooms, groupID)
	}
}

// Broadcast queues event for every peer in the group's room and returns
// without waiting for delivery. Peers whose queue is full are dropped. An
// empty room is not an error.
func (g *Gateway) Broadcast(groupID, event string, payload any) error {
	g.mu.RLock()
	if err := g.ready(); err != nil {
		g.mu.RUnlock()
		metrics.Broadcasts.WithLabelValues(event, "not_ready").Inc()
		return err
	}
	peers := make([]*peer, 0, len(g.rooms[groupID]))
	for p := range g.rooms[groupID] {
		peers = append(peers, p)
	}
	g.mu.RUnlock()

	msg, err := encodeFrame(event, payload)
	if err != nil {
		metrics.Broadcasts.WithLabelValues(event, "error").Inc()
		return err
	}
	dropped := 0
	for _, p := range peers {
		if !p.enqueue(msg) {
			dropped++
			g.log.Debug("fanout: dropping slow peer",
				zap.String("group_id", groupID),
				zap.String("user_id", p.userID))
			g.leave(groupID, p)
			p.close()
		}
	}
	result := "ok"
	if dropped > 0 {
		result = "partial"
	}
	metrics.Broadcasts.WithLabelValues(event, result).Inc()
	return nil
}

// Evict unbinds userID's connections from the group's room. Frames already
// queued for them are delivered before their connections close. It returns
// the number of connections evicted.
func (g *Gateway) Evict(groupID, userID string) int {
	g.mu.Lock()
	var evicted []*peer
	if room, ok := g.rooms[groupID]; ok {
		for p := range room {
			if p.userID == userID {
				delete(room, p)
				evicted = append(evicted, p)
			}
		}
		if len(room) == 0 {
			delete(g.rooms, groupID)
		}
	}
	g.mu.Unlock()

	for _, p := range evicted {
		p.finish()
	}
	return len(evicted)
}

// CloseRoom unbinds every connection from the group's room, flushing
// queued frames first. It returns the number of connections closed.
func (g *Gateway) CloseRoom(groupID string) int {
	g.mu.Lock()
	room := g.rooms[groupID]
	delete(g.rooms, groupID)
	g.mu.Unlock()

	for p := range room {
		p.finish()
	}
	return len(room)
}

// Authenticate resolves the credential and checks that its user belongs
// to groupID.
func (g *Gateway) Authenticate(ctx context.Context, token, groupID string) (Session, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return Session{}, apperr.Validation("groupId is required")
	}
	if _, err := primitive.ObjectIDFromHex(groupID); err != nil {
		return Session{}, apperr.Validation("Invalid group id")
	}
	if strings.TrimSpace(token) == "" {
		return Session{}, apperr.Unauthorized("Authentication required")
	}

	id, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			return Session{}, err
		}
		return Session{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "Invalid or expired token", Err: err}
	}
	if id.UserID == "" {
		return Session{}, apperr.Unauthorized("Invalid or expired token")
	}

	ok, err := g.members.IsMember(ctx, groupID, id.UserID)
	if err != nil {
		return Session{}, apperr.Upstream("Failed to verify group membership", err)
	}
	if !ok {
		return Session{}, apperr.Forbidden("You are not a member of this group")
	}
	return Session{Identity: id, GroupID: groupID}, nil
}

type sessionKey struct{}

// Handler serves GET /ws?groupId=<hex>. The credential is read from the
// auth cookie or an Authorization: Bearer header.
func (g *Gateway) Handler() http.Handler {
	srv := websocket.Server{
		Handshake: g.checkOrigin,
		Handler:   g.serveConn,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			httpjson.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		g.mu.RLock()
		err := g.ready()
		g.mu.RUnlock()
		if err != nil {
			httpjson.Fail(w, http.StatusServiceUnavailable, "Realtime service unavailable")
			return
		}

		sess, err := g.Authenticate(r.Context(), g.tokenFromRequest(r), r.URL.Query().Get("groupId"))
		if err != nil {
			httpjson.WriteError(w, r, g.log, err)
			return
		}
		srv.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func (g *Gateway) tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(g.cookieName); err == nil {
		if tok := strings.TrimSpace(c.Value); tok != "" {
			return tok
		}
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and, when origins are configured, browser requests from them.
func (g *Gateway) checkOrigin(_ *websocket.Config, r *http.Request) error {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin == "" || len(g.origins) == 0 {
		return nil
	}
	for _, o := range g.origins {
		if strings.EqualFold(o, origin) {
			return nil
		}
	}
	return fmt.Errorf("fanout: origin %q not allowed", origin)
}

func (g *Gateway) serveConn(conn *websocket.Conn) {
	sess, ok := conn.Request().Context().Value(sessionKey{}).(Session)
	if !ok {
		_ = conn.Close()
		return
	}
	p := newPeer(conn, sess.UserID)
	defer p.close()

	// The hello frame is queued before joining so it is always first.
	hello, err := encodeFrame(EventConnected, map[string]string{
		"groupId": sess.GroupID,
		"userId":  sess.UserID,
	})
	if err != nil || !p.enqueue(hello) {
		return
	}
	if err := g.join(sess.GroupID, p); err != nil {
		return
	}
	defer g.leave(sess.GroupID, p)

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	go p.writeLoop(g.writeTimeout)
	g.log.Debug("fanout: peer joined",
		zap.String("group_id", sess.GroupID),
		zap.String("user_id", sess.UserID))

	for {
		var discard []byte
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			return
		}
	}
}
