// Package auth issues the jwt cookie and resolves it back to a user on
// every request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CookieName is the cookie the token travels in.
const CookieName = "jwt"

// SessionUser is the signed-in user injected into r.Context().
type SessionUser struct {
	ID       string
	Username string
	Name     string
}

// UserFetcher loads the current state of a user. It returns nil when the
// user no longer exists.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *SessionUser
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// WithTestUser returns r carrying u as the signed-in user.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// CurrentActor returns the signed-in user with a parsed id.
func CurrentActor(r *http.Request) (models.Actor, bool) {
	u, ok := CurrentUser(r)
	if !ok {
		return models.Actor{}, false
	}
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Username: u.Username, Name: u.Name}, true
}

// CookieOptions controls the attributes of the auth cookie.
type CookieOptions struct {
	Domain string
	Secure bool
}

// Manager ties token issuing, cookie handling and user lookup together.
type Manager struct {
	issuer  *Issuer
	fetcher UserFetcher
	cookie  CookieOptions
	logger  *zap.Logger
}

// NewManager creates a Manager.
func NewManager(issuer *Issuer, fetcher UserFetcher, cookie CookieOptions, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{issuer: issuer, fetcher: fetcher, cookie: cookie, logger: logger}
}

// Login issues a token for userID and sets it as the auth cookie.
func (m *Manager) Login(w http.ResponseWriter, userID string) error {
	token, exp, err := m.issuer.Issue(userID)
	if err != nil {
		return err
	}
	c := m.baseCookie()
	c.Value = token
	if !exp.IsZero() {
		c.Expires = exp
		c.MaxAge = int(time.Until(exp).Seconds())
	}
	http.SetCookie(w, c)
	return nil
}

// Logout clears the auth cookie.
func (m *Manager) Logout(w http.ResponseWriter) {
	c := m.baseCookie()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (m *Manager) baseCookie() *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		Domain:   m.cookie.Domain,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
	}
	// Cross-site frontends need SameSite=None, which browsers only accept
	// on Secure cookies.
	if m.cookie.Secure {
		c.SameSite = http.SameSiteNoneMode
	} else {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// Resolve verifies token and loads its user.
func (m *Manager) Resolve(ctx context.Context, token string) (*SessionUser, error) {
	if token == "" {
		return nil, apperr.Unauthorized("Please login to get access")
	}
	claims, err := m.issuer.Verify(token)
	if err != nil {
		msg := "Invalid token. Please login again"
		if errors.Is(err, ErrExpiredToken) {
			msg = "Your token has expired. Please login again"
		}
		return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Message: msg, Err: err}
	}
	u := m.fetcher.FetchUser(ctx, claims.UserID)
	if u == nil {
		return nil, apperr.Unauthorized("The user belonging to this token does no longer exist")
	}
	return u, nil
}

// LoadSessionUser injects the user into context when the request carries
// a valid token. Requests without one pass through untouched.
func (m *Manager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, err := m.Resolve(r.Context(), token)
		if err != nil {
			m.logger.Debug("auth: token rejected",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireSignedIn ensures there is a user in context (set by
// LoadSessionUser). Otherwise it answers 401 with a JSON envelope.
func (m *Manager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		httpjson.Fail(w, http.StatusUnauthorized, "Please login to get access")
	})
}

// TokenFromRequest reads the token from the auth cookie, falling back to an
// Authorization: Bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
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

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}
