// internal/app/features/account/login.go
package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var errBadCredentials = apperr.Unauthorized("Incorrect username or password")

// HandleLogin checks the credentials and sets the auth cookie. The user
// lookup comes first so accounts without a local password fail the same
// way as unknown ones.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		httpjson.WriteError(w, r, h.Log, apperr.Validation("Please provide username and password"))
		return
	}

	if h.Limiter != nil {
		if ok, msg := h.Limiter.Check(r, req.Username); !ok {
			httpjson.Fail(w, http.StatusTooManyRequests, msg)
			return
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.login")
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, req.Username)
	if errors.Is(err, mongo.ErrNoDocuments) {
		httpjson.WriteError(w, r, h.Log, errBadCredentials)
		return
	}
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not sign in", err))
		return
	}
	if !models.AllowsPassword(u.AuthProvider) || u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, req.Password) {
		httpjson.WriteError(w, r, h.Log, errBadCredentials)
		return
	}

	if err := h.Auth.Login(w, u.ID.Hex()); err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not sign in", err))
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetUsername(req.Username)
	}
	if h.Logins != nil {
		if err := h.Logins.Record(ctx, r, u.ID, models.AuthProviderLocal); err != nil {
			h.Log.Warn("login record failed", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		}
	}
	httpjson.OK(w, http.StatusOK, map[string]any{"user": u})
}

// HandleLogout clears the auth cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Auth.Logout(w)
	httpjson.Message(w, http.StatusOK, "Logged out successfully")
}

// ServeMe returns the signed-in user.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	id, err := primitive.ObjectIDFromHex(su.ID)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.me")
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("The user belonging to this token does no longer exist"))
		return
	}
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not load user", err))
		return
	}
	httpjson.OK(w, http.StatusOK, map[string]any{"user": u})
}

// recentLogins is how many logins ServeLogins returns.
const recentLogins = 10

// ServeLogins returns the signed-in user's recent logins.
func (h *Handler) ServeLogins(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	if h.Logins == nil {
		httpjson.OK(w, http.StatusOK, map[string]any{"logins": []models.LoginRecord{}})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.logins")
	defer cancel()

	logins, err := h.Logins.ListByUser(ctx, actor.ID, recentLogins)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not load login history", err))
		return
	}
	httpjson.OK(w, http.StatusOK, map[string]any{"logins": logins})
}
