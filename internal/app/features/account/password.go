// internal/app/features/account/password.go
package account

import (
	"errors"
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/inputval"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required" label:"Current Password"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=20" label:"Password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword" label:"Confirm Password"`
}

// HandleChangePassword replaces the caller's password after checking the
// current one, then re-issues the auth cookie.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}

	var req passwordRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	if err := inputval.Check(req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.password")
	defer cancel()

	u, err := h.Users.GetByID(ctx, actor.ID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("The user belonging to this token does no longer exist"))
		return
	}
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not load user", err))
		return
	}
	if !models.AllowsPassword(u.AuthProvider) || u.PasswordHash == "" {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("This account signs in with Google and has no password to change"))
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Incorrect current password"))
		return
	}
	if auth.CheckPassword(u.PasswordHash, req.NewPassword) {
		httpjson.WriteError(w, r, h.Log, apperr.Validation("New password cannot be the same as your current password"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not change password", err))
		return
	}
	if err := h.Users.SetPassword(ctx, u.ID, hash); err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not change password", err))
		return
	}

	if err := h.Auth.Login(w, u.ID.Hex()); err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not sign in", err))
		return
	}
	h.Log.Info("password changed", zap.String("user_id", u.ID.Hex()))
	httpjson.OK(w, http.StatusOK, map[string]any{"user": u})
}
