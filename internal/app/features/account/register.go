// internal/app/features/account/register.go
package account

import (
	"errors"
	"net/http"

	userstore "github.com/dalemusser/groupsnap/internal/app/store/users"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/inputval"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.uber.org/zap"
)

type registerRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=20" label:"Username"`
	Name            string `json:"name" validate:"required,min=3,max=20" label:"Name"`
	Email           string `json:"email" validate:"required,email,max=50" label:"Email"`
	Password        string `json:"password" validate:"required,min=8,max=20" label:"Password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password" label:"Confirm Password"`
}

// HandleRegister creates a local account and signs it in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	if err := inputval.Check(req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not create account", err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.register")
	defer cancel()

	u, err := h.Users.Create(ctx, models.User{
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		AuthProvider: models.AuthProviderLocal,
	})
	switch {
	case errors.Is(err, userstore.ErrDuplicateUsername):
		httpjson.WriteError(w, r, h.Log, apperr.Conflict("Username is already taken"))
		return
	case errors.Is(err, userstore.ErrDuplicateEmail):
		httpjson.WriteError(w, r, h.Log, apperr.Conflict("Email is already taken"))
		return
	case err != nil:
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not create account", err))
		return
	}

	if err := h.Auth.Login(w, u.ID.Hex()); err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Upstream("Could not sign in", err))
		return
	}
	h.Log.Info("user registered", zap.String("user_id", u.ID.Hex()))
	httpjson.OK(w, http.StatusCreated, map[string]any{"user": u})
}
