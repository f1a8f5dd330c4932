// internal/app/features/invitations/handler.go
package invitations

import (
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	invitesvc "github.com/dalemusser/groupsnap/internal/app/services/invitations"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the invitation endpoints.
type Handler struct {
	Invites *invitesvc.Service
	Log     *zap.Logger
}

func NewHandler(svc *invitesvc.Service, logger *zap.Logger) *Handler {
	return &Handler{Invites: svc, Log: logger}
}

// Routes mounts under /api/v1/invite.
func Routes(h *Handler, am *auth.Manager) chi.Router {
	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(am.RequireSignedIn)
		pr.Get("/", h.ServeMine)
		pr.Post("/{groupID}", h.HandleInvite)
		pr.Get("/{groupID}/accept", h.HandleAccept)
		pr.Delete("/{groupID}/decline", h.HandleDecline)
	})
	return r
}

// caller returns the signed-in user and the group id from the URL.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Actor, primitive.ObjectID, bool) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return models.Actor{}, primitive.NilObjectID, false
	}
	gid, err := primitive.ObjectIDFromHex(chi.URLParam(r, grouppolicy.URLParam))
	if err != nil {
		httpjson.WriteError(w, r, h.Log, apperr.Validation("This is not a valid group ID"))
		return models.Actor{}, primitive.NilObjectID, false
	}
	return me, gid, true
}

type inviteRequest struct {
	Members []string `json:"members"`
}

// HandleInvite invites usernames to the group. Admin only.
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	me, gid, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	if _, err := h.Invites.Invite(r.Context(), gid, req.Members, me.ID); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.Message(w, http.StatusCreated, "Invitation successfully sent to all the valid members of the group")
}

// HandleAccept turns the caller's invitation into a membership.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	me, gid, ok := h.caller(w, r)
	if !ok {
		return
	}
	m, err := h.Invites.Accept(r.Context(), gid, me.ID)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "You are now a member of the group",
		"data":    map[string]any{"membership": m},
	})
}

// HandleDecline drops the caller's invitation.
func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	me, gid, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.Invites.Decline(r.Context(), gid, me.ID); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.Message(w, http.StatusOK, "Invitation has been deleted successfully")
}

// ServeMine lists the caller's pending invitations, newest first.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	list, err := h.Invites.ListForUser(r.Context(), me.ID)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.OK(w, http.StatusOK, map[string]any{"invitations": list})
}
