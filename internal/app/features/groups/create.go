// internal/app/features/groups/create.go
package groups

import (
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"go.uber.org/zap"
)

type createRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// HandleCreate creates a group administered by the caller and invites the
// listed usernames.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	var req createRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}

	g, err := h.Groups.Create(r.Context(), req.Name, me.ID, req.Members)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	h.Log.Info("group created",
		zap.String("group_id", g.ID.Hex()),
		zap.String("admin_id", me.ID.Hex()))
	httpjson.OK(w, http.StatusCreated, map[string]any{"group": g})
}

// ServeList returns the caller's groups, most recently joined first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	groups, err := h.Groups.ListForUser(r.Context(), me.ID)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.OK(w, http.StatusOK, map[string]any{"groups": groups})
}
