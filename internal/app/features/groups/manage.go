// internal/app/features/groups/manage.go
package groups

import (
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
)

// ServeDetails returns the group overview for a member.
func (h *Handler) ServeDetails(w http.ResponseWriter, r *http.Request) {
	gid, err := grouppolicy.GroupID(r)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	d, err := h.Groups.Details(r.Context(), gid)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.OK(w, http.StatusOK, d)
}

// HandleDelete removes the group and everything in it. Admin only.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	gid, err := grouppolicy.GroupID(r)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	if err := h.Groups.Delete(r.Context(), gid, me); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.Message(w, http.StatusOK, "Group and all associated data deleted successfully")
}

// HandleLeave removes the caller from the group along with their images.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	gid, err := grouppolicy.GroupID(r)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	if err := h.Groups.Leave(r.Context(), gid, me); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.Message(w, http.StatusOK, "Successfully left the group")
}
