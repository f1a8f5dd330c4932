// internal/app/features/images/delete.go
package images

import (
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
)

type deleteRequest struct {
	ImagesID []string `json:"imagesId"`
}

// HandleDelete removes the listed images. Members may delete only their
// own; the admin may delete any.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.CurrentActor(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Unauthorized("Please login to get access"))
		return
	}
	m, ok := grouppolicy.MembershipFrom(r)
	if !ok {
		httpjson.WriteError(w, r, h.Log, apperr.Forbidden("You are not authorized to access this group resource"))
		return
	}
	var req deleteRequest
	if err := httpjson.DecodeJSON(w, r, &req); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	if _, err := h.Images.Delete(r.Context(), m.GroupID, me, m.Role, req.ImagesID); err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.Message(w, http.StatusOK, "Images deleted successfully")
}
