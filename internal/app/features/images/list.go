// internal/app/features/images/list.go
package images

import (
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/paging"
	"github.com/dalemusser/waffle/pantry/query"
)

// ServeFeed returns one keyset page of the group feed.
func (h *Handler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	gid, err := grouppolicy.GroupID(r)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	page, err := h.Images.List(r.Context(), gid, query.Get(r, "cursor"))
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.OK(w, http.StatusOK, page)
}

// ServeByUser returns a numbered page of the caller's images, or of every
// image when the caller is the group admin.
func (h *Handler) ServeByUser(w http.ResponseWriter, r *http.Request) {
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
	page, err := h.Images.ListByUser(r.Context(), m.GroupID, me.ID, m.Role, paging.ParsePage(r))
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.OK(w, http.StatusOK, page)
}
