// internal/app/features/images/upload.go
package images

import (
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
)

// HandleUpload stores the uploaded images in the group.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
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

	files, err := readFiles(w, r)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	views, err := h.Images.Upload(r.Context(), gid, me, files)
	if err != nil {
		httpjson.WriteError(w, r, h.Log, err)
		return
	}
	httpjson.OK(w, http.StatusOK, map[string]any{"images": views})
}
