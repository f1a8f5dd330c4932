// internal/app/features/images/routes.go
package images

import (
	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /api/v1/group/{groupID}/image. Every route requires
// membership of the group.
func Routes(h *Handler, am *auth.Manager, pol *grouppolicy.Policy) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(am.RequireSignedIn)
		pr.Use(pol.RequireMembership)

		pr.Post("/", h.HandleUpload)
		pr.Get("/", h.ServeFeed)
		pr.Get("/user", h.ServeByUser)
		pr.Post("/user/delete", h.HandleDelete)
	})

	return r
}
