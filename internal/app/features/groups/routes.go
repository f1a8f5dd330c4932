// internal/app/features/groups/routes.go
package groups

import (
	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /api/v1/group.
func Routes(h *Handler, am *auth.Manager, pol *grouppolicy.Policy) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(am.RequireSignedIn)

		pr.Get("/", h.ServeList)
		pr.Post("/", h.HandleCreate)

		pr.With(pol.RequireMembership).Get("/{groupID}/details", h.ServeDetails)
		pr.With(pol.RequireMembership).Delete("/{groupID}/leave", h.HandleLeave)
		pr.With(pol.RequireGroupAdmin).Delete("/{groupID}", h.HandleDelete)
	})

	return r
}
