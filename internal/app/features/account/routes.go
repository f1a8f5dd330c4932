// internal/app/features/account/routes.go
package account

import "github.com/go-chi/chi/v5"

// Routes mounts under /api/v1/user.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(h.Auth.RequireSignedIn)
		pr.Get("/", h.ServeMe)
		pr.Patch("/", h.HandleUpdateProfile)
		pr.Post("/changePassword", h.HandleChangePassword)
		pr.Get("/logout", h.HandleLogout)
		pr.Get("/logins", h.ServeLogins)
	})

	return r
}
