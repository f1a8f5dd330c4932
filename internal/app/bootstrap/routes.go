// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"
	"strings"
	"time"

	accountfeature "github.com/dalemusser/groupsnap/internal/app/features/account"
	groupsfeature "github.com/dalemusser/groupsnap/internal/app/features/groups"
	healthfeature "github.com/dalemusser/groupsnap/internal/app/features/health"
	imagesfeature "github.com/dalemusser/groupsnap/internal/app/features/images"
	invitationsfeature "github.com/dalemusser/groupsnap/internal/app/features/invitations"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/metrics"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// APIPrefix is where the JSON API is mounted.
const APIPrefix = "/api/v1"

// BuildHandler constructs the root HTTP handler.
//
// WAFFLE calls this after Startup, so the stores, services and gateway
// built there are ready. The router carries:
//   - /health and /metrics for operators
//   - /ws for realtime group events
//   - /api/v1 for the JSON API, rate limited per client IP
//   - the local object store's files when storage_type is local
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	c := current()
	if c == nil {
		return nil, errors.New("bootstrap: BuildHandler called before Startup")
	}
	return c.router(appCfg, deps, logger), nil
}

func (c *components) router(appCfg AppConfig, deps DBDeps, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(appCfg.FrontendURL),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}))

	// Operational endpoints
	var pinger healthfeature.Pinger
	if deps.MongoClient != nil {
		pinger = deps.MongoClient
	}
	healthHandler := healthfeature.NewHandler(pinger, c.gateway, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", metrics.Handler())

	// Realtime. The gateway authenticates before upgrading.
	r.Handle("/ws", c.gateway.Handler())

	// Locally stored images
	if c.local != nil {
		prefix := strings.TrimRight(appCfg.StorageLocalURL, "/")
		r.Handle(prefix+"/*", objectstore.FileHandler(c.local, prefix))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(c.apiLimiter.Middleware)
		api.Use(c.auth.LoadSessionUser)

		api.Route("/v1", func(v1 chi.Router) {
			accountHandler := accountfeature.NewHandler(c.users, c.auth, c.loginLimiter, logger)
			accountHandler.Logins = c.logins
			accountHandler.Blobs = c.blobs
			v1.Mount("/user", accountfeature.Routes(accountHandler))

			imagesHandler := imagesfeature.NewHandler(c.pipeline, logger)
			v1.Mount("/group/{groupID}/image", imagesfeature.Routes(imagesHandler, c.auth, c.policy))

			groupsHandler := groupsfeature.NewHandler(c.lifecycle, logger)
			v1.Mount("/group", groupsfeature.Routes(groupsHandler, c.auth, c.policy))

			invitationsHandler := invitationsfeature.NewHandler(c.invites, logger)
			v1.Mount("/invite", invitationsfeature.Routes(invitationsHandler, c.auth))
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpjson.Fail(w, http.StatusNotFound, "Can't find "+req.URL.Path+" on this server")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpjson.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
