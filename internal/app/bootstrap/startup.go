// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/services/grouplife"
	"github.com/dalemusser/groupsnap/internal/app/services/imagepipe"
	"github.com/dalemusser/groupsnap/internal/app/services/invitations"
	groupstore "github.com/dalemusser/groupsnap/internal/app/store/groups"
	imagestore "github.com/dalemusser/groupsnap/internal/app/store/images"
	invitationstore "github.com/dalemusser/groupsnap/internal/app/store/invitations"
	loginstore "github.com/dalemusser/groupsnap/internal/app/store/logins"
	membershipstore "github.com/dalemusser/groupsnap/internal/app/store/memberships"
	userstore "github.com/dalemusser/groupsnap/internal/app/store/users"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/fanout"
	"github.com/dalemusser/groupsnap/internal/app/system/imagenorm"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/groupsnap/internal/app/system/ratelimit"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.uber.org/zap"
)

// components are built once in Startup and shared by BuildHandler and
// Shutdown.
type components struct {
	users       *userstore.Store
	groups      *groupstore.Store
	memberships *membershipstore.Store
	logins      *loginstore.Store

	blobs *objectstore.Blobs
	local *storage.Local // nil unless storage_type is local

	auth    *auth.Manager
	gateway *fanout.Gateway
	policy  *grouppolicy.Policy

	invites   *invitations.Service
	lifecycle *grouplife.Service
	pipeline  *imagepipe.Service

	apiLimiter   *ratelimit.Limiter
	loginLimiter *ratelimit.LoginLimiter
	sweeper      *workers.OrphanSweep
}

var (
	appMu   sync.Mutex
	running *components
)

func current() *components {
	appMu.Lock()
	defer appMu.Unlock()
	return running
}

// Startup builds the stores, services and realtime gateway, and starts the
// background workers.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts overridden from environment", zap.Int("count", n))
	}

	c, err := buildComponents(ctx, coreCfg, appCfg, deps, logger)
	if err != nil {
		return err
	}
	if err := c.gateway.Start(); err != nil {
		return fmt.Errorf("start realtime gateway: %w", err)
	}
	if c.sweeper != nil {
		c.sweeper.Start()
	}

	appMu.Lock()
	running = c
	appMu.Unlock()
	return nil
}

func buildComponents(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*components, error) {
	db := deps.MongoDatabase
	c := &components{
		users:       userstore.New(db),
		groups:      groupstore.New(db),
		memberships: membershipstore.New(db),
		logins:      loginstore.New(db),
	}
	invites := invitationstore.New(db)
	images := imagestore.New(db)

	if err := c.openBlobs(ctx, appCfg, logger); err != nil {
		return nil, err
	}

	issuer, err := auth.NewIssuer(appCfg.JWTSecret, appCfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	c.auth = auth.NewManager(issuer, userstore.NewFetcher(db), auth.CookieOptions{
		Domain: appCfg.CookieDomain,
		Secure: coreCfg.Env == "prod",
	}, logger)

	c.gateway = fanout.New(gatewayAuthenticator(c.auth), memberChecker{store: c.memberships}, fanout.Options{
		WriteTimeout:   appCfg.WSWriteTimeout,
		AllowedOrigins: allowedOrigins(appCfg.FrontendURL),
		CookieName:     auth.CookieName,
		Logger:         logger.Named("fanout"),
	})
	c.policy = grouppolicy.New(c.memberships, c.groups, logger)

	c.invites = invitations.New(c.users, c.groups, c.memberships, invites, logger.Named("invitations"))
	c.lifecycle = grouplife.New(grouplife.Deps{
		Users:       c.users,
		Groups:      c.groups,
		Memberships: c.memberships,
		Invitations: invites,
		Images:      images,
		Blobs:       c.blobs,
		Inviter:     c.invites,
		Broadcaster: c.gateway,
		Logger:      logger.Named("grouplife"),
	})
	c.pipeline = imagepipe.New(imagepipe.Deps{
		Images:      images,
		Users:       c.users,
		Blobs:       c.blobs,
		Normalizer:  imagenorm.New(),
		Broadcaster: c.gateway,
		Logger:      logger.Named("imagepipe"),
	})

	c.apiLimiter = ratelimit.New(appCfg.RateLimitPerHour, time.Hour)
	c.loginLimiter = ratelimit.NewLoginLimiter()

	if appCfg.OrphanSweepInterval > 0 {
		c.sweeper = workers.NewOrphanSweep(images, c.groups, c.memberships, invites, c.blobs,
			logger.Named("orphansweep"), appCfg.OrphanSweepInterval)
	}
	return c, nil
}

func (c *components) openBlobs(ctx context.Context, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StorageType {
	case "s3":
		s3, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Region:    appCfg.StorageS3Region,
			Bucket:    appCfg.StorageS3Bucket,
			Prefix:    appCfg.StorageS3Prefix,
			Endpoint:  appCfg.StorageS3Endpoint,
			PublicURL: appCfg.StoragePublicURL,
		})
		if err != nil {
			return fmt.Errorf("s3 object store: %w", err)
		}
		c.blobs = objectstore.New(s3)
		logger.Info("object store: s3",
			zap.String("bucket", appCfg.StorageS3Bucket),
			zap.String("region", appCfg.StorageS3Region))
	default:
		local, err := objectstore.NewLocal(appCfg.StorageLocalPath, appCfg.StorageLocalURL)
		if err != nil {
			return fmt.Errorf("local object store: %w", err)
		}
		c.blobs, c.local = objectstore.New(local), local
		logger.Info("object store: local",
			zap.String("path", appCfg.StorageLocalPath),
			zap.String("url", appCfg.StorageLocalURL))
	}
	return nil
}
