// internal/app/features/account/handler.go
package account

import (
	"context"
	"net/http"

	userstore "github.com/dalemusser/groupsnap/internal/app/store/users"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/imagenorm"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/groupsnap/internal/app/system/ratelimit"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserStore is the subset of the users store the account endpoints need.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, p userstore.ProfileUpdate) (models.User, error)
	SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error
}

// LoginHistory records successful logins and lists them back.
type LoginHistory interface {
	Record(ctx context.Context, r *http.Request, userID primitive.ObjectID, provider string) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.LoginRecord, error)
}

// Handler serves registration, login, logout, the current-user lookup and
// profile changes.
type Handler struct {
	Users   UserStore
	Auth    *auth.Manager
	Limiter *ratelimit.LoginLimiter
	Logins  LoginHistory      // optional
	Blobs   objectstore.Store // optional; profile photos are refused without it
	Photos  imagenorm.JPEG
	Log     *zap.Logger
}

func NewHandler(users UserStore, am *auth.Manager, limiter *ratelimit.LoginLimiter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Users: users, Auth: am, Limiter: limiter, Photos: imagenorm.New(), Log: logger}
}
