package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/normalize"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a local user with the given username.
func (f *Fixtures) CreateUser(ctx context.Context, username string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		UsernameCI:   normalize.UsernameCI(username),
		Name:         username + " name",
		Email:        normalize.Email(username + "@example.com"),
		PasswordHash: "x",
		AuthProvider: models.AuthProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

// CreateGroup inserts a group administered by adminID along with the
// admin's membership.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, adminID primitive.ObjectID) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:        primitive.NewObjectID(),
		Name:      name,
		AdminID:   adminID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("CreateGroup(%s): %v", name, err)
	}
	f.CreateMembership(ctx, g.ID, adminID, models.RoleAdmin)
	return g
}

// CreateMembership inserts a membership for (groupID, userID).
func (f *Fixtures) CreateMembership(ctx context.Context, groupID, userID primitive.ObjectID, role string) models.GroupMembership {
	f.t.Helper()

	m := models.GroupMembership{
		ID:       primitive.NewObjectID(),
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	if _, err := f.db.Collection("group_memberships").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("CreateMembership: %v", err)
	}
	return m
}

// CreateInvitation inserts a pending invitation.
func (f *Fixtures) CreateInvitation(ctx context.Context, groupID, senderID, receiverID primitive.ObjectID) models.GroupInvitation {
	f.t.Helper()

	inv := models.GroupInvitation{
		ID:         primitive.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		GroupID:    groupID,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := f.db.Collection("group_invitations").InsertOne(ctx, inv); err != nil {
		f.t.Fatalf("CreateInvitation: %v", err)
	}
	return inv
}

// CreateImage inserts an image record created at the given time.
func (f *Fixtures) CreateImage(ctx context.Context, groupID, userID primitive.ObjectID, at time.Time) models.Image {
	f.t.Helper()

	id := primitive.NewObjectID()
	img := models.Image{
		ID:          id,
		ObjectKey:   "groups/" + groupID.Hex() + "/" + id.Hex() + ".jpeg",
		URL:         "/files/groups/" + groupID.Hex() + "/" + id.Hex() + ".jpeg",
		UserID:      userID,
		GroupID:     groupID,
		ContentType: "image/jpeg",
		Size:        1024,
		CreatedAt:   at.UTC().Truncate(time.Millisecond),
	}
	if _, err := f.db.Collection("images").InsertOne(ctx, img); err != nil {
		f.t.Fatalf("CreateImage: %v", err)
	}
	return img
}
