// Package apptest wires the services, auth and group policy on top of the
// in-memory fakes for handler tests.
package apptest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/policy/grouppolicy"
	"github.com/dalemusser/groupsnap/internal/app/services/grouplife"
	"github.com/dalemusser/groupsnap/internal/app/services/imagepipe"
	"github.com/dalemusser/groupsnap/internal/app/services/invitations"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/dalemusser/groupsnap/internal/testutil/fakes"
	"go.uber.org/zap"
)

// App holds the fakes and the services built on them.
type App struct {
	Users       *fakes.Users
	Groups      *fakes.Groups
	Memberships *fakes.Memberships
	Invitations *fakes.Invitations
	Images      *fakes.Images
	Blobs       *fakes.Blobs
	Broadcaster *fakes.Broadcaster

	Issuer *auth.Issuer
	Auth   *auth.Manager
	Policy *grouppolicy.Policy

	Invites   *invitations.Service
	Lifecycle *grouplife.Service
	Pipeline  *imagepipe.Service

	Log *zap.Logger
}

// New builds an App with empty stores.
func New(t *testing.T) *App {
	t.Helper()
	a := &App{
		Users:       fakes.NewUsers(),
		Groups:      fakes.NewGroups(),
		Memberships: fakes.NewMemberships(),
		Invitations: fakes.NewInvitations(),
		Images:      fakes.NewImages(),
		Blobs:       fakes.NewBlobs(),
		Broadcaster: fakes.NewBroadcaster(),
		Log:         zap.NewNop(),
	}
	issuer, err := auth.NewIssuer("apptest-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	a.Issuer = issuer
	a.Auth = auth.NewManager(issuer, a.Users, auth.CookieOptions{}, a.Log)
	a.Policy = grouppolicy.New(a.Memberships, a.Groups, a.Log)

	a.Invites = invitations.New(a.Users, a.Groups, a.Memberships, a.Invitations, a.Log)
	a.Lifecycle = grouplife.New(grouplife.Deps{
		Users:       a.Users,
		Groups:      a.Groups,
		Memberships: a.Memberships,
		Invitations: a.Invitations,
		Images:      a.Images,
		Blobs:       a.Blobs,
		Inviter:     a.Invites,
		Broadcaster: a.Broadcaster,
		Logger:      a.Log,
	})
	a.Pipeline = imagepipe.New(imagepipe.Deps{
		Images:      a.Images,
		Users:       a.Users,
		Blobs:       a.Blobs,
		Normalizer:  fakes.Normalizer{Reject: "broken"},
		Broadcaster: a.Broadcaster,
		Logger:      a.Log,
	})
	return a
}

// Group creates a group administered by admin, with the admin membership,
// and adds members.
func (a *App) Group(t *testing.T, name string, admin models.User, members ...models.User) models.Group {
	t.Helper()
	ctx := context.Background()
	g, err := a.Groups.Create(ctx, models.Group{Name: name, AdminID: admin.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := a.Memberships.Add(ctx, g.ID, admin.ID, models.RoleAdmin); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	for _, m := range members {
		if _, err := a.Memberships.Add(ctx, g.ID, m.ID, models.RoleMember); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return g
}

// Token issues a bearer token for u.
func (a *App) Token(t *testing.T, u models.User) string {
	t.Helper()
	tok, _, err := a.Issuer.Issue(u.ID.Hex())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// As sets the Authorization header for u on req.
func (a *App) As(t *testing.T, req *http.Request, u models.User) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+a.Token(t, u))
	return req
}

// Serve wraps h in the session loader, as the real router does.
func (a *App) Serve(h http.Handler) http.Handler {
	return a.Auth.LoadSessionUser(h)
}
