package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/workers"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/dalemusser/groupsnap/internal/testutil/fakes"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type world struct {
	groups  *fakes.Groups
	members *fakes.Memberships
	invites *fakes.Invitations
	images  *fakes.Images
	blobs   *fakes.Blobs
	sweep   *workers.OrphanSweep
}

func newWorld() *world {
	w := &world{
		groups:  fakes.NewGroups(),
		members: fakes.NewMemberships(),
		invites: fakes.NewInvitations(),
		images:  fakes.NewImages(),
		blobs:   fakes.NewBlobs(),
	}
	w.sweep = workers.NewOrphanSweep(w.images, w.groups, w.members, w.invites, w.blobs, zap.NewNop(), time.Hour)
	return w
}

func (w *world) post(groupID, userID primitive.ObjectID, key string) {
	w.blobs.Seed(key, []byte("x"))
	w.images.Seed(groupID, userID, time.Now(), key)
}

func TestRunOnce_RemovesOrphans(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()

	g, _ := w.groups.Create(ctx, models.Group{Name: "Trip", AdminID: alice})
	_, _ = w.members.Add(ctx, g.ID, alice, models.RoleAdmin)
	w.post(g.ID, alice, "keep")
	w.post(g.ID, bob, "former-member")

	gone := primitive.NewObjectID()
	w.post(gone, alice, "deleted-group-1")
	w.post(gone, bob, "deleted-group-2")

	rep, err := w.sweep.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.ImagesRemoved != 3 || rep.Failures != 0 || rep.GroupsScanned != 2 {
		t.Errorf("report = %+v", rep)
	}
	if w.images.Len() != 1 {
		t.Errorf("images = %d, want 1", w.images.Len())
	}
	if keys := w.blobs.Keys(); len(keys) != 1 || keys[0] != "keep" {
		t.Errorf("blobs = %v, want [keep]", keys)
	}
}

func TestRunOnce_BlobFailureKeepsRecords(t *testing.T) {
	w := newWorld()
	w.post(primitive.NewObjectID(), primitive.NewObjectID(), "k")
	w.blobs.FailOn("Delete", errors.New("s3 down"))

	rep, err := w.sweep.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.Failures != 1 || rep.ImagesRemoved != 0 {
		t.Errorf("report = %+v", rep)
	}
	if w.images.Len() != 1 {
		t.Error("record should remain for the next sweep")
	}
}

func TestRunOnce_GroupListFailure(t *testing.T) {
	w := newWorld()
	w.images.FailOn("DistinctGroupIDs", errors.New("mongo down"))
	if _, err := w.sweep.RunOnce(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRunOnce_RemovesRowsOfDeletedGroups(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	alice, bob, carol := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	live, _ := w.groups.Create(ctx, models.Group{Name: "Trip", AdminID: alice})
	_, _ = w.members.Add(ctx, live.ID, alice, models.RoleAdmin)
	_, _ = w.invites.InsertMany(ctx, live.ID, alice, []primitive.ObjectID{carol})

	// An accept that raced the group's deletion left these behind.
	gone := primitive.NewObjectID()
	_, _ = w.members.Add(ctx, gone, bob, models.RoleMember)
	_, _ = w.members.Add(ctx, gone, carol, models.RoleMember)
	_, _ = w.invites.InsertMany(ctx, gone, bob, []primitive.ObjectID{alice})

	rep, err := w.sweep.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.MembershipsRemoved != 2 || rep.InvitationsRemoved != 1 || rep.Failures != 0 {
		t.Errorf("report = %+v", rep)
	}
	if w.members.Len() != 1 {
		t.Errorf("memberships = %d, want 1", w.members.Len())
	}
	if ok, _ := w.members.Exists(ctx, live.ID, alice); !ok {
		t.Error("live group's membership should remain")
	}
	if w.invites.Len() != 1 || !w.invites.Has(live.ID, carol) {
		t.Errorf("invitations = %d, want only the live group's", w.invites.Len())
	}
}

func TestRunOnce_MembershipSweepFailureIsCounted(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	_, _ = w.members.Add(ctx, primitive.NewObjectID(), primitive.NewObjectID(), models.RoleMember)
	w.members.FailOn("DeleteByGroup", errors.New("mongo down"))

	rep, err := w.sweep.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.Failures != 1 || rep.MembershipsRemoved != 0 {
		t.Errorf("report = %+v", rep)
	}
	if w.members.Len() != 1 {
		t.Error("membership should remain for the next sweep")
	}
}

func TestStartStop(t *testing.T) {
	w := newWorld()
	w.sweep.Start()
	w.sweep.Stop()
}
