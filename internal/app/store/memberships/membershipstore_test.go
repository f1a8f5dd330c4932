package membershipstore_test

import (
	"errors"
	"testing"

	membershipstore "github.com/dalemusser/groupsnap/internal/app/store/memberships"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/dalemusser/groupsnap/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Add(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	member := fixtures.CreateUser(ctx, "member")
	group := fixtures.CreateGroup(ctx, "Test Group", admin.ID)

	m, err := store.Add(ctx, group.ID, member.ID, models.RoleMember)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if m.Role != models.RoleMember || m.JoinedAt.IsZero() {
		t.Errorf("unexpected membership %+v", m)
	}

	count, err := db.Collection("group_memberships").CountDocuments(ctx, bson.M{
		"group_id": group.ID,
		"user_id":  member.ID,
	})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 membership, got %d", count)
	}
}

func TestStore_Add_Duplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	group := fixtures.CreateGroup(ctx, "Test Group", admin.ID)

	// The fixture already added the admin membership.
	_, err := store.Add(ctx, group.ID, admin.ID, models.RoleMember)
	if !errors.Is(err, membershipstore.ErrDuplicateMembership) {
		t.Errorf("expected ErrDuplicateMembership, got %v", err)
	}
}

func TestStore_Add_InvalidRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Add(ctx, primitive.NewObjectID(), primitive.NewObjectID(), "leader")
	if err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestStore_GetExistsRemove(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	member := fixtures.CreateUser(ctx, "member")
	group := fixtures.CreateGroup(ctx, "G", admin.ID)
	fixtures.CreateMembership(ctx, group.ID, member.ID, models.RoleMember)

	m, err := store.Get(ctx, group.ID, admin.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if m.Role != models.RoleAdmin {
		t.Errorf("admin role = %q", m.Role)
	}

	ok, err := store.Exists(ctx, group.ID, member.ID)
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true", ok, err)
	}

	n, err := store.Remove(ctx, group.ID, member.ID)
	if err != nil || n != 1 {
		t.Fatalf("Remove = %d, %v", n, err)
	}

	ok, err = store.Exists(ctx, group.ID, member.ID)
	if err != nil || ok {
		t.Errorf("Exists after remove = %v, %v; want false", ok, err)
	}
	if _, err := store.Get(ctx, group.ID, member.ID); err != mongo.ErrNoDocuments {
		t.Errorf("Get after remove: expected ErrNoDocuments, got %v", err)
	}
}

func TestStore_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	m1 := fixtures.CreateUser(ctx, "m1")
	g1 := fixtures.CreateGroup(ctx, "G1", admin.ID)
	g2 := fixtures.CreateGroup(ctx, "G2", admin.ID)
	fixtures.CreateMembership(ctx, g1.ID, m1.ID, models.RoleMember)

	list, err := store.ListByGroup(ctx, g1.ID)
	if err != nil {
		t.Fatalf("ListByGroup failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListByGroup len = %d, want 2", len(list))
	}

	n, err := store.CountByGroup(ctx, g1.ID, models.RoleAdmin)
	if err != nil || n != 1 {
		t.Errorf("CountByGroup(admin) = %d, %v; want 1", n, err)
	}

	mine, err := store.ListByUser(ctx, admin.ID)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListByUser len = %d, want 2", len(mine))
	}
	if mine[0].GroupID != g2.ID {
		t.Errorf("ListByUser should be newest first; got %v first", mine[0].GroupID)
	}
}

func TestStore_MemberUserIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	outsider := fixtures.CreateUser(ctx, "outsider")
	group := fixtures.CreateGroup(ctx, "G", admin.ID)

	got, err := store.MemberUserIDs(ctx, group.ID, []primitive.ObjectID{admin.ID, outsider.ID})
	if err != nil {
		t.Fatalf("MemberUserIDs failed: %v", err)
	}
	if !got[admin.ID] || got[outsider.ID] {
		t.Errorf("MemberUserIDs = %v", got)
	}
}

func TestStore_DeleteByGroup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	m1 := fixtures.CreateUser(ctx, "m1")
	group := fixtures.CreateGroup(ctx, "G", admin.ID)
	other := fixtures.CreateGroup(ctx, "Other", admin.ID)
	fixtures.CreateMembership(ctx, group.ID, m1.ID, models.RoleMember)

	n, err := store.DeleteByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("DeleteByGroup failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if ok, _ := store.Exists(ctx, other.ID, admin.ID); !ok {
		t.Error("DeleteByGroup must not touch other groups")
	}
}

func TestStore_DistinctGroupIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin")
	g1 := fixtures.CreateGroup(ctx, "One", admin.ID)
	g2 := fixtures.CreateGroup(ctx, "Two", admin.ID)

	ids, err := store.DistinctGroupIDs(ctx)
	if err != nil {
		t.Fatalf("DistinctGroupIDs failed: %v", err)
	}
	seen := map[primitive.ObjectID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if len(ids) != 2 || !seen[g1.ID] || !seen[g2.ID] {
		t.Errorf("DistinctGroupIDs = %v, want [%s %s]", ids, g1.ID.Hex(), g2.ID.Hex())
	}
}
