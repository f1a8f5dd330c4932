package invitationstore_test

import (
	"testing"

	invitationstore "github.com/dalemusser/groupsnap/internal/app/store/invitations"
	"github.com/dalemusser/groupsnap/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_InsertMany(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := invitationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID := primitive.NewObjectID()
	sender := primitive.NewObjectID()
	r1, r2 := primitive.NewObjectID(), primitive.NewObjectID()

	n, err := store.InsertMany(ctx, groupID, sender, []primitive.ObjectID{r1, r2})
	if err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	var doc bson.M
	if err := db.Collection("group_invitations").FindOne(ctx, bson.M{"receiver_id": r1}).Decode(&doc); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["sender_id"] != sender {
		t.Errorf("sender_id = %v, want %v", doc["sender_id"], sender)
	}
}

func TestStore_InsertMany_SkipsDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := invitationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID := primitive.NewObjectID()
	sender := primitive.NewObjectID()
	r1, r2 := primitive.NewObjectID(), primitive.NewObjectID()

	if _, err := store.InsertMany(ctx, groupID, sender, []primitive.ObjectID{r1}); err != nil {
		t.Fatalf("first InsertMany failed: %v", err)
	}

	n, err := store.InsertMany(ctx, groupID, sender, []primitive.ObjectID{r1, r2})
	if err != nil {
		t.Fatalf("second InsertMany should swallow duplicates, got %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	count, _ := db.Collection("group_invitations").CountDocuments(ctx, bson.M{"group_id": groupID})
	if count != 2 {
		t.Errorf("total invitations = %d, want 2", count)
	}
}

func TestStore_InsertMany_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := invitationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	n, err := store.InsertMany(ctx, primitive.NewObjectID(), primitive.NewObjectID(), nil)
	if err != nil || n != 0 {
		t.Errorf("InsertMany(nil) = %d, %v", n, err)
	}
}

func TestStore_Take(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := invitationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID, sender, receiver := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	inv := fixtures.CreateInvitation(ctx, groupID, sender, receiver)

	got, err := store.Take(ctx, groupID, receiver)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if got.ID != inv.ID {
		t.Errorf("Take returned %v, want %v", got.ID, inv.ID)
	}

	if _, err := store.Take(ctx, groupID, receiver); err != mongo.ErrNoDocuments {
		t.Errorf("second Take: expected ErrNoDocuments, got %v", err)
	}
}

func TestStore_InvitedUserIDs_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := invitationstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g1, g2 := primitive.NewObjectID(), primitive.NewObjectID()
	sender, receiver, other := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	fixtures.CreateInvitation(ctx, g1, sender, receiver)
	fixtures.CreateInvitation(ctx, g2, sender, receiver)

	invited, err := store.InvitedUserIDs(ctx, g1, []primitive.ObjectID{receiver, other})
	if err != nil {
		t.Fatalf("InvitedUserIDs failed: %v", err)
	}
	if !invited[receiver] || invited[other] {
		t.Errorf("InvitedUserIDs = %v", invited)
	}

	list, err := store.ListByReceiver(ctx, receiver)
	if err != nil {
		t.Fatalf("ListByReceiver failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByReceiver len = %d, want 2", len(list))
	}
	if list[0].GroupID != g2 {
		t.Errorf("expected newest invitation first")
	}

	n, err := store.CountByGroup(ctx, g1)
	if err != nil || n != 1 {
		t.Errorf("CountByGroup = %d, %v", n, err)
	}

	deleted, err := store.DeleteByGroup(ctx, g1)
	if err != nil || deleted != 1 {
		t.Errorf("DeleteByGroup = %d, %v", deleted, err)
	}
}

func TestStore_DistinctGroupIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := invitationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g1, g2 := primitive.NewObjectID(), primitive.NewObjectID()
	sender := primitive.NewObjectID()
	if _, err := store.InsertMany(ctx, g1, sender, []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()}); err != nil {
		t.Fatalf("InsertMany g1: %v", err)
	}
	if _, err := store.InsertMany(ctx, g2, sender, []primitive.ObjectID{primitive.NewObjectID()}); err != nil {
		t.Fatalf("InsertMany g2: %v", err)
	}

	ids, err := store.DistinctGroupIDs(ctx)
	if err != nil {
		t.Fatalf("DistinctGroupIDs failed: %v", err)
	}
	seen := map[primitive.ObjectID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if len(ids) != 2 || !seen[g1] || !seen[g2] {
		t.Errorf("DistinctGroupIDs = %v, want [%s %s]", ids, g1.Hex(), g2.Hex())
	}
}
