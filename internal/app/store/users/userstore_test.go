package userstore_test

import (
	"errors"
	"testing"

	userstore "github.com/dalemusser/groupsnap/internal/app/store/users"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/dalemusser/groupsnap/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Username:     "  Alice ",
		Name:         "Alice   Liddell",
		Email:        "Alice@Example.COM",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if created.Username != "Alice" {
		t.Errorf("Username = %q, want %q", created.Username, "Alice")
	}
	if created.UsernameCI != "alice" {
		t.Errorf("UsernameCI = %q, want %q", created.UsernameCI, "alice")
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized", created.Email)
	}
	if created.Name != "Alice Liddell" {
		t.Errorf("Name = %q", created.Name)
	}
	if created.AuthProvider != models.AuthProviderLocal {
		t.Errorf("AuthProvider = %q, want local default", created.AuthProvider)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestStore_Create_DuplicateUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.User{Username: "bob", Name: "Bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := store.Create(ctx, models.User{Username: "BOB", Name: "Bob Two", Email: "bob2@example.com"})
	if !errors.Is(err, userstore.ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.User{Username: "carol", Name: "Carol", Email: "c@example.com"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := store.Create(ctx, models.User{Username: "carol2", Name: "Carol", Email: "C@example.com"})
	if !errors.Is(err, userstore.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestStore_Create_InvalidProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{Username: "dave", Email: "d@example.com", AuthProvider: "ldap"})
	if err == nil {
		t.Error("expected error for invalid auth provider")
	}
}

func TestStore_GetByUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fixtures.CreateUser(ctx, "Erin")

	got, err := store.GetByUsername(ctx, "ERIN")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %v, want %v", got.ID, u.ID)
	}

	_, err = store.GetByUsername(ctx, "nobody")
	if err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments, got %v", err)
	}
}

func TestStore_IDsByUsernames_DropsUnknown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	bob := fixtures.CreateUser(ctx, "bob")
	carol := fixtures.CreateUser(ctx, "carol")

	ids, err := store.IDsByUsernames(ctx, []string{"Bob", "carol", "ghost", "bob", ""})
	if err != nil {
		t.Fatalf("IDsByUsernames failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	seen := map[primitive.ObjectID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[bob.ID] || !seen[carol.ID] {
		t.Errorf("expected bob and carol, got %v", ids)
	}

	ids, err = store.IDsByUsernames(ctx, nil)
	if err != nil || len(ids) != 0 {
		t.Errorf("empty input: got %v, %v", ids, err)
	}
}

func TestStore_GetMany(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fixtures.CreateUser(ctx, "a_user")
	missing := primitive.NewObjectID()

	got, err := store.GetMany(ctx, []primitive.ObjectID{a.ID, missing})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 user, got %d", len(got))
	}
	if got[a.ID].PasswordHash != "" {
		t.Error("GetMany must not load password hashes")
	}
}

func TestFetcher_FetchUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fixtures.CreateUser(ctx, "fetchme")
	f := userstore.NewFetcher(db)

	su := f.FetchUser(ctx, u.ID.Hex())
	if su == nil {
		t.Fatal("expected session user")
	}
	if su.Username != "fetchme" {
		t.Errorf("Username = %q", su.Username)
	}

	if f.FetchUser(ctx, primitive.NewObjectID().Hex()) != nil {
		t.Error("expected nil for unknown user")
	}
	if f.FetchUser(ctx, "not-hex") != nil {
		t.Error("expected nil for invalid id")
	}
}

func strp(s string) *string { return &s }

func TestStore_UpdateProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	alice, err := store.Create(ctx, models.User{Username: "alice", Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, models.User{Username: "bob", Name: "Bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.UpdateProfile(ctx, alice.ID, userstore.ProfileUpdate{
		Username: strp(" Alicia "),
		Photo:    &models.ProfilePhoto{URL: "https://cdn.example.com/a.jpeg", Key: "users/a.jpeg"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if got.Username != "Alicia" || got.UsernameCI != "alicia" {
		t.Errorf("username = %q/%q", got.Username, got.UsernameCI)
	}
	if got.Name != "Alice" || got.Email != "alice@example.com" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.ProfilePhoto == nil || got.ProfilePhoto.Key != "users/a.jpeg" {
		t.Errorf("ProfilePhoto = %+v", got.ProfilePhoto)
	}
	if _, err := store.GetByUsername(ctx, "ALICIA"); err != nil {
		t.Errorf("lookup by new username: %v", err)
	}

	_, err = store.UpdateProfile(ctx, alice.ID, userstore.ProfileUpdate{Email: strp("BOB@example.com")})
	if !errors.Is(err, userstore.ErrDuplicateEmail) {
		t.Errorf("duplicate email err = %v", err)
	}
	_, err = store.UpdateProfile(ctx, alice.ID, userstore.ProfileUpdate{Username: strp("Bob")})
	if !errors.Is(err, userstore.ErrDuplicateUsername) {
		t.Errorf("duplicate username err = %v", err)
	}
	_, err = store.UpdateProfile(ctx, primitive.NewObjectID(), userstore.ProfileUpdate{Name: strp("Nobody")})
	if !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestStore_SetPassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := store.Create(ctx, models.User{Username: "carol", Name: "Carol", Email: "carol@example.com", PasswordHash: "old"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.SetPassword(ctx, u.ID, "new"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	got, err := store.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.PasswordHash != "new" {
		t.Errorf("PasswordHash = %q, want new", got.PasswordHash)
	}
	if err := store.SetPassword(ctx, primitive.NewObjectID(), "x"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("unknown user err = %v", err)
	}
}
