// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/normalize"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateUsername is returned when the folded username is taken.
	ErrDuplicateUsername = errors.New("a user with this username already exists")
	// ErrDuplicateEmail is returned when the email is taken.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	errBadProvider    = errors.New(`auth_provider must be "local"|"google"|"both"`)
)

// GetByID loads a user by ObjectID. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// GetByUsername looks up a user by case-insensitive username.
// Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"username_ci": normalize.UsernameCI(username)}).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// IDsByUsernames resolves usernames to user ids. Unknown usernames are
// dropped without error; the result has no duplicates.
func (s *Store) IDsByUsernames(ctx context.Context, usernames []string) ([]primitive.ObjectID, error) {
	folded := normalize.Usernames(usernames)
	if len(folded) == 0 {
		return nil, nil
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, bson.M{"username_ci": bson.M{"$in": folded}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// GetMany loads the given users keyed by id. Missing ids are absent from
// the map. Password hashes are not loaded.
func (s *Store) GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(bson.M{"password_hash": 0})
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, cur.Err()
}

// Create inserts a new user after normalizing fields. PasswordHash must
// already be hashed by the caller.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Username = normalize.Username(u.Username)
	u.UsernameCI = normalize.UsernameCI(u.Username)
	u.Name = normalize.Name(u.Name)
	u.Email = normalize.Email(u.Email)
	if u.AuthProvider == "" {
		u.AuthProvider = models.AuthProviderLocal
	}
	u.AuthProvider = normalize.AuthProvider(u.AuthProvider)
	if !models.IsValidAuthProvider(u.AuthProvider) {
		return models.User{}, errBadProvider
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		return models.User{}, dupError(err)
	}
	return u, nil
}

// ProfileUpdate lists the profile fields to change. Nil fields are kept.
type ProfileUpdate struct {
	Name     *string
	Username *string
	Email    *string
	Photo    *models.ProfilePhoto
}

// Empty reports whether the update would change nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Username == nil && p.Email == nil && p.Photo == nil
}

// UpdateProfile applies p to the user and returns the updated document.
// Returns mongo.ErrNoDocuments if the user does not exist and the
// ErrDuplicate errors when the new username or email is taken.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, p ProfileUpdate) (models.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.Name != nil {
		set["name"] = normalize.Name(*p.Name)
	}
	if p.Username != nil {
		username := normalize.Username(*p.Username)
		set["username"] = username
		set["username_ci"] = normalize.UsernameCI(username)
	}
	if p.Email != nil {
		set["email"] = normalize.Email(*p.Email)
	}
	if p.Photo != nil {
		set["profile_photo"] = p.Photo
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u); err != nil {
		return models.User{}, dupError(err)
	}
	return u, nil
}

// SetPassword replaces the stored password hash. Returns
// mongo.ErrNoDocuments if the user does not exist.
func (s *Store) SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// dupError maps a duplicate-key failure to the field that collided.
func dupError(err error) error {
	if !wafflemongo.IsDup(err) {
		return err
	}
	if strings.Contains(err.Error(), "username_ci") {
		return ErrDuplicateUsername
	}
	return ErrDuplicateEmail
}
