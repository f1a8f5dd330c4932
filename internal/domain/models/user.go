// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account that can create, join, and post to groups.
//
// NOTE:
//   - Group membership is not embedded on User.
//     Use the group_memberships collection to discover a user's groups.
//   - UsernameCI is the folded username used for lookups and the unique index.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	UsernameCI   string             `bson:"username_ci" json:"-"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash,omitempty" json:"-"`
	AuthProvider string             `bson:"auth_provider" json:"authProvider"` // local | google | both

	ProfilePhoto *ProfilePhoto `bson:"profile_photo,omitempty" json:"profilePhoto,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// ProfilePhoto is a user's avatar. Key is the object-store key the photo
// was written under and is needed to delete it on replacement.
type ProfilePhoto struct {
	URL string `bson:"url" json:"url"`
	Key string `bson:"key" json:"-"`
}
