// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group is a set of users sharing one image feed.
//
// NOTE:
//   - AdminID is set at creation and never changes.
//   - Members are not embedded; see the group_memberships collection.
type Group struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	Name    string             `bson:"name" json:"name"`
	AdminID primitive.ObjectID `bson:"admin_id" json:"adminId"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
