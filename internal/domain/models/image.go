// internal/domain/models/image.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Image is the metadata for one posted picture. The bytes live in the
// object store under ObjectKey.
type Image struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ObjectKey   string             `bson:"object_key" json:"-"`
	URL         string             `bson:"url" json:"url"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	GroupID     primitive.ObjectID `bson:"group_id" json:"groupId"`
	ContentType string             `bson:"content_type" json:"contentType"`
	Size        int64              `bson:"size" json:"size"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
}
