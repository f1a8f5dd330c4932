// internal/domain/models/groupinvitation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupInvitation is a pending offer of membership.
// At most one document per (receiver_id, group_id), and never alongside a
// membership for the same pair.
type GroupInvitation struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID   primitive.ObjectID `bson:"sender_id" json:"senderId"`
	ReceiverID primitive.ObjectID `bson:"receiver_id" json:"receiverId"`
	GroupID    primitive.ObjectID `bson:"group_id" json:"groupId"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
}
