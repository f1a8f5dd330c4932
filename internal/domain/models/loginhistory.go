// internal/domain/models/loginhistory.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LoginRecord captures a single successful login. Records expire after
// LoginHistoryTTL.
type LoginRecord struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	IP        string             `bson:"ip" json:"ip"`
	UserAgent string             `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	Provider  string             `bson:"provider" json:"provider"`
}

// LoginHistoryTTL is how long login records are kept.
const LoginHistoryTTL = 90 * 24 * time.Hour
