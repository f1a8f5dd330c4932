// internal/domain/models/actor.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Actor identifies the signed-in user performing an operation.
type Actor struct {
	ID       primitive.ObjectID `json:"_id"`
	Username string             `json:"username"`
	Name     string             `json:"name"`
}
