// internal/app/store/invitations/invitationstore.go
package invitationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_invitations")}
}

// InsertMany creates one invitation per receiver. Receivers that already
// hold an invitation for the group (unique receiver/group index) are
// skipped silently. Returns the number of invitations actually inserted.
func (s *Store) InsertMany(ctx context.Context, groupID, senderID primitive.ObjectID, receiverIDs []primitive.ObjectID) (int, error) {
	if len(receiverIDs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]interface{}, 0, len(receiverIDs))
	for _, rid := range receiverIDs {
		docs = append(docs, models.GroupInvitation{
			ID:         primitive.NewObjectID(),
			SenderID:   senderID,
			ReceiverID: rid,
			GroupID:    groupID,
			CreatedAt:  now,
		})
	}

	// ordered:false so every insert is attempted even if some are duplicates.
	opts := options.InsertMany().SetOrdered(false)
	result, err := s.c.InsertMany(ctx, docs, opts)

	added := 0
	if result != nil {
		added = len(result.InsertedIDs)
	}
	if err != nil {
		if n, ok := onlyDuplicates(err, len(receiverIDs)); ok {
			// A concurrent invite got there first.
			return n, nil
		}
		return added, err
	}
	return added, nil
}

// onlyDuplicates reports whether every failure in a bulk insert of total
// documents was a duplicate key, and if so how many were inserted.
func onlyDuplicates(err error, total int) (int, bool) {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil || len(bulkErr.WriteErrors) == 0 {
		return 0, false
	}
	for _, we := range bulkErr.WriteErrors {
		if !mongo.IsDuplicateKeyError(we.WriteError) {
			return 0, false
		}
	}
	return total - len(bulkErr.WriteErrors), true
}

// InvitedUserIDs reports which of userIDs already hold an invitation for groupID.
func (s *Store) InvitedUserIDs(ctx context.Context, groupID primitive.ObjectID, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	out := make(map[primitive.ObjectID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(bson.M{"receiver_id": 1})
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID, "receiver_id": bson.M{"$in": userIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ReceiverID primitive.ObjectID `bson:"receiver_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ReceiverID] = true
	}
	return out, cur.Err()
}

// Take atomically finds and deletes the invitation for (groupID, receiverID).
// Returns mongo.ErrNoDocuments if there is none.
func (s *Store) Take(ctx context.Context, groupID, receiverID primitive.ObjectID) (models.GroupInvitation, error) {
	var inv models.GroupInvitation
	err := s.c.FindOneAndDelete(ctx, bson.M{"group_id": groupID, "receiver_id": receiverID}).Decode(&inv)
	if err != nil {
		return models.GroupInvitation{}, err
	}
	return inv, nil
}

// ListByReceiver returns a user's pending invitations, newest first.
func (s *Store) ListByReceiver(ctx context.Context, receiverID primitive.ObjectID) ([]models.GroupInvitation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"receiver_id": receiverID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupInvitation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByGroup removes all invitations for a group.
// Returns the number of documents deleted.
func (s *Store) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DistinctGroupIDs returns every group id that has pending invitations.
func (s *Store) DistinctGroupIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	vals, err := s.c.Distinct(ctx, "group_id", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]primitive.ObjectID, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// CountByGroup returns the number of pending invitations for a group.
func (s *Store) CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}
