// internal/app/store/images/imagestore.go
package imagestore

import (
	"context"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/paging"
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
	return &Store{c: db.Collection("images")}
}

// scope builds the group filter, narrowed to one poster when userID is set.
func scope(groupID primitive.ObjectID, userID *primitive.ObjectID) bson.M {
	f := bson.M{"group_id": groupID}
	if userID != nil {
		f["user_id"] = *userID
	}
	return f
}

func (s *Store) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Image, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Image{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert stores an image record. ID and CreatedAt are assigned when zero.
// CreatedAt is kept at millisecond precision so cursors round-trip exactly.
func (s *Store) Insert(ctx context.Context, img models.Image) (models.Image, error) {
	if img.ID.IsZero() {
		img.ID = primitive.NewObjectID()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	img.CreatedAt = img.CreatedAt.UTC().Truncate(time.Millisecond)
	if _, err := s.c.InsertOne(ctx, img); err != nil {
		return models.Image{}, err
	}
	return img, nil
}

// ListByGroup returns every image in a group.
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Image, error) {
	return s.find(ctx, bson.M{"group_id": groupID})
}

// ListByGroupUser returns one poster's images in a group.
func (s *Store) ListByGroupUser(ctx context.Context, groupID, userID primitive.ObjectID) ([]models.Image, error) {
	return s.find(ctx, scope(groupID, &userID))
}

// FindScoped returns the images among ids that belong to groupID and, when
// userID is set, to that poster. Ids outside the scope are silently dropped.
func (s *Store) FindScoped(ctx context.Context, groupID primitive.ObjectID, ids []primitive.ObjectID, userID *primitive.ObjectID) ([]models.Image, error) {
	if len(ids) == 0 {
		return []models.Image{}, nil
	}
	f := scope(groupID, userID)
	f["_id"] = bson.M{"$in": ids}
	return s.find(ctx, f)
}

// DeleteByIDs removes the given image records. Returns the number deleted.
func (s *Store) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByGroup removes every image record of a group.
func (s *Store) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Count returns the number of images in a group, or of one poster when
// userID is set.
func (s *Store) Count(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, scope(groupID, userID))
}

// PageBefore returns up to limit images of a group that sort after the
// cursor in (created_at desc, _id desc) order. A nil cursor starts at the
// newest image.
func (s *Store) PageBefore(ctx context.Context, groupID primitive.ObjectID, cursor *paging.TimeCursor, limit int64) ([]models.Image, error) {
	f := bson.M{"group_id": groupID}
	if cursor != nil {
		f = bson.M{"$and": []bson.M{f, cursor.Before("created_at")}}
	}
	opts := options.Find().SetSort(paging.NewestFirst("created_at")).SetLimit(limit)
	return s.find(ctx, f, opts)
}

// PageOffset returns one numbered page of a group's images, newest first.
func (s *Store) PageOffset(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID, skip, limit int64) ([]models.Image, error) {
	opts := options.Find().
		SetSort(paging.NewestFirst("created_at")).
		SetSkip(skip).
		SetLimit(limit)
	return s.find(ctx, scope(groupID, userID), opts)
}

// CountPerUser returns the number of images each poster has in a group.
func (s *Store) CountPerUser(ctx context.Context, groupID primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": bson.M{"group_id": groupID}},
		{"$group": bson.M{"_id": "$user_id", "n": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[primitive.ObjectID]int64)
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
			N  int64              `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}

// DistinctGroupIDs returns every group id referenced by an image.
func (s *Store) DistinctGroupIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	return s.distinctIDs(ctx, "group_id", bson.M{})
}

// DistinctUserIDs returns every poster id with images in a group.
func (s *Store) DistinctUserIDs(ctx context.Context, groupID primitive.ObjectID) ([]primitive.ObjectID, error) {
	return s.distinctIDs(ctx, "user_id", bson.M{"group_id": groupID})
}

func (s *Store) distinctIDs(ctx context.Context, field string, filter bson.M) ([]primitive.ObjectID, error) {
	vals, err := s.c.Distinct(ctx, field, filter)
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
