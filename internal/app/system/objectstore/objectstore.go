// Package objectstore stores image bytes outside the document store.
//
// Keys are opaque to callers; an Image record keeps the key it was stored
// under and the public URL clients fetch it from. The bytes themselves live
// in a waffle storage backend (local disk, S3 or memory).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxDeleteBatch is the S3 DeleteObjects per-request limit.
const maxDeleteBatch = 1000

// Object describes a stored blob.
type Object struct {
	Key string
	URL string
}

// Store puts and deletes blobs by key.
type Store interface {
	// Put writes size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Blobs adapts a storage.Store to Store.
type Blobs struct {
	backend storage.Store
}

var _ Store = (*Blobs)(nil)

// New wraps backend.
func New(backend storage.Store) *Blobs {
	return &Blobs{backend: backend}
}

// Backend returns the wrapped storage backend.
func (b *Blobs) Backend() storage.Store { return b.backend }

func (b *Blobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	if size >= 0 {
		r = io.LimitReader(r, size)
	}
	if err := b.backend.Put(ctx, key, r, &storage.PutOptions{ContentType: contentType}); err != nil {
		return Object{}, fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return Object{Key: key, URL: b.backend.URL(key)}, nil
}

func (b *Blobs) Delete(ctx context.Context, keys ...string) error {
	// S3 reports per-key failures only through the deleted count; the
	// filesystem backends skip missing files without counting them.
	strict := b.backend.Backend() == "s3"
	for start := 0; start < len(keys); start += maxDeleteBatch {
		batch := keys[start:min(start+maxDeleteBatch, len(keys))]
		n, err := b.backend.DeleteMany(ctx, batch)
		if err != nil {
			return fmt.Errorf("objectstore: delete batch: %w", err)
		}
		if strict && n < len(batch) {
			return fmt.Errorf("objectstore: %d of %d deletes failed", len(batch)-n, len(batch))
		}
	}
	return nil
}

// Exists reports whether key is present.
func (b *Blobs) Exists(ctx context.Context, key string) bool {
	ok, err := b.backend.Exists(ctx, key)
	return err == nil && ok
}

// NewKey returns a unique key for an image in a group:
// groups/<groupID>/YYYY/MM/<uuid>.<ext>
func NewKey(groupID primitive.ObjectID, now time.Time, ext string) string {
	return newKey("groups/"+groupID.Hex(), now, ext)
}

// NewProfileKey returns a unique key for a user's profile photo:
// users/<userID>/YYYY/MM/<uuid>.<ext>
func NewProfileKey(userID primitive.ObjectID, now time.Time, ext string) string {
	return newKey("users/"+userID.Hex(), now, ext)
}

func newKey(dir string, now time.Time, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s.%s", dir, now.Year(), now.Month(), uuid.NewString(), ext)
}
