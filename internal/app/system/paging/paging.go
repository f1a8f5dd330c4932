// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FeedPageSize is the number of images per page of the group feed
// (keyset pagination, newest first).
const FeedPageSize = 12

// UserPageSize is the number of images per numbered page of the
// per-user view (offset pagination).
const UserPageSize = 9

// LimitPlusOne returns size+1 as int64 for look-ahead pagination
// (fetch one extra document to detect hasMore).
func LimitPlusOne(size int) int64 { return int64(size + 1) }

// TrimPage trims a slice fetched with LimitPlusOne back to size and
// reports whether more rows exist past the page.
func TrimPage[T any](rows *[]T, size int) bool {
	if len(*rows) > size {
		*rows = (*rows)[:size]
		return true
	}
	return false
}

/* -------------------------------------------------------------------------- */
/* Keyset (time) cursors                                                       */
/* -------------------------------------------------------------------------- */

// TimeCursor is the decoded position of the last item on a feed page.
// ID breaks ties between images created in the same millisecond; a zero ID
// means the cursor carried only a timestamp.
type TimeCursor struct {
	At time.Time
	ID primitive.ObjectID
}

// EncodeCursor builds the opaque nextCursor string for an item.
func EncodeCursor(at time.Time, id primitive.ObjectID) string {
	return wafflemongo.EncodeCursor(at.UTC().Format(time.RFC3339Nano), id)
}

// DecodeCursor parses a cursor produced by EncodeCursor. A bare RFC 3339
// timestamp is also accepted. Returns ok=false for anything else.
func DecodeCursor(s string) (TimeCursor, bool) {
	if s == "" {
		return TimeCursor{}, false
	}
	if c, ok := wafflemongo.DecodeCursor(s); ok {
		at, err := time.Parse(time.RFC3339Nano, c.CI)
		if err == nil {
			return TimeCursor{At: at.UTC(), ID: c.ID}, true
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return TimeCursor{At: at.UTC()}, true
	}
	return TimeCursor{}, false
}

// Before returns the filter fragment selecting rows that sort strictly
// after the cursor in (created_at desc, _id desc) order.
func (c TimeCursor) Before(timeField string) bson.M {
	if c.ID.IsZero() {
		return bson.M{timeField: bson.M{"$lt": c.At}}
	}
	return bson.M{"$or": []bson.M{
		{timeField: bson.M{"$lt": c.At}},
		{timeField: c.At, "_id": bson.M{"$lt": c.ID}},
	}}
}

// NewestFirst is the sort used by both image views.
func NewestFirst(timeField string) bson.D {
	return bson.D{{Key: timeField, Value: -1}, {Key: "_id", Value: -1}}
}

/* -------------------------------------------------------------------------- */
/* Offset pages                                                                */
/* -------------------------------------------------------------------------- */

// ParsePage extracts the 1-based "page" query parameter.
// Returns 1 if not present or invalid.
func ParsePage(r *http.Request) int {
	s := query.Get(r, "page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Skip returns the number of rows before a 1-based page.
func Skip(page, size int) int64 {
	if page < 1 {
		page = 1
	}
	return int64((page - 1) * size)
}

// TotalPages returns ceil(total/size).
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
