package fakes

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/dalemusser/groupsnap/internal/app/system/imagenorm"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/waffle/pantry/storage"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Object store                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

// Blobs is an objectstore.Store over waffle's in-memory storage backend,
// with injectable failures.
type Blobs struct {
	failures
	*objectstore.Blobs
	mem *storage.Memory
	mu  sync.Mutex
	// PutErrAfter, when positive, makes every Put after that many
	// successful ones fail.
	PutErrAfter int
	puts        int
}

var _ objectstore.Store = (*Blobs)(nil)

func NewBlobs() *Blobs {
	mem := storage.NewMemory(storage.MemoryConfig{BaseURL: "https://cdn.example.com"})
	return &Blobs{Blobs: objectstore.New(mem), mem: mem}
}

var errPutLimit = errors.New("fakes: put limit reached")

func (b *Blobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (objectstore.Object, error) {
	if err := b.fail("Put"); err != nil {
		return objectstore.Object{}, err
	}
	b.mu.Lock()
	if b.PutErrAfter > 0 && b.puts >= b.PutErrAfter {
		b.mu.Unlock()
		return objectstore.Object{}, errPutLimit
	}
	b.puts++
	b.mu.Unlock()
	return b.Blobs.Put(ctx, key, r, size, contentType)
}

func (b *Blobs) Delete(ctx context.Context, keys ...string) error {
	if err := b.fail("Delete"); err != nil {
		return err
	}
	return b.Blobs.Delete(ctx, keys...)
}

// Keys lists stored keys in sorted order.
func (b *Blobs) Keys() []string {
	res, err := b.mem.List(context.Background(), "", nil)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		out = append(out, o.Path)
	}
	sort.Strings(out)
	return out
}

// Seed stores body under key without counting as a Put.
func (b *Blobs) Seed(key string, body []byte) {
	_ = b.mem.PutBytes(context.Background(), key, body, nil)
}

// Has reports whether key is stored.
func (b *Blobs) Has(key string) bool {
	return b.Exists(context.Background(), key)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Broadcaster                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Event is one recorded broadcast.
type Event struct {
	GroupID string
	Name    string
	Payload any
}

// Broadcaster records every broadcast it is asked to send and every
// connection it is asked to drop.
type Broadcaster struct {
	mu      sync.Mutex
	events  []Event
	evicted []string
	closed  []string
	Err     error
}

func NewBroadcaster() *Broadcaster { return &Broadcaster{} }

func (b *Broadcaster) Broadcast(groupID, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{GroupID: groupID, Name: event, Payload: payload})
	return b.Err
}

// Evict records "<groupID>/<userID>".
func (b *Broadcaster) Evict(groupID, userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted = append(b.evicted, groupID+"/"+userID)
	return 0
}

func (b *Broadcaster) CloseRoom(groupID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, groupID)
	return 0
}

// Evicted returns the recorded evictions as "<groupID>/<userID>".
func (b *Broadcaster) Evicted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.evicted...)
}

// ClosedRooms returns the group ids whose rooms were closed.
func (b *Broadcaster) ClosedRooms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closed...)
}

// Events returns a copy of the recorded broadcasts.
func (b *Broadcaster) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Last returns the most recent broadcast and whether there was one.
func (b *Broadcaster) Last() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return Event{}, false
	}
	return b.events[len(b.events)-1], true
}

/*─────────────────────────────────────────────────────────────────────────────*
| Normalizer                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// Normalizer returns its input relabelled as JPEG. Inputs equal to Reject
// fail with imagenorm.ErrDecode.
type Normalizer struct {
	Reject string
}

var _ imagenorm.Normalizer = Normalizer{}

func (n Normalizer) Normalize(data []byte, contentType string) (imagenorm.Result, error) {
	if n.Reject != "" && string(data) == n.Reject {
		return imagenorm.Result{}, imagenorm.ErrDecode
	}
	return imagenorm.Result{Data: data, ContentType: imagenorm.TypeJPEG, Ext: "jpeg"}, nil
}
