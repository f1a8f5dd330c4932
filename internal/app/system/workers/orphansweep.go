// internal/app/system/workers/orphansweep.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/metrics"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ImageStore interface {
	DistinctGroupIDs(ctx context.Context) ([]primitive.ObjectID, error)
	DistinctUserIDs(ctx context.Context, groupID primitive.ObjectID) ([]primitive.ObjectID, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Image, error)
	ListByGroupUser(ctx context.Context, groupID, userID primitive.ObjectID) ([]models.Image, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

type GroupStore interface {
	ExistingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

// groupScoped is a collection whose rows belong to one group.
type groupScoped interface {
	DistinctGroupIDs(ctx context.Context) ([]primitive.ObjectID, error)
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
}

type MembershipStore interface {
	groupScoped
	MemberUserIDs(ctx context.Context, groupID primitive.ObjectID, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

type InvitationStore interface {
	groupScoped
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	GroupsScanned      int
	ImagesRemoved      int64
	MembershipsRemoved int64
	InvitationsRemoved int64
	Failures           int
}

// OrphanSweep is a background worker that removes images whose group no
// longer exists or whose poster is no longer a member of the group, and
// memberships and invitations whose group no longer exists. These are left
// behind when a cascade fails after its point of no return, or when an
// upload or an accepted invitation races a group deletion.
type OrphanSweep struct {
	images   ImageStore
	groups   GroupStore
	members  MembershipStore
	invites  InvitationStore
	blobs    objectstore.Store
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewOrphanSweep creates a sweeper that runs every interval.
func NewOrphanSweep(images ImageStore, groups GroupStore, members MembershipStore, invites InvitationStore, blobs objectstore.Store, logger *zap.Logger, interval time.Duration) *OrphanSweep {
	return &OrphanSweep{
		images:   images,
		groups:   groups,
		members:  members,
		invites:  invites,
		blobs:    blobs,
		log:      logger,
		interval: interval,
		timeout:  2 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *OrphanSweep) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("orphan sweep worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *OrphanSweep) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("orphan sweep worker stopped")
}

func (w *OrphanSweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			_, _ = w.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce performs a single sweep. Per-group failures are logged and
// counted; the returned error is set only when the image group list itself
// could not be read.
func (w *OrphanSweep) RunOnce(ctx context.Context) (SweepReport, error) {
	var rep SweepReport

	rep.MembershipsRemoved = w.sweepDangling(ctx, "memberships", w.members, &rep)
	rep.InvitationsRemoved = w.sweepDangling(ctx, "invitations", w.invites, &rep)

	groupIDs, err := w.images.DistinctGroupIDs(ctx)
	if err != nil {
		metrics.OrphanSweeps.WithLabelValues("error").Inc()
		w.log.Error("orphan sweep: list image groups", zap.Error(err))
		return rep, err
	}
	existing, err := w.groups.ExistingIDs(ctx, groupIDs)
	if err != nil {
		metrics.OrphanSweeps.WithLabelValues("error").Inc()
		w.log.Error("orphan sweep: check groups", zap.Error(err))
		return rep, err
	}

	for _, gid := range groupIDs {
		if ctx.Err() != nil {
			break
		}
		rep.GroupsScanned++
		log := w.log.With(zap.String("group_id", gid.Hex()))

		if !existing[gid] {
			imgs, err := w.images.ListByGroup(ctx, gid)
			if err != nil {
				rep.Failures++
				log.Warn("orphan sweep: list images of deleted group", zap.Error(err))
				continue
			}
			n, ok := w.purge(ctx, log, imgs)
			rep.ImagesRemoved += n
			if !ok {
				rep.Failures++
			}
			continue
		}

		posters, err := w.images.DistinctUserIDs(ctx, gid)
		if err != nil {
			rep.Failures++
			log.Warn("orphan sweep: list posters", zap.Error(err))
			continue
		}
		members, err := w.members.MemberUserIDs(ctx, gid, posters)
		if err != nil {
			rep.Failures++
			log.Warn("orphan sweep: check members", zap.Error(err))
			continue
		}
		for _, uid := range posters {
			if members[uid] {
				continue
			}
			imgs, err := w.images.ListByGroupUser(ctx, gid, uid)
			if err != nil {
				rep.Failures++
				log.Warn("orphan sweep: list images of former member",
					zap.String("user_id", uid.Hex()), zap.Error(err))
				continue
			}
			n, ok := w.purge(ctx, log, imgs)
			rep.ImagesRemoved += n
			if !ok {
				rep.Failures++
			}
		}
	}

	result := "ok"
	if rep.Failures > 0 {
		result = "partial"
	}
	metrics.OrphanSweeps.WithLabelValues(result).Inc()
	if rep.ImagesRemoved > 0 || rep.MembershipsRemoved > 0 || rep.InvitationsRemoved > 0 || rep.Failures > 0 {
		w.log.Info("orphan sweep finished",
			zap.Int("groups", rep.GroupsScanned),
			zap.Int64("images_removed", rep.ImagesRemoved),
			zap.Int64("memberships_removed", rep.MembershipsRemoved),
			zap.Int64("invitations_removed", rep.InvitationsRemoved),
			zap.Int("failures", rep.Failures))
	}
	return rep, nil
}

// sweepDangling deletes the rows of store that point at groups which no
// longer exist.
func (w *OrphanSweep) sweepDangling(ctx context.Context, what string, store groupScoped, rep *SweepReport) int64 {
	groupIDs, err := store.DistinctGroupIDs(ctx)
	if err != nil {
		rep.Failures++
		w.log.Warn("orphan sweep: list groups", zap.String("collection", what), zap.Error(err))
		return 0
	}
	if len(groupIDs) == 0 {
		return 0
	}
	existing, err := w.groups.ExistingIDs(ctx, groupIDs)
	if err != nil {
		rep.Failures++
		w.log.Warn("orphan sweep: check groups", zap.String("collection", what), zap.Error(err))
		return 0
	}

	var removed int64
	for _, gid := range groupIDs {
		if existing[gid] {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		n, err := store.DeleteByGroup(ctx, gid)
		if err != nil {
			rep.Failures++
			w.log.Warn("orphan sweep: delete rows of deleted group",
				zap.String("collection", what),
				zap.String("group_id", gid.Hex()),
				zap.Error(err))
			continue
		}
		removed += n
	}
	return removed
}

// purge deletes blobs first and records only once the blobs are gone.
func (w *OrphanSweep) purge(ctx context.Context, log *zap.Logger, imgs []models.Image) (int64, bool) {
	if len(imgs) == 0 {
		return 0, true
	}
	ids := make([]primitive.ObjectID, 0, len(imgs))
	keys := make([]string, 0, len(imgs))
	for _, img := range imgs {
		ids = append(ids, img.ID)
		if img.ObjectKey != "" {
			keys = append(keys, img.ObjectKey)
		}
	}
	if len(keys) > 0 {
		if err := w.blobs.Delete(ctx, keys...); err != nil {
			log.Warn("orphan sweep: blob delete failed", zap.Int("count", len(keys)), zap.Error(err))
			return 0, false
		}
	}
	n, err := w.images.DeleteByIDs(ctx, ids)
	if err != nil {
		log.Warn("orphan sweep: record delete failed", zap.Int("count", len(ids)), zap.Error(err))
		return 0, false
	}
	metrics.ImagesDeleted.WithLabelValues("sweep").Add(float64(n))
	return n, true
}
