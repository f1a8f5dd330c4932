// Package imagepipe validates, normalizes, stores, lists and deletes the
// images posted to a group.
package imagepipe

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/fanout"
	"github.com/dalemusser/groupsnap/internal/app/system/imagenorm"
	"github.com/dalemusser/groupsnap/internal/app/system/limits"
	"github.com/dalemusser/groupsnap/internal/app/system/metrics"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/groupsnap/internal/app/system/paging"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxFiles is the most files accepted in one upload.
	MaxFiles = limits.MaxUploadFiles
	// MaxFileSize is the largest accepted file, in bytes.
	MaxFileSize = limits.MaxUploadFileSize
	// workers bounds concurrent per-file processing within one upload.
	workers = 4
)

type ImageStore interface {
	Insert(ctx context.Context, img models.Image) (models.Image, error)
	Count(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID) (int64, error)
	PageBefore(ctx context.Context, groupID primitive.ObjectID, cursor *paging.TimeCursor, limit int64) ([]models.Image, error)
	PageOffset(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID, skip, limit int64) ([]models.Image, error)
	FindScoped(ctx context.Context, groupID primitive.ObjectID, ids []primitive.ObjectID, userID *primitive.ObjectID) ([]models.Image, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

type UserStore interface {
	GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
}

// Broadcaster pushes an event to a group's room.
type Broadcaster interface {
	Broadcast(groupID, event string, payload any) error
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Images      ImageStore
	Users       UserStore
	Blobs       objectstore.Store
	Normalizer  imagenorm.Normalizer
	Broadcaster Broadcaster
	Logger      *zap.Logger
	// Now is overridable in tests.
	Now func() time.Time
}

type Service struct {
	Deps
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Normalizer == nil {
		d.Normalizer = imagenorm.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{Deps: d}
}

// FileInput is one uploaded file, already read into memory.
type FileInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Poster is the uploader reference embedded in image views.
type Poster struct {
	ID   primitive.ObjectID `json:"_id"`
	Name string             `json:"name"`
}

// ImageView is an image as returned to clients and pushed to rooms.
type ImageView struct {
	ID          primitive.ObjectID `json:"_id"`
	URL         string             `json:"url"`
	UserID      Poster             `json:"userId"`
	GroupID     primitive.ObjectID `json:"groupId"`
	ContentType string             `json:"contentType"`
	Size        int64              `json:"size"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func view(img models.Image, posterName string) ImageView {
	return ImageView{
		ID:          img.ID,
		URL:         img.URL,
		UserID:      Poster{ID: img.UserID, Name: posterName},
		GroupID:     img.GroupID,
		ContentType: img.ContentType,
		Size:        img.Size,
		CreatedAt:   img.CreatedAt,
	}
}

// CheckBatch applies the upload limits to a whole batch. Nothing is stored
// unless every file passes.
func CheckBatch(files []FileInput) error {
	if len(files) == 0 {
		return apperr.Validation("No images uploaded")
	}
	if len(files) > MaxFiles {
		return apperr.ErrTooManyFiles
	}
	for _, f := range files {
		if len(f.Data) > MaxFileSize {
			return apperr.ErrFileTooLarge
		}
		if !imagenorm.Allowed(f.ContentType) {
			return apperr.ErrUnsupportedType
		}
	}
	return nil
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// storeOne normalizes f, writes the blob and inserts the record. A failed
// insert removes the blob it just wrote.
func (s *Service) storeOne(ctx context.Context, groupID, userID primitive.ObjectID, f FileInput) (models.Image, error) {
	res, err := s.Normalizer.Normalize(f.Data, f.ContentType)
	if err != nil {
		return models.Image{}, &stageError{"normalize", err}
	}

	key := objectstore.NewKey(groupID, s.Now(), res.Ext)
	obj, err := s.Blobs.Put(ctx, key, bytes.NewReader(res.Data), int64(len(res.Data)), res.ContentType)
	if err != nil {
		return models.Image{}, &stageError{"put", err}
	}

	img, err := s.Images.Insert(ctx, models.Image{
		ObjectKey:   obj.Key,
		URL:         obj.URL,
		UserID:      userID,
		GroupID:     groupID,
		ContentType: res.ContentType,
		Size:        int64(len(res.Data)),
	})
	if err != nil {
		if derr := s.Blobs.Delete(context.WithoutCancel(ctx), obj.Key); derr != nil {
			s.Logger.Warn("orphan blob after failed insert",
				zap.String("object_key", obj.Key),
				zap.Error(derr))
		}
		return models.Image{}, &stageError{"insert", err}
	}
	return img, nil
}

// Upload stores every file of the batch that can be processed. Individual
// files that fail are dropped and logged; the call fails only when no file
// could be stored. Results keep the input order.
func (s *Service) Upload(ctx context.Context, groupID primitive.ObjectID, poster models.Actor, files []FileInput) ([]ImageView, error) {
	if err := CheckBatch(files); err != nil {
		return nil, err
	}

	uctx, cancel := timeouts.WithTimeout(ctx, timeouts.Upload(), s.Logger, "imagepipe.Upload")
	defer cancel()

	log := s.Logger.With(
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", poster.ID.Hex()))

	stored := make([]*models.Image, len(files))
	errs := make([]error, len(files))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, f := range files {
		eg.Go(func() error {
			img, err := s.storeOne(uctx, groupID, poster.ID, f)
			if err != nil {
				errs[i] = err
				return nil
			}
			stored[i] = &img
			return nil
		})
	}
	_ = eg.Wait()

	views := make([]ImageView, 0, len(files))
	for i, img := range stored {
		if img == nil {
			stage := "unknown"
			var se *stageError
			if errors.As(errs[i], &se) {
				stage = se.stage
			}
			metrics.UploadFileFailures.WithLabelValues(stage).Inc()
			log.Warn("upload file dropped",
				zap.String("filename", files[i].Filename),
				zap.String("stage", stage),
				zap.Error(errs[i]))
			continue
		}
		views = append(views, view(*img, poster.Name))
	}
	if len(views) == 0 {
		return nil, apperr.Upstream("Error processing images", errors.Join(errs...))
	}
	metrics.ImagesUploaded.Add(float64(len(views)))

	s.announceUpload(ctx, log, groupID, views)
	return views, nil
}

func (s *Service) announceUpload(ctx context.Context, log *zap.Logger, groupID primitive.ObjectID, views []ImageView) {
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "imagepipe.announceUpload")
	defer cancel()

	total, err := s.Images.Count(cctx, groupID, nil)
	if err != nil {
		log.Warn("imagesUploaded broadcast skipped: count failed", zap.Error(err))
		return
	}
	payload := map[string]any{
		"images":      views,
		"totalImages": total,
	}
	// The group's first images: the client has no feed yet, so send a
	// complete first page.
	if total == int64(len(views)) {
		last := views[len(views)-1]
		payload["nextCursor"] = paging.EncodeCursor(last.CreatedAt, last.ID)
		payload["hasMore"] = false
		payload["results"] = len(views)
	}
	if err := s.Broadcaster.Broadcast(groupID.Hex(), fanout.EventImagesUploaded, payload); err != nil {
		log.Warn("imagesUploaded broadcast failed", zap.Error(err))
	}
}

// names resolves poster names for a page of images.
func (s *Service) names(ctx context.Context, imgs []models.Image) (map[primitive.ObjectID]string, error) {
	seen := make(map[primitive.ObjectID]bool)
	ids := make([]primitive.ObjectID, 0, len(imgs))
	for _, img := range imgs {
		if !seen[img.UserID] {
			seen[img.UserID] = true
			ids = append(ids, img.UserID)
		}
	}
	users, err := s.Users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]string, len(users))
	for id, u := range users {
		out[id] = u.Name
	}
	return out, nil
}

func (s *Service) views(ctx context.Context, imgs []models.Image) ([]ImageView, error) {
	names, err := s.names(ctx, imgs)
	if err != nil {
		return nil, apperr.Upstream("Failed to load image posters", err)
	}
	out := make([]ImageView, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, view(img, names[img.UserID]))
	}
	return out, nil
}

// Page is one page of the group feed.
type Page struct {
	Images      []ImageView `json:"images"`
	NextCursor  *string     `json:"nextCursor"`
	HasMore     bool        `json:"hasMore"`
	Results     int         `json:"results"`
	TotalImages int64       `json:"totalImages"`
}

// List returns the feed page after cursor, newest first. An empty cursor
// starts at the newest image.
func (s *Service) List(ctx context.Context, groupID primitive.ObjectID, cursor string) (Page, error) {
	var after *paging.TimeCursor
	if cursor != "" {
		c, ok := paging.DecodeCursor(cursor)
		if !ok {
			return Page{}, apperr.Validation("Invalid cursor")
		}
		after = &c
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.Logger, "imagepipe.List")
	defer cancel()

	total, err := s.Images.Count(ctx, groupID, nil)
	if err != nil {
		return Page{}, apperr.Upstream("Cannot fetch group images right now", err)
	}
	rows, err := s.Images.PageBefore(ctx, groupID, after, paging.LimitPlusOne(paging.FeedPageSize))
	if err != nil {
		return Page{}, apperr.Upstream("Cannot fetch group images right now", err)
	}
	hasMore := paging.TrimPage(&rows, paging.FeedPageSize)

	views, err := s.views(ctx, rows)
	if err != nil {
		return Page{}, err
	}
	p := Page{Images: views, HasMore: hasMore, Results: len(views), TotalImages: total}
	if n := len(rows); n > 0 {
		next := paging.EncodeCursor(rows[n-1].CreatedAt, rows[n-1].ID)
		p.NextCursor = &next
	}
	return p, nil
}

// OffsetPage is one numbered page of the per-user view.
type OffsetPage struct {
	Images     []ImageView `json:"images"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
	Results    int         `json:"results"`
}

// scope limits non-admins to their own images.
func scope(requesterID primitive.ObjectID, role string) *primitive.ObjectID {
	if role == models.RoleAdmin {
		return nil
	}
	return &requesterID
}

// ListByUser returns a numbered page of images. Admins see every image in
// the group, members only their own.
func (s *Service) ListByUser(ctx context.Context, groupID, requesterID primitive.ObjectID, role string, page int) (OffsetPage, error) {
	if page < 1 {
		page = 1
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.Logger, "imagepipe.ListByUser")
	defer cancel()

	userID := scope(requesterID, role)
	total, err := s.Images.Count(ctx, groupID, userID)
	if err != nil {
		return OffsetPage{}, apperr.Upstream("Cannot fetch images posted by you", err)
	}
	rows, err := s.Images.PageOffset(ctx, groupID, userID, paging.Skip(page, paging.UserPageSize), paging.UserPageSize)
	if err != nil {
		return OffsetPage{}, apperr.Upstream("Cannot fetch images posted by you", err)
	}
	views, err := s.views(ctx, rows)
	if err != nil {
		return OffsetPage{}, err
	}
	return OffsetPage{
		Images:     views,
		Page:       page,
		TotalPages: paging.TotalPages(total, paging.UserPageSize),
		Results:    len(views),
	}, nil
}

// Delete removes the listed images the requester may delete: any image in
// the group for the admin, only their own for members. Ids that are not
// valid hex are ignored. Blobs go first; if that fails no record is
// touched and the call can be retried.
func (s *Service) Delete(ctx context.Context, groupID primitive.ObjectID, requester models.Actor, role string, rawIDs []string) (int64, error) {
	ids := make([]primitive.ObjectID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		if id, err := primitive.ObjectIDFromHex(raw); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, apperr.ErrNothingToDelete
	}

	dctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.Logger, "imagepipe.Delete")
	defer cancel()

	imgs, err := s.Images.FindScoped(dctx, groupID, ids, scope(requester.ID, role))
	if err != nil {
		return 0, apperr.Upstream("Cannot delete images right now", err)
	}
	if len(imgs) == 0 {
		return 0, apperr.ErrNothingToDelete
	}

	found := make([]primitive.ObjectID, 0, len(imgs))
	keys := make([]string, 0, len(imgs))
	for _, img := range imgs {
		found = append(found, img.ID)
		if img.ObjectKey != "" {
			keys = append(keys, img.ObjectKey)
		}
	}

	log := s.Logger.With(
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", requester.ID.Hex()))

	if len(keys) > 0 {
		if err := s.Blobs.Delete(dctx, keys...); err != nil {
			return 0, apperr.Upstream("Cannot delete images right now", err)
		}
	}
	n, err := s.Images.DeleteByIDs(dctx, found)
	if err != nil {
		log.Error("blobs deleted but image records remain",
			zap.Int("count", len(found)),
			zap.Error(err))
		return 0, apperr.Upstream("Cannot delete images right now", err)
	}
	metrics.ImagesDeleted.WithLabelValues("user").Add(float64(n))

	total, err := s.Images.Count(dctx, groupID, nil)
	if err != nil {
		log.Warn("imagesDeleted broadcast skipped: count failed", zap.Error(err))
		return n, nil
	}
	deleted := make([]string, 0, len(found))
	for _, id := range found {
		deleted = append(deleted, id.Hex())
	}
	if err := s.Broadcaster.Broadcast(groupID.Hex(), fanout.EventImagesDeleted, map[string]any{
		"totalImages":   total,
		"imagesDeleted": deleted,
		"deletedBy":     requester,
	}); err != nil {
		log.Warn("imagesDeleted broadcast failed", zap.Error(err))
	}
	return n, nil
}
