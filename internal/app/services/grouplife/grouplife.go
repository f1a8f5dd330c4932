// Package grouplife creates, lists, describes, deletes and leaves groups,
// cascading each change across the document store, the object store and
// the realtime gateway.
package grouplife

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/fanout"
	"github.com/dalemusser/groupsnap/internal/app/system/metrics"
	"github.com/dalemusser/groupsnap/internal/app/system/normalize"
	"github.com/dalemusser/groupsnap/internal/app/system/objectstore"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxNameLength is the longest group name accepted, in characters.
const MaxNameLength = 50

type UserStore interface {
	GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
}

type GroupStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	Create(ctx context.Context, g models.Group) (models.Group, error)
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Group, error)
}

type MembershipStore interface {
	Add(ctx context.Context, groupID, userID primitive.ObjectID, role string) (models.GroupMembership, error)
	Get(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error)
	Remove(ctx context.Context, groupID, userID primitive.ObjectID) (int64, error)
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.GroupMembership, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.GroupMembership, error)
}

type InvitationStore interface {
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
	CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
}

type ImageStore interface {
	ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Image, error)
	ListByGroupUser(ctx context.Context, groupID, userID primitive.ObjectID) ([]models.Image, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	Count(ctx context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID) (int64, error)
	CountPerUser(ctx context.Context, groupID primitive.ObjectID) (map[primitive.ObjectID]int64, error)
}

// Inviter sends the initial invitations of a new group.
type Inviter interface {
	AddMembers(ctx context.Context, groupID primitive.ObjectID, usernames []string, inviterID primitive.ObjectID) (int, error)
}

// Broadcaster pushes an event to a group's room and unbinds connections
// that no longer belong there.
type Broadcaster interface {
	Broadcast(groupID, event string, payload any) error
	Evict(groupID, userID string) int
	CloseRoom(groupID string) int
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Users       UserStore
	Groups      GroupStore
	Memberships MembershipStore
	Invitations InvitationStore
	Images      ImageStore
	Blobs       objectstore.Store
	Inviter     Inviter
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

type Service struct {
	Deps
	policy *bluemonday.Policy
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{Deps: d, policy: bluemonday.StrictPolicy()}
}

func loadGroup(ctx context.Context, groups GroupStore, id primitive.ObjectID) (models.Group, error) {
	g, err := groups.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Group{}, apperr.NotFound("Group not found")
	}
	if err != nil {
		return models.Group{}, apperr.Upstream("Failed to load group", err)
	}
	return g, nil
}

func imageRefs(imgs []models.Image) ([]primitive.ObjectID, []string) {
	ids := make([]primitive.ObjectID, 0, len(imgs))
	keys := make([]string, 0, len(imgs))
	for _, img := range imgs {
		ids = append(ids, img.ID)
		if img.ObjectKey != "" {
			keys = append(keys, img.ObjectKey)
		}
	}
	return ids, keys
}

// CleanName strips markup and surrounding space from a group name and
// checks its length.
func (s *Service) CleanName(raw string) (string, error) {
	name := normalize.Name(s.policy.Sanitize(raw))
	if name == "" {
		return "", apperr.Validation("Group name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperr.Validation("Group name must be at most 50 characters")
	}
	return name, nil
}

// Create inserts the group and its admin membership, then invites the
// initial members. Once the group exists it is never rolled back: a failed
// admin membership is returned as an error alongside the group, and failed
// invitations are only logged.
func (s *Service) Create(ctx context.Context, rawName string, creator primitive.ObjectID, usernames []string) (models.Group, error) {
	name, err := s.CleanName(rawName)
	if err != nil {
		return models.Group{}, err
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.Logger, "grouplife.Create")
	defer cancel()

	g, err := s.Groups.Create(cctx, models.Group{Name: name, AdminID: creator})
	if err != nil {
		return models.Group{}, apperr.Upstream("Failed to create group", err)
	}

	if _, err := s.Memberships.Add(cctx, g.ID, creator, models.RoleAdmin); err != nil {
		s.Logger.Error("group created without admin membership",
			zap.String("group_id", g.ID.Hex()),
			zap.String("admin_id", creator.Hex()),
			zap.Error(err))
		return g, apperr.Upstream("Group was created but its admin membership could not be saved", err)
	}

	if len(usernames) > 0 {
		if _, err := s.Inviter.AddMembers(ctx, g.ID, usernames, creator); err != nil {
			s.Logger.Warn("initial invitations failed",
				zap.String("group_id", g.ID.Hex()),
				zap.Error(err))
		}
	}
	return g, nil
}

// ListForUser returns the groups the user belongs to, most recently
// joined first.
func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.Logger, "grouplife.ListForUser")
	defer cancel()

	ms, err := s.Memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Upstream("Failed to load memberships", err)
	}
	ids := make([]primitive.ObjectID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.GroupID)
	}
	byID, err := s.Groups.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Upstream("Failed to load groups", err)
	}

	out := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// AdminProfile describes the group admin.
type AdminProfile struct {
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	GroupCreatedAt time.Time `json:"groupCreatedAt"`
}

// Info holds the group-wide counters.
type Info struct {
	MembersCount int    `json:"membersCount"`
	ImagesPosted int64  `json:"imagesPosted"`
	Invitations  int64  `json:"invitations"`
	GroupName    string `json:"groupName"`
}

// MemberSummary is one row of the member list.
type MemberSummary struct {
	UserID       primitive.ObjectID `json:"userId"`
	Username     string             `json:"username"`
	Name         string             `json:"name"`
	Role         string             `json:"role"`
	JoinedAt     time.Time          `json:"joinedAt"`
	ImagesPosted int64              `json:"imagesPosted"`
}

// Details is the group overview shown to members.
type Details struct {
	Admin        AdminProfile    `json:"admin"`
	GroupInfo    Info            `json:"groupInfo"`
	GroupMembers []MemberSummary `json:"groupMembers"`
}

// Details gathers the group, its counters and its members concurrently.
func (s *Service) Details(ctx context.Context, groupID primitive.ObjectID) (Details, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.Logger, "grouplife.Details")
	defer cancel()

	var (
		group       models.Group
		imageCount  int64
		inviteCount int64
		members     []models.GroupMembership
		perUser     map[primitive.ObjectID]int64
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		group, err = loadGroup(ectx, s.Groups, groupID)
		return err
	})
	eg.Go(func() (err error) {
		imageCount, err = s.Images.Count(ectx, groupID, nil)
		return err
	})
	eg.Go(func() (err error) {
		inviteCount, err = s.Invitations.CountByGroup(ectx, groupID)
		return err
	})
	eg.Go(func() (err error) {
		members, err = s.Memberships.ListByGroup(ectx, groupID)
		return err
	})
	eg.Go(func() (err error) {
		perUser, err = s.Images.CountPerUser(ectx, groupID)
		return err
	})
	if err := eg.Wait(); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return Details{}, err
		}
		return Details{}, apperr.Upstream("Failed to load group details", err)
	}

	userIDs := make([]primitive.ObjectID, 0, len(members)+1)
	userIDs = append(userIDs, group.AdminID)
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	users, err := s.Users.GetMany(ctx, userIDs)
	if err != nil {
		return Details{}, apperr.Upstream("Failed to load group members", err)
	}

	out := Details{
		GroupInfo: Info{
			MembersCount: len(members),
			ImagesPosted: imageCount,
			Invitations:  inviteCount,
			GroupName:    group.Name,
		},
		GroupMembers: make([]MemberSummary, 0, len(members)),
	}
	out.Admin.GroupCreatedAt = group.CreatedAt
	if admin, ok := users[group.AdminID]; ok {
		out.Admin.Username = admin.Username
		out.Admin.Name = admin.Name
		out.Admin.CreatedAt = admin.CreatedAt
	}
	for _, m := range members {
		u, ok := users[m.UserID]
		if !ok {
			continue
		}
		out.GroupMembers = append(out.GroupMembers, MemberSummary{
			UserID:       m.UserID,
			Username:     u.Username,
			Name:         u.Name,
			Role:         m.Role,
			JoinedAt:     m.JoinedAt,
			ImagesPosted: perUser[m.UserID],
		})
	}
	return out, nil
}

// Delete removes the group and everything bound to it. The group and its
// memberships and invitations go first so the group disappears for every
// member at once; blobs and image records follow. Image records are only
// removed once their blobs are gone. Failures after the group document is
// deleted are logged and left to the orphan sweeper.
func (s *Service) Delete(ctx context.Context, groupID primitive.ObjectID, requester models.Actor) error {
	sctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.Logger, "grouplife.Delete")
	defer cancel()

	g, err := loadGroup(sctx, s.Groups, groupID)
	if err != nil {
		return err
	}
	if g.AdminID != requester.ID {
		return apperr.Forbidden("Only group admin is authorized to perform this operation")
	}

	imgs, err := s.Images.ListByGroup(sctx, groupID)
	if err != nil {
		return apperr.Upstream("Failed to load group images", err)
	}

	if _, err := s.Groups.Delete(sctx, groupID); err != nil {
		return apperr.Upstream("Failed to delete group", err)
	}
	log := s.Logger.With(zap.String("group_id", groupID.Hex()))
	if _, err := s.Memberships.DeleteByGroup(sctx, groupID); err != nil {
		log.Error("group deleted but memberships remain", zap.Error(err))
	}
	if _, err := s.Invitations.DeleteByGroup(sctx, groupID); err != nil {
		log.Error("group deleted but invitations remain", zap.Error(err))
	}

	s.purgeImages(ctx, log, imgs, "group_delete")

	if err := s.Broadcaster.Broadcast(groupID.Hex(), fanout.EventGroupDelete, map[string]any{
		"message": "Group deleted by " + requester.Name,
		"groupId": groupID.Hex(),
	}); err != nil {
		log.Warn("groupDelete broadcast failed", zap.Error(err))
	}
	s.Broadcaster.CloseRoom(groupID.Hex())
	log.Info("group deleted",
		zap.String("admin_id", requester.ID.Hex()),
		zap.Int("images", len(imgs)))
	return nil
}

// purgeImages deletes the blobs of imgs, then their records. When the blob
// delete fails the records are kept so a later sweep can retry.
func (s *Service) purgeImages(ctx context.Context, log *zap.Logger, imgs []models.Image, cause string) bool {
	if len(imgs) == 0 {
		return true
	}
	ids, keys := imageRefs(imgs)

	bctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), log, "grouplife.purgeImages")
	defer cancel()

	if len(keys) > 0 {
		if err := s.Blobs.Delete(bctx, keys...); err != nil {
			log.Warn("blob delete failed; image records kept for sweep",
				zap.Int("count", len(keys)),
				zap.Error(err))
			return false
		}
	}
	n, err := s.Images.DeleteByIDs(bctx, ids)
	if err != nil {
		log.Warn("image records not deleted after blob delete",
			zap.Int("count", len(ids)),
			zap.Error(err))
		return false
	}
	metrics.ImagesDeleted.WithLabelValues(cause).Add(float64(n))
	return true
}

// Leave removes the user's membership and their images in the group. The
// admin cannot leave. Membership removal and image cleanup are attempted
// independently; only a failed membership removal is reported.
func (s *Service) Leave(ctx context.Context, groupID primitive.ObjectID, user models.Actor) error {
	sctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.Logger, "grouplife.Leave")
	defer cancel()

	g, err := loadGroup(sctx, s.Groups, groupID)
	if err != nil {
		return err
	}
	if g.AdminID == user.ID {
		return apperr.ErrAdminCannotLeave
	}
	if _, err := s.Memberships.Get(sctx, groupID, user.ID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.ErrNotMember
		}
		return apperr.Upstream("Failed to load membership", err)
	}

	imgs, err := s.Images.ListByGroupUser(sctx, groupID, user.ID)
	if err != nil {
		return apperr.Upstream("Failed to load your images", err)
	}

	log := s.Logger.With(
		zap.String("group_id", groupID.Hex()),
		zap.String("user_id", user.ID.Hex()))

	_, removeErr := s.Memberships.Remove(sctx, groupID, user.ID)
	if removeErr != nil {
		log.Error("membership removal failed", zap.Error(removeErr))
	}
	s.purgeImages(ctx, log, imgs, "leave")

	if removeErr != nil {
		return apperr.Upstream("Failed to leave the group", removeErr)
	}

	if err := s.Broadcaster.Broadcast(groupID.Hex(), fanout.EventGroupLeft, map[string]any{
		"message": user.Username + " has left the group",
		"userId":  user.ID.Hex(),
	}); err != nil {
		log.Warn("groupLeft broadcast failed", zap.Error(err))
	}
	s.Broadcaster.Evict(groupID.Hex(), user.ID.Hex())
	return nil
}
