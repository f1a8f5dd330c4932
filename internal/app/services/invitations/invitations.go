// Package invitations manages group invitations and turns accepted ones
// into memberships.
package invitations

import (
	"context"
	"errors"
	"time"

	membershipstore "github.com/dalemusser/groupsnap/internal/app/store/memberships"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	unknownGroup = "Unknown Group"
	unknownUser  = "Unknown User"
)

type UserStore interface {
	IDsByUsernames(ctx context.Context, usernames []string) ([]primitive.ObjectID, error)
	GetMany(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
}

type GroupStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Group, error)
}

type MembershipStore interface {
	Add(ctx context.Context, groupID, userID primitive.ObjectID, role string) (models.GroupMembership, error)
	Get(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error)
	MemberUserIDs(ctx context.Context, groupID primitive.ObjectID, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}

type InvitationStore interface {
	InsertMany(ctx context.Context, groupID, senderID primitive.ObjectID, receiverIDs []primitive.ObjectID) (int, error)
	InvitedUserIDs(ctx context.Context, groupID primitive.ObjectID, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
	Take(ctx context.Context, groupID, receiverID primitive.ObjectID) (models.GroupInvitation, error)
	ListByReceiver(ctx context.Context, receiverID primitive.ObjectID) ([]models.GroupInvitation, error)
}

// Service implements invite, accept, decline and list.
type Service struct {
	users   UserStore
	groups  GroupStore
	members MembershipStore
	invites InvitationStore
	log     *zap.Logger
}

func New(users UserStore, groups GroupStore, members MembershipStore, invites InvitationStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, groups: groups, members: members, invites: invites, log: logger}
}

// GroupRef names the group an invitation is for. ID is nil when the group
// no longer exists.
type GroupRef struct {
	ID   *primitive.ObjectID `json:"id"`
	Name string              `json:"name"`
}

// Summary is one pending invitation as shown to its receiver.
type Summary struct {
	ID             primitive.ObjectID `json:"id"`
	Group          GroupRef           `json:"group"`
	SenderUsername string             `json:"senderUsername"`
	InvitationDate time.Time          `json:"invitationDate"`
}

// AddMembers invites every named user who is neither a member of the group
// nor already invited to it. Unknown usernames are ignored. Returns the
// number of invitations created.
func (s *Service) AddMembers(ctx context.Context, groupID primitive.ObjectID, usernames []string, inviterID primitive.ObjectID) (int, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.log, "invitations.AddMembers")
	defer cancel()

	candidates, err := s.users.IDsByUsernames(ctx, usernames)
	if err != nil {
		return 0, apperr.Upstream("Failed to resolve usernames", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	members, err := s.members.MemberUserIDs(ctx, groupID, candidates)
	if err != nil {
		return 0, apperr.Upstream("Failed to load group members", err)
	}
	invited, err := s.invites.InvitedUserIDs(ctx, groupID, candidates)
	if err != nil {
		return 0, apperr.Upstream("Failed to load pending invitations", err)
	}

	receivers := make([]primitive.ObjectID, 0, len(candidates))
	for _, id := range candidates {
		if members[id] || invited[id] {
			continue
		}
		receivers = append(receivers, id)
	}
	if len(receivers) == 0 {
		return 0, nil
	}

	n, err := s.invites.InsertMany(ctx, groupID, inviterID, receivers)
	if err != nil {
		return n, apperr.Upstream("Failed to create invitations", err)
	}
	s.log.Info("invitations created",
		zap.String("group_id", groupID.Hex()),
		zap.String("sender_id", inviterID.Hex()),
		zap.Int("count", n))
	return n, nil
}

// Invite is AddMembers for a request made by requesterID, who must be the
// group's admin.
func (s *Service) Invite(ctx context.Context, groupID primitive.ObjectID, usernames []string, requesterID primitive.ObjectID) (int, error) {
	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "invitations.Invite")
	g, err := s.groups.GetByID(gctx, groupID)
	cancel()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, apperr.NotFound("This is not a valid group ID")
	}
	if err != nil {
		return 0, apperr.Upstream("Failed to load group", err)
	}
	if g.AdminID != requesterID {
		return 0, apperr.Forbidden("You are not authorized to invite members")
	}
	return s.AddMembers(ctx, groupID, usernames, requesterID)
}

// Accept consumes the user's invitation and makes them a member. The
// invitation is removed before the membership is written.
func (s *Service) Accept(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "invitations.Accept")
	defer cancel()

	inv, err := s.invites.Take(ctx, groupID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.GroupMembership{}, apperr.ErrNotInvited
	}
	if err != nil {
		return models.GroupMembership{}, apperr.Upstream("Failed to accept invitation", err)
	}

	m, err := s.members.Add(ctx, groupID, userID, models.RoleMember)
	if errors.Is(err, membershipstore.ErrDuplicateMembership) {
		existing, gerr := s.members.Get(ctx, groupID, userID)
		if gerr != nil {
			return models.GroupMembership{}, apperr.Upstream("Failed to load membership", gerr)
		}
		return existing, nil
	}
	if err != nil {
		// Put the invitation back so the user can try again.
		if _, rerr := s.invites.InsertMany(ctx, groupID, inv.SenderID, []primitive.ObjectID{userID}); rerr != nil {
			s.log.Warn("invitation lost after failed accept",
				zap.String("group_id", groupID.Hex()),
				zap.String("user_id", userID.Hex()),
				zap.Error(rerr))
		}
		return models.GroupMembership{}, apperr.Upstream("Failed to join group", err)
	}
	return m, nil
}

// Decline removes the user's invitation.
func (s *Service) Decline(ctx context.Context, groupID, userID primitive.ObjectID) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "invitations.Decline")
	defer cancel()

	_, err := s.invites.Take(ctx, groupID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.ErrNotInvited
	}
	if err != nil {
		return apperr.Upstream("Failed to decline invitation", err)
	}
	return nil
}

// ListForUser returns the user's pending invitations, newest first, with
// the group name and sender username filled in.
func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]Summary, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.log, "invitations.ListForUser")
	defer cancel()

	invs, err := s.invites.ListByReceiver(ctx, userID)
	if err != nil {
		return nil, apperr.Upstream("Failed to load invitations", err)
	}
	out := make([]Summary, 0, len(invs))
	if len(invs) == 0 {
		return out, nil
	}

	groupIDs := make([]primitive.ObjectID, 0, len(invs))
	senderIDs := make([]primitive.ObjectID, 0, len(invs))
	for _, inv := range invs {
		groupIDs = append(groupIDs, inv.GroupID)
		senderIDs = append(senderIDs, inv.SenderID)
	}
	groups, err := s.groups.ListByIDs(ctx, groupIDs)
	if err != nil {
		return nil, apperr.Upstream("Failed to load groups", err)
	}
	senders, err := s.users.GetMany(ctx, senderIDs)
	if err != nil {
		return nil, apperr.Upstream("Failed to load senders", err)
	}

	for _, inv := range invs {
		sum := Summary{
			ID:             inv.ID,
			Group:          GroupRef{Name: unknownGroup},
			SenderUsername: unknownUser,
			InvitationDate: inv.CreatedAt,
		}
		if g, ok := groups[inv.GroupID]; ok {
			id := g.ID
			sum.Group = GroupRef{ID: &id, Name: g.Name}
		}
		if u, ok := senders[inv.SenderID]; ok && u.Username != "" {
			sum.SenderUsername = u.Username
		}
		out = append(out, sum)
	}
	return out, nil
}
