// internal/app/policy/grouppolicy/grouppolicy.go
package grouppolicy

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// URLParam is the chi route parameter holding the group id.
const URLParam = "groupID"

// MembershipGetter loads one membership; mongo.ErrNoDocuments when absent.
type MembershipGetter interface {
	Get(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error)
}

// GroupGetter loads one group; mongo.ErrNoDocuments when absent.
type GroupGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
}

// Policy gates group routes on the caller's membership or admin status.
type Policy struct {
	members MembershipGetter
	groups  GroupGetter
	log     *zap.Logger
}

func New(members MembershipGetter, groups GroupGetter, logger *zap.Logger) *Policy {
	return &Policy{members: members, groups: groups, log: logger}
}

type ctxKey int

const (
	membershipKey ctxKey = iota
	groupKey
)

// MembershipFrom returns the membership loaded by RequireMembership.
func MembershipFrom(r *http.Request) (models.GroupMembership, bool) {
	m, ok := r.Context().Value(membershipKey).(models.GroupMembership)
	return m, ok
}

// GroupFrom returns the group loaded by RequireGroupAdmin.
func GroupFrom(r *http.Request) (models.Group, bool) {
	g, ok := r.Context().Value(groupKey).(models.Group)
	return g, ok
}

// WithMembership returns r carrying m, as RequireMembership would.
func WithMembership(r *http.Request, m models.GroupMembership) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), membershipKey, m))
}

// GroupID parses the group id route parameter.
func GroupID(r *http.Request) (primitive.ObjectID, error) {
	raw := chi.URLParam(r, URLParam)
	if raw == "" {
		return primitive.NilObjectID, apperr.Validation("Group ID is required")
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("Invalid group id")
	}
	return id, nil
}

func callerID(r *http.Request) (primitive.ObjectID, error) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return primitive.NilObjectID, apperr.Unauthorized("Please login to get access")
	}
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID, apperr.Unauthorized("Please login to get access")
	}
	return id, nil
}

// RequireMembership lets the request through only when the signed-in user
// is a member of the group in the URL. The membership is stored in the
// request context.
func (p *Policy) RequireMembership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := callerID(r)
		if err != nil {
			httpjson.WriteError(w, r, p.log, err)
			return
		}
		gid, err := GroupID(r)
		if err != nil {
			httpjson.WriteError(w, r, p.log, err)
			return
		}

		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), p.log, "grouppolicy.membership")
		m, err := p.members.Get(ctx, gid, uid)
		cancel()
		if errors.Is(err, mongo.ErrNoDocuments) {
			httpjson.WriteError(w, r, p.log, apperr.Forbidden("You are not authorized to access this group resource"))
			return
		}
		if err != nil {
			httpjson.WriteError(w, r, p.log, apperr.Upstream("Error verifying group membership", err))
			return
		}
		next.ServeHTTP(w, WithMembership(r, m))
	})
}

// RequireGroupAdmin lets the request through only when the signed-in user
// is the group's admin. The group is stored in the request context.
func (p *Policy) RequireGroupAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := callerID(r)
		if err != nil {
			httpjson.WriteError(w, r, p.log, err)
			return
		}
		gid, err := GroupID(r)
		if err != nil {
			httpjson.WriteError(w, r, p.log, err)
			return
		}

		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), p.log, "grouppolicy.admin")
		g, err := p.groups.GetByID(ctx, gid)
		cancel()
		if errors.Is(err, mongo.ErrNoDocuments) || (err == nil && g.AdminID != uid) {
			httpjson.WriteError(w, r, p.log, apperr.Forbidden("Only group admin is authorized to perform this operation"))
			return
		}
		if err != nil {
			httpjson.WriteError(w, r, p.log, apperr.Upstream("Error verifying group membership", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), groupKey, g)))
	})
}
