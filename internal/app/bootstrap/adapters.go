// internal/app/bootstrap/adapters.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/fanout"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// tokenResolver is the part of auth.Manager the gateway needs.
type tokenResolver interface {
	Resolve(ctx context.Context, token string) (*auth.SessionUser, error)
}

// gatewayAuthenticator lets websocket connections use the same tokens and
// user lookup as the HTTP API.
func gatewayAuthenticator(m tokenResolver) fanout.Authenticator {
	return fanout.AuthenticatorFunc(func(ctx context.Context, token string) (fanout.Identity, error) {
		u, err := m.Resolve(ctx, token)
		if err != nil {
			return fanout.Identity{}, err
		}
		return fanout.Identity{UserID: u.ID, Username: u.Username, Name: u.Name}, nil
	})
}

type membershipExister interface {
	Exists(ctx context.Context, groupID, userID primitive.ObjectID) (bool, error)
}

// memberChecker answers the gateway's room checks from the membership
// store. Malformed ids are simply not members.
type memberChecker struct {
	store membershipExister
}

func (m memberChecker) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return false, nil
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}
	return m.store.Exists(ctx, gid, uid)
}
