// Package fakes provides in-memory stand-ins for the document stores, the
// object store, the realtime gateway and the image normalizer. They mirror
// the method sets of the real implementations so services can be tested
// without MongoDB, S3 or sockets.
package fakes

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	loginstore "github.com/dalemusser/groupsnap/internal/app/store/logins"
	membershipstore "github.com/dalemusser/groupsnap/internal/app/store/memberships"
	userstore "github.com/dalemusser/groupsnap/internal/app/store/users"
	"github.com/dalemusser/groupsnap/internal/app/system/auth"
	"github.com/dalemusser/groupsnap/internal/app/system/normalize"
	"github.com/dalemusser/groupsnap/internal/app/system/paging"
	"github.com/dalemusser/groupsnap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// failures maps a method name to the error it should return.
type failures struct {
	mu   sync.Mutex
	errs map[string]error
}

// FailOn makes method return err until cleared with a nil err.
func (f *failures) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

func (f *failures) fail(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func idLess(a, b primitive.ObjectID) bool { return bytes.Compare(a[:], b[:]) < 0 }

/*─────────────────────────────────────────────────────────────────────────────*
| Users                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// Users is an in-memory user store.
type Users struct {
	failures
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.User
}

func NewUsers() *Users { return &Users{byID: make(map[primitive.ObjectID]models.User)} }

func (s *Users) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	if err := s.fail("GetByID"); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return u, nil
}

func (s *Users) GetByUsername(_ context.Context, username string) (models.User, error) {
	if err := s.fail("GetByUsername"); err != nil {
		return models.User{}, err
	}
	ci := normalize.UsernameCI(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.UsernameCI == ci {
			return u, nil
		}
	}
	return models.User{}, mongo.ErrNoDocuments
}

func (s *Users) IDsByUsernames(_ context.Context, usernames []string) ([]primitive.ObjectID, error) {
	if err := s.fail("IDsByUsernames"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []primitive.ObjectID
	for _, ci := range normalize.Usernames(usernames) {
		for _, u := range s.byID {
			if u.UsernameCI == ci {
				out = append(out, u.ID)
			}
		}
	}
	return out, nil
}

func (s *Users) GetMany(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	if err := s.fail("GetMany"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			u.PasswordHash = ""
			out[id] = u
		}
	}
	return out, nil
}

func (s *Users) Create(_ context.Context, u models.User) (models.User, error) {
	if err := s.fail("Create"); err != nil {
		return models.User{}, err
	}
	u.ID = primitive.NewObjectID()
	u.Username = normalize.Username(u.Username)
	u.UsernameCI = normalize.UsernameCI(u.Username)
	u.Name = normalize.Name(u.Name)
	u.Email = normalize.Email(u.Email)
	if u.AuthProvider == "" {
		u.AuthProvider = models.AuthProviderLocal
	}
	u.CreatedAt, u.UpdatedAt = now(), now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.byID {
		if other.UsernameCI == u.UsernameCI {
			return models.User{}, userstore.ErrDuplicateUsername
		}
		if other.Email == u.Email {
			return models.User{}, userstore.ErrDuplicateEmail
		}
	}
	s.byID[u.ID] = u
	return u, nil
}

func (s *Users) UpdateProfile(_ context.Context, id primitive.ObjectID, p userstore.ProfileUpdate) (models.User, error) {
	if err := s.fail("UpdateProfile"); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	if p.Name != nil {
		u.Name = normalize.Name(*p.Name)
	}
	if p.Username != nil {
		u.Username = normalize.Username(*p.Username)
		u.UsernameCI = normalize.UsernameCI(u.Username)
	}
	if p.Email != nil {
		u.Email = normalize.Email(*p.Email)
	}
	if p.Photo != nil {
		photo := *p.Photo
		u.ProfilePhoto = &photo
	}
	for oid, other := range s.byID {
		if oid == id {
			continue
		}
		if other.UsernameCI == u.UsernameCI {
			return models.User{}, userstore.ErrDuplicateUsername
		}
		if other.Email == u.Email {
			return models.User{}, userstore.ErrDuplicateEmail
		}
	}
	u.UpdatedAt = now()
	s.byID[id] = u
	return u, nil
}

func (s *Users) SetPassword(_ context.Context, id primitive.ObjectID, hash string) error {
	if err := s.fail("SetPassword"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	u.PasswordHash = hash
	u.UpdatedAt = now()
	s.byID[id] = u
	return nil
}

// Add creates a user with the given username and returns it.
func (s *Users) Add(username string) models.User {
	u, err := s.Create(context.Background(), models.User{
		Username: username,
		Name:     username + " name",
		Email:    username + "@example.com",
	})
	if err != nil {
		panic(err)
	}
	return u
}

// FetchUser implements auth.UserFetcher.
func (s *Users) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return &auth.SessionUser{ID: u.ID.Hex(), Username: u.Username, Name: u.Name}
}

// Remove deletes a user outright.
func (s *Users) Remove(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Groups                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// Groups is an in-memory group store.
type Groups struct {
	failures
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.Group
}

func NewGroups() *Groups { return &Groups{byID: make(map[primitive.ObjectID]models.Group)} }

func (s *Groups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	if err := s.fail("GetByID"); err != nil {
		return models.Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byID[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return g, nil
}

func (s *Groups) Create(_ context.Context, g models.Group) (models.Group, error) {
	if err := s.fail("Create"); err != nil {
		return models.Group{}, err
	}
	g.ID = primitive.NewObjectID()
	g.CreatedAt, g.UpdatedAt = now(), now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[g.ID] = g
	return g, nil
}

func (s *Groups) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	if err := s.fail("Delete"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return 0, nil
	}
	delete(s.byID, id)
	return 1, nil
}

func (s *Groups) ListByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Group, error) {
	if err := s.fail("ListByIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]models.Group, len(ids))
	for _, id := range ids {
		if g, ok := s.byID[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

func (s *Groups) ExistingIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	if err := s.fail("ExistingIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Len returns the number of groups.
func (s *Groups) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Memberships                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Memberships is an in-memory membership store with the unique
// (user, group) constraint.
type Memberships struct {
	failures
	mu   sync.Mutex
	rows []models.GroupMembership
}

func NewMemberships() *Memberships { return &Memberships{} }

func (s *Memberships) find(groupID, userID primitive.ObjectID) int {
	for i, m := range s.rows {
		if m.GroupID == groupID && m.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Memberships) Add(_ context.Context, groupID, userID primitive.ObjectID, role string) (models.GroupMembership, error) {
	if err := s.fail("Add"); err != nil {
		return models.GroupMembership{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(groupID, userID) >= 0 {
		return models.GroupMembership{}, membershipstore.ErrDuplicateMembership
	}
	m := models.GroupMembership{
		ID:       primitive.NewObjectID(),
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: now(),
	}
	s.rows = append(s.rows, m)
	return m, nil
}

func (s *Memberships) Get(_ context.Context, groupID, userID primitive.ObjectID) (models.GroupMembership, error) {
	if err := s.fail("Get"); err != nil {
		return models.GroupMembership{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(groupID, userID); i >= 0 {
		return s.rows[i], nil
	}
	return models.GroupMembership{}, mongo.ErrNoDocuments
}

func (s *Memberships) Exists(ctx context.Context, groupID, userID primitive.ObjectID) (bool, error) {
	if err := s.fail("Exists"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(groupID, userID) >= 0, nil
}

func (s *Memberships) Remove(_ context.Context, groupID, userID primitive.ObjectID) (int64, error) {
	if err := s.fail("Remove"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(groupID, userID)
	if i < 0 {
		return 0, nil
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return 1, nil
}

func (s *Memberships) DistinctGroupIDs(_ context.Context) ([]primitive.ObjectID, error) {
	if err := s.fail("DistinctGroupIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	var out []primitive.ObjectID
	for _, m := range s.rows {
		if !seen[m.GroupID] {
			seen[m.GroupID] = true
			out = append(out, m.GroupID)
		}
	}
	return out, nil
}

func (s *Memberships) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	if err := s.fail("DeleteByGroup"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, m := range s.rows {
		if m.GroupID == groupID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.rows = kept
	return n, nil
}

func (s *Memberships) CountByGroup(_ context.Context, groupID primitive.ObjectID, role string) (int64, error) {
	if err := s.fail("CountByGroup"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.rows {
		if m.GroupID == groupID && (role == "" || m.Role == role) {
			n++
		}
	}
	return n, nil
}

func (s *Memberships) ListByGroup(_ context.Context, groupID primitive.ObjectID) ([]models.GroupMembership, error) {
	if err := s.fail("ListByGroup"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GroupMembership
	for _, m := range s.rows {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return idLess(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *Memberships) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.GroupMembership, error) {
	if err := s.fail("ListByUser"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GroupMembership
	for _, m := range s.rows {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return idLess(out[j].ID, out[i].ID)
	})
	return out, nil
}

func (s *Memberships) MemberUserIDs(_ context.Context, groupID primitive.ObjectID, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	if err := s.fail("MemberUserIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]bool, len(userIDs))
	for _, id := range userIDs {
		if s.find(groupID, id) >= 0 {
			out[id] = true
		}
	}
	return out, nil
}

// Len returns the number of memberships.
func (s *Memberships) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Invitations                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Invitations is an in-memory invitation store with the unique
// (receiver, group) constraint.
type Invitations struct {
	failures
	mu   sync.Mutex
	rows []models.GroupInvitation
}

func NewInvitations() *Invitations { return &Invitations{} }

func (s *Invitations) find(groupID, receiverID primitive.ObjectID) int {
	for i, inv := range s.rows {
		if inv.GroupID == groupID && inv.ReceiverID == receiverID {
			return i
		}
	}
	return -1
}

func (s *Invitations) InsertMany(_ context.Context, groupID, senderID primitive.ObjectID, receiverIDs []primitive.ObjectID) (int, error) {
	if err := s.fail("InsertMany"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, rid := range receiverIDs {
		if s.find(groupID, rid) >= 0 {
			continue
		}
		s.rows = append(s.rows, models.GroupInvitation{
			ID:         primitive.NewObjectID(),
			SenderID:   senderID,
			ReceiverID: rid,
			GroupID:    groupID,
			CreatedAt:  now(),
		})
		added++
	}
	return added, nil
}

func (s *Invitations) InvitedUserIDs(_ context.Context, groupID primitive.ObjectID, userIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	if err := s.fail("InvitedUserIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]bool, len(userIDs))
	for _, id := range userIDs {
		if s.find(groupID, id) >= 0 {
			out[id] = true
		}
	}
	return out, nil
}

func (s *Invitations) Take(_ context.Context, groupID, receiverID primitive.ObjectID) (models.GroupInvitation, error) {
	if err := s.fail("Take"); err != nil {
		return models.GroupInvitation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(groupID, receiverID)
	if i < 0 {
		return models.GroupInvitation{}, mongo.ErrNoDocuments
	}
	inv := s.rows[i]
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return inv, nil
}

func (s *Invitations) ListByReceiver(_ context.Context, receiverID primitive.ObjectID) ([]models.GroupInvitation, error) {
	if err := s.fail("ListByReceiver"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GroupInvitation
	for _, inv := range s.rows {
		if inv.ReceiverID == receiverID {
			out = append(out, inv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return idLess(out[j].ID, out[i].ID)
	})
	return out, nil
}

func (s *Invitations) DistinctGroupIDs(_ context.Context) ([]primitive.ObjectID, error) {
	if err := s.fail("DistinctGroupIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	var out []primitive.ObjectID
	for _, inv := range s.rows {
		if !seen[inv.GroupID] {
			seen[inv.GroupID] = true
			out = append(out, inv.GroupID)
		}
	}
	return out, nil
}

func (s *Invitations) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	if err := s.fail("DeleteByGroup"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var n int64
	for _, inv := range s.rows {
		if inv.GroupID == groupID {
			n++
			continue
		}
		kept = append(kept, inv)
	}
	s.rows = kept
	return n, nil
}

func (s *Invitations) CountByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	if err := s.fail("CountByGroup"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, inv := range s.rows {
		if inv.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

// Has reports whether receiverID holds an invitation for groupID.
func (s *Invitations) Has(groupID, receiverID primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(groupID, receiverID) >= 0
}

// Len returns the number of invitations.
func (s *Invitations) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Images                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// Images is an in-memory image metadata store.
type Images struct {
	failures
	mu   sync.Mutex
	rows []models.Image
}

func NewImages() *Images { return &Images{} }

func inScope(img models.Image, groupID primitive.ObjectID, userID *primitive.ObjectID) bool {
	return img.GroupID == groupID && (userID == nil || img.UserID == *userID)
}

func newestFirst(rows []models.Image) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return idLess(rows[j].ID, rows[i].ID)
	})
}

func (s *Images) filter(keep func(models.Image) bool) []models.Image {
	out := []models.Image{}
	for _, img := range s.rows {
		if keep(img) {
			out = append(out, img)
		}
	}
	return out
}

func (s *Images) Insert(_ context.Context, img models.Image) (models.Image, error) {
	if err := s.fail("Insert"); err != nil {
		return models.Image{}, err
	}
	if img.ID.IsZero() {
		img.ID = primitive.NewObjectID()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = now()
	}
	img.CreatedAt = img.CreatedAt.UTC().Truncate(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, img)
	return img, nil
}

func (s *Images) ListByGroup(_ context.Context, groupID primitive.ObjectID) ([]models.Image, error) {
	if err := s.fail("ListByGroup"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(img models.Image) bool { return img.GroupID == groupID }), nil
}

func (s *Images) ListByGroupUser(_ context.Context, groupID, userID primitive.ObjectID) ([]models.Image, error) {
	if err := s.fail("ListByGroupUser"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(img models.Image) bool { return inScope(img, groupID, &userID) }), nil
}

func (s *Images) FindScoped(_ context.Context, groupID primitive.ObjectID, ids []primitive.ObjectID, userID *primitive.ObjectID) ([]models.Image, error) {
	if err := s.fail("FindScoped"); err != nil {
		return nil, err
	}
	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(img models.Image) bool { return want[img.ID] && inScope(img, groupID, userID) }), nil
}

func (s *Images) DeleteByIDs(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	if err := s.fail("DeleteByIDs"); err != nil {
		return 0, err
	}
	drop := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.rows)
	s.rows = s.filter(func(img models.Image) bool { return !drop[img.ID] })
	return int64(before - len(s.rows)), nil
}

func (s *Images) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	if err := s.fail("DeleteByGroup"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.rows)
	s.rows = s.filter(func(img models.Image) bool { return img.GroupID != groupID })
	return int64(before - len(s.rows)), nil
}

func (s *Images) Count(_ context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID) (int64, error) {
	if err := s.fail("Count"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filter(func(img models.Image) bool { return inScope(img, groupID, userID) }))), nil
}

func (s *Images) PageBefore(_ context.Context, groupID primitive.ObjectID, cursor *paging.TimeCursor, limit int64) ([]models.Image, error) {
	if err := s.fail("PageBefore"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rows := s.filter(func(img models.Image) bool {
		if img.GroupID != groupID {
			return false
		}
		if cursor == nil {
			return true
		}
		if img.CreatedAt.Before(cursor.At) {
			return true
		}
		return !cursor.ID.IsZero() && img.CreatedAt.Equal(cursor.At) && idLess(img.ID, cursor.ID)
	})
	s.mu.Unlock()
	newestFirst(rows)
	if int64(len(rows)) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Images) PageOffset(_ context.Context, groupID primitive.ObjectID, userID *primitive.ObjectID, skip, limit int64) ([]models.Image, error) {
	if err := s.fail("PageOffset"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rows := s.filter(func(img models.Image) bool { return inScope(img, groupID, userID) })
	s.mu.Unlock()
	newestFirst(rows)
	if skip >= int64(len(rows)) {
		return []models.Image{}, nil
	}
	rows = rows[skip:]
	if int64(len(rows)) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Images) CountPerUser(_ context.Context, groupID primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	if err := s.fail("CountPerUser"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]int64)
	for _, img := range s.rows {
		if img.GroupID == groupID {
			out[img.UserID]++
		}
	}
	return out, nil
}

func (s *Images) DistinctGroupIDs(_ context.Context) ([]primitive.ObjectID, error) {
	if err := s.fail("DistinctGroupIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	var out []primitive.ObjectID
	for _, img := range s.rows {
		if !seen[img.GroupID] {
			seen[img.GroupID] = true
			out = append(out, img.GroupID)
		}
	}
	return out, nil
}

func (s *Images) DistinctUserIDs(_ context.Context, groupID primitive.ObjectID) ([]primitive.ObjectID, error) {
	if err := s.fail("DistinctUserIDs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	var out []primitive.ObjectID
	for _, img := range s.rows {
		if img.GroupID == groupID && !seen[img.UserID] {
			seen[img.UserID] = true
			out = append(out, img.UserID)
		}
	}
	return out, nil
}

// Seed inserts an image posted by userID at the given time.
func (s *Images) Seed(groupID, userID primitive.ObjectID, at time.Time, key string) models.Image {
	img, _ := s.Insert(context.Background(), models.Image{
		ObjectKey:   key,
		URL:         "https://cdn.example.com/" + key,
		UserID:      userID,
		GroupID:     groupID,
		ContentType: "image/jpeg",
		CreatedAt:   at,
	})
	return img
}

// Len returns the number of image records.
func (s *Images) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Login history                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// Logins is an in-memory login history.
type Logins struct {
	failures

	mu   sync.Mutex
	rows []models.LoginRecord
}

func NewLogins() *Logins { return &Logins{} }

func (s *Logins) Record(_ context.Context, r *http.Request, userID primitive.ObjectID, provider string) error {
	if err := s.fail("Record"); err != nil {
		return err
	}
	rec := loginstore.FromRequest(r, userID, provider)
	rec.ID = primitive.NewObjectID()
	rec.CreatedAt = now()
	s.mu.Lock()
	s.rows = append(s.rows, rec)
	s.mu.Unlock()
	return nil
}

func (s *Logins) ListByUser(_ context.Context, userID primitive.ObjectID, limit int64) ([]models.LoginRecord, error) {
	if err := s.fail("ListByUser"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.LoginRecord{}
	for i := len(s.rows) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if s.rows[i].UserID == userID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Logins) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
