package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/auth"
	"github.com/sakif/campus-clubs/internal/authz"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is one in-memory "database" shared by the four fake
// repositories, so a membership written through fakeMemberships is visible
// to fakeClubs and to the guard.
type fakeStore struct {
	mu sync.Mutex

	users     map[string]*model.User
	interests map[string][]string
	clubs     map[int64]*model.Club
	clubOrder []int64
	roles     map[int64]map[string]model.Role
	joinOrder map[int64][]string
	events    map[int64]*model.Event

	nextUser  int
	nextClub  int64
	nextEvent int64

	// set to a non-nil error to simulate a database failure
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]*model.User{},
		interests: map[string][]string{},
		clubs:     map[int64]*model.Club{},
		roles:     map[int64]map[string]model.Role{},
		joinOrder: map[int64][]string{},
		events:    map[int64]*model.Event{},
	}
}

type (
	fakeUsers       struct{ s *fakeStore }
	fakeClubs       struct{ s *fakeStore }
	fakeMemberships struct{ s *fakeStore }
	fakeEvents      struct{ s *fakeStore }
)

var (
	_ repository.UserRepository       = fakeUsers{}
	_ repository.ClubRepository       = fakeClubs{}
	_ repository.MembershipRepository = fakeMemberships{}
	_ repository.EventRepository      = fakeEvents{}
)

// ---- users ----

func (f fakeUsers) Create(ctx context.Context, user *model.User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return f.s.failWith
	}
	for _, u := range f.s.users {
		if u.InstitutionID == user.InstitutionID {
			return apperror.Conflict("institution ID already exists")
		}
	}
	f.s.nextUser++
	user.ID = fmt.Sprintf("user-%d", f.s.nextUser)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.s.users[user.ID] = &copied
	return nil
}

func (f fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	u, ok := f.s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f fakeUsers) GetByInstitutionID(ctx context.Context, institutionID string) (*model.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	for _, u := range f.s.users {
		if u.InstitutionID == institutionID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", institutionID)
}

func (f fakeUsers) UpdateProfile(ctx context.Context, user *model.User, interests []string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return f.s.failWith
	}
	u, ok := f.s.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	u.Name, u.Grade, u.Major = user.Name, user.Grade, user.Major
	f.s.interests[user.ID] = append([]string(nil), interests...)
	return nil
}

func (f fakeUsers) ListInterests(ctx context.Context, userID string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	return append([]string(nil), f.s.interests[userID]...), nil
}

// ---- clubs ----

func (f fakeClubs) CreateWithFounder(ctx context.Context, club *model.Club, founderID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return f.s.failWith
	}
	if _, ok := f.s.users[founderID]; !ok {
		return apperror.NotFound("club or user", founderID)
	}
	f.s.nextClub++
	club.ID = f.s.nextClub
	club.CreatedAt = time.Now().UTC()
	copied := *club
	f.s.clubs[club.ID] = &copied
	f.s.clubOrder = append(f.s.clubOrder, club.ID)
	f.s.roles[club.ID] = map[string]model.Role{founderID: model.RoleAdmin}
	f.s.joinOrder[club.ID] = []string{founderID}
	club.Members = f.s.membersLocked(club.ID)
	return nil
}

func (f fakeClubs) GetByID(ctx context.Context, id int64) (*model.Club, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	c, ok := f.s.clubs[id]
	if !ok {
		return nil, apperror.NotFound("club", strconv.FormatInt(id, 10))
	}
	copied := *c
	copied.Members = f.s.membersLocked(id)
	return &copied, nil
}

func (f fakeClubs) Exists(ctx context.Context, id int64) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return false, f.s.failWith
	}
	_, ok := f.s.clubs[id]
	return ok, nil
}

func (f fakeClubs) List(ctx context.Context, opts repository.ListOptions) ([]model.Club, error) {
	return f.filter(func(c *model.Club) bool { return true }, opts)
}

func (f fakeClubs) Search(ctx context.Context, query string) ([]model.Club, error) {
	q := strings.ToLower(query)
	return f.filter(func(c *model.Club) bool {
		return strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Description), q) ||
			strings.Contains(strings.ToLower(c.Categories), q)
	}, repository.ListOptions{})
}

func (f fakeClubs) ListByCategories(ctx context.Context, categories []string) ([]model.Club, error) {
	want := map[string]bool{}
	for _, c := range categories {
		want[c] = true
	}
	return f.filter(func(c *model.Club) bool { return want[c.Categories] }, repository.ListOptions{})
}

func (f fakeClubs) filter(keep func(*model.Club) bool, opts repository.ListOptions) ([]model.Club, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	out := []model.Club{}
	for _, id := range f.s.clubOrder {
		c := f.s.clubs[id]
		if keep(c) {
			copied := *c
			copied.Members = f.s.membersLocked(id)
			out = append(out, copied)
		}
	}
	if opts.Offset >= len(out) {
		return []model.Club{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ---- memberships ----

func (f fakeMemberships) Add(ctx context.Context, clubID int64, userID string, role model.Role) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return f.s.failWith
	}
	if _, ok := f.s.clubs[clubID]; !ok {
		return apperror.NotFound("club or user", userID)
	}
	if _, ok := f.s.roles[clubID][userID]; ok {
		return apperror.Conflict("already a member of this club")
	}
	f.s.roles[clubID][userID] = role
	f.s.joinOrder[clubID] = append(f.s.joinOrder[clubID], userID)
	return nil
}

func (f fakeMemberships) GetRole(ctx context.Context, clubID int64, userID string) (model.Role, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return "", f.s.failWith
	}
	role, ok := f.s.roles[clubID][userID]
	if !ok {
		return "", apperror.NotFound("membership", userID)
	}
	return role, nil
}

func (f fakeMemberships) Promote(ctx context.Context, clubID int64, userID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return f.s.failWith
	}
	role, ok := f.s.roles[clubID][userID]
	switch {
	case !ok:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: "member not found in the club"}
	case role == model.RoleAdmin:
		return apperror.Conflict("member is already an admin")
	}
	f.s.roles[clubID][userID] = model.RoleAdmin
	return nil
}

func (f fakeMemberships) ListMembers(ctx context.Context, clubID int64) ([]model.Member, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	return f.s.membersLocked(clubID), nil
}

func (f fakeMemberships) ListForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	out := []model.Membership{}
	for _, id := range f.s.clubOrder {
		if role, ok := f.s.roles[id][userID]; ok {
			out = append(out, model.Membership{ClubID: id, ClubName: f.s.clubs[id].Name, Role: role})
		}
	}
	return out, nil
}

// membersLocked builds a roster in join order. Callers hold s.mu.
func (s *fakeStore) membersLocked(clubID int64) []model.Member {
	out := []model.Member{}
	for _, uid := range s.joinOrder[clubID] {
		m := model.Member{UserID: uid, Role: s.roles[clubID][uid]}
		if u, ok := s.users[uid]; ok {
			m.InstitutionID = u.InstitutionID
			m.Name = u.Name
		}
		out = append(out, m)
	}
	return out
}

// ---- events ----

func (f fakeEvents) Create(ctx context.Context, event *model.Event) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return f.s.failWith
	}
	c, ok := f.s.clubs[event.ClubID]
	if !ok {
		return apperror.NotFound("club", strconv.FormatInt(event.ClubID, 10))
	}
	f.s.nextEvent++
	event.ID = f.s.nextEvent
	event.ClubName = c.Name
	event.CreatedAt = time.Now().UTC()
	copied := *event
	f.s.events[event.ID] = &copied
	return nil
}

func (f fakeEvents) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	e, ok := f.s.events[id]
	if !ok {
		return nil, apperror.NotFound("event", strconv.FormatInt(id, 10))
	}
	copied := *e
	return &copied, nil
}

func (f fakeEvents) ListForMember(ctx context.Context, userID string) ([]model.Event, error) {
	return f.SearchForMember(ctx, userID, "")
}

func (f fakeEvents) SearchForMember(ctx context.Context, userID, query string) ([]model.Event, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failWith != nil {
		return nil, f.s.failWith
	}
	q := strings.ToLower(query)
	out := []model.Event{}
	for id := int64(1); id <= f.s.nextEvent; id++ {
		e, ok := f.s.events[id]
		if !ok {
			continue
		}
		if _, member := f.s.roles[e.ClubID][userID]; !member {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) &&
			!strings.Contains(strings.ToLower(e.Location), q) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// ---- wiring ----

// testServices bundles every service over one shared fake store.
type testServices struct {
	store       *fakeStore
	tokens      *auth.TokenService
	auth        *AuthService
	memberships *MembershipService
	clubs       *ClubService
	events      *EventService
	recommend   *RecommendationService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	store := newFakeStore()
	users := fakeUsers{store}
	clubs := fakeClubs{store}
	memberships := fakeMemberships{store}
	events := fakeEvents{store}

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is the bcrypt minimum, so hashing stays fast
	passwords := auth.NewPasswordServiceForTest(4)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	guard := authz.NewGuard(tokens, clubs, memberships)
	membershipSvc := NewMembershipService(memberships, guard, logger)

	return &testServices{
		store:       store,
		tokens:      tokens,
		auth:        NewAuthService(users, memberships, tokens, passwords, logger),
		memberships: membershipSvc,
		clubs:       NewClubService(clubs, membershipSvc, guard, logger),
		events:      NewEventService(events, guard, logger),
		recommend:   NewRecommendationService(users, clubs, logger),
	}
}

// mustRegister creates an account and returns its user ID.
func (ts *testServices) mustRegister(t *testing.T, institutionID string) string {
	t.Helper()
	u, err := ts.auth.Register(context.Background(), RegisterInput{
		InstitutionID: institutionID,
		Password:      "password123",
		Name:          "Student " + institutionID,
	})
	if err != nil {
		t.Fatalf("Register(%q): %v", institutionID, err)
	}
	return u.ID
}

// mustCreateClub creates a club founded by founderID and returns its ID.
func (ts *testServices) mustCreateClub(t *testing.T, founderID, name, categories string) int64 {
	t.Helper()
	c, err := ts.clubs.Create(context.Background(), founderID, ClubInput{Name: name, Categories: categories})
	if err != nil {
		t.Fatalf("Create club %q: %v", name, err)
	}
	return c.ID
}
