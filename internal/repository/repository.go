// Package repository declares the persistence contracts the service layer
// depends on. The only implementation lives in repository/sqlite; services
// and their tests see nothing but these interfaces.
//
// ERROR CONTRACT:
// Implementations return apperror values for outcomes the caller branches on:
//   - apperror.ErrNotFound  when the addressed row does not exist
//   - apperror.ErrConflict  when a uniqueness rule would be broken
//
// Everything else is an opaque wrapped driver error.
package repository

import (
	"context"

	"github.com/sakif/campus-clubs/internal/model"
)

// ListOptions pages a listing. A zero Limit means "no limit".
type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	// Create inserts the user, assigning ID and timestamps. A duplicate
	// InstitutionID yields apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByInstitutionID(ctx context.Context, institutionID string) (*model.User, error)
	// UpdateProfile rewrites name/grade/major and replaces the whole
	// interest set atomically.
	UpdateProfile(ctx context.Context, user *model.User, interests []string) error
	ListInterests(ctx context.Context, userID string) ([]string, error)
}

type ClubRepository interface {
	// CreateWithFounder inserts the club and an Admin membership for the
	// founder in one transaction.
	CreateWithFounder(ctx context.Context, club *model.Club, founderID string) error
	GetByID(ctx context.Context, id int64) (*model.Club, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]model.Club, error)
	// Search matches the substring against name, description or categories.
	Search(ctx context.Context, query string) ([]model.Club, error)
	// ListByCategories returns clubs whose categories string equals one of
	// the given values exactly.
	ListByCategories(ctx context.Context, categories []string) ([]model.Club, error)
}

type MembershipRepository interface {
	// Add inserts a membership. An existing row for the pair yields
	// apperror.ErrConflict; an unknown club or user yields apperror.ErrNotFound.
	Add(ctx context.Context, clubID int64, userID string, role model.Role) error
	// GetRole returns apperror.ErrNotFound when the user is not in the club.
	GetRole(ctx context.Context, clubID int64, userID string) (model.Role, error)
	// Promote flips a Member to Admin. No row → ErrNotFound,
	// already Admin → ErrConflict.
	Promote(ctx context.Context, clubID int64, userID string) error
	ListMembers(ctx context.Context, clubID int64) ([]model.Member, error)
	ListForUser(ctx context.Context, userID string) ([]model.Membership, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	// ListForMember returns events of every club the user belongs to.
	ListForMember(ctx context.Context, userID string) ([]model.Event, error)
	// SearchForMember narrows ListForMember by a substring over
	// title, description or location.
	SearchForMember(ctx context.Context, userID, query string) ([]model.Event, error)
}
