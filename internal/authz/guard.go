// Package authz is the single place that decides who may act on a club.
//
// Every scoped operation in the service layer composes these checks instead
// of looking at memberships itself:
//
//	RequireAuthenticated(token)          → user ID, or Unauthenticated
//	RequireMember(ctx, clubID, userID)   → nil, NotFound or Forbidden
//	RequireAdmin(ctx, clubID, userID)    → nil, NotFound or Forbidden
//
// Decide exposes the full Decision for callers that need to tell
// "not a member at all" apart from "member but not admin".
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/model"
)

// TokenValidator turns a bearer token into the user ID it was issued for.
// *auth.TokenService satisfies it.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// ClubLookup reports whether a club exists.
type ClubLookup interface {
	Exists(ctx context.Context, clubID int64) (bool, error)
}

// RoleLookup returns the user's role in a club, or an error wrapping
// apperror.ErrNotFound when they have none.
type RoleLookup interface {
	GetRole(ctx context.Context, clubID int64, userID string) (model.Role, error)
}

// Outcome is the kind of a Decision.
type Outcome int

const (
	Allowed Outcome = iota
	NotFound
	NotMember
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case NotFound:
		return "not_found"
	case NotMember:
		return "not_member"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the result of checking one user against one club.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// IsAllowed reports whether the action may proceed.
func (d Decision) IsAllowed() bool {
	return d.Outcome == Allowed
}

// Err converts the decision into the matching apperror, or nil when allowed.
func (d Decision) Err() error {
	switch d.Outcome {
	case Allowed:
		return nil
	case NotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: d.Reason}
	case NotMember:
		return apperror.NotMember(d.Reason)
	default:
		return apperror.Forbidden(d.Reason)
	}
}

const (
	reasonNotMember = "you are not a member of this club"
	reasonNotAdmin  = "only club admins can do this"
)

// Guard holds the lookups the policy needs. It keeps no state of its own.
type Guard struct {
	tokens TokenValidator
	clubs  ClubLookup
	roles  RoleLookup
}

func NewGuard(tokens TokenValidator, clubs ClubLookup, roles RoleLookup) *Guard {
	return &Guard{tokens: tokens, clubs: clubs, roles: roles}
}

// RequireAuthenticated validates the token and returns its subject.
// Every failure looks the same to the caller.
func (g *Guard) RequireAuthenticated(token string) (string, error) {
	userID, err := g.tokens.Validate(token)
	if err != nil || userID == "" {
		return "", apperror.Unauthenticated("valid authentication required")
	}
	return userID, nil
}

// Decide checks, in order, that the club exists, that the user belongs to it,
// and that their role satisfies need. Lookup failures are returned as errors,
// never folded into a Decision.
func (g *Guard) Decide(ctx context.Context, clubID int64, userID string, need model.Role) (Decision, error) {
	exists, err := g.clubs.Exists(ctx, clubID)
	if err != nil {
		return Decision{}, fmt.Errorf("authz: checking club %d: %w", clubID, err)
	}
	if !exists {
		return Decision{Outcome: NotFound, Reason: fmt.Sprintf("club not found with id %d", clubID)}, nil
	}

	role, err := g.roles.GetRole(ctx, clubID, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return Decision{Outcome: NotMember, Reason: reasonNotMember}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("authz: loading role (club=%d user=%s): %w", clubID, userID, err)
	}

	if !role.Satisfies(need) {
		return Decision{Outcome: Forbidden, Reason: reasonNotAdmin}, nil
	}
	return Decision{Outcome: Allowed}, nil
}

// RequireMember passes for any role in the club.
func (g *Guard) RequireMember(ctx context.Context, clubID int64, userID string) error {
	return g.require(ctx, clubID, userID, model.RoleMember)
}

// RequireAdmin passes only for Admins of the club.
func (g *Guard) RequireAdmin(ctx context.Context, clubID int64, userID string) error {
	return g.require(ctx, clubID, userID, model.RoleAdmin)
}

// require reports NotMember as Forbidden: outside event creation the caller
// only needs to know they were refused.
func (g *Guard) require(ctx context.Context, clubID int64, userID string, need model.Role) error {
	d, err := g.Decide(ctx, clubID, userID, need)
	if err != nil {
		return err
	}
	if d.Outcome == NotMember {
		d.Outcome = Forbidden
	}
	return d.Err()
}
