package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/authz"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

// MembershipService is the ledger of who belongs to which club and in what
// role. Roles only ever move Member → Admin.
type MembershipService struct {
	memberships repository.MembershipRepository
	guard       *authz.Guard
	logger      *slog.Logger
}

func NewMembershipService(memberships repository.MembershipRepository, guard *authz.Guard, logger *slog.Logger) *MembershipService {
	return &MembershipService{memberships: memberships, guard: guard, logger: logger}
}

// IsMember reports whether the user holds any role in the club.
func (s *MembershipService) IsMember(ctx context.Context, clubID int64, userID string) (bool, error) {
	return s.hasRole(ctx, clubID, userID, model.RoleMember)
}

// IsAdmin reports whether the user is an Admin of the club.
func (s *MembershipService) IsAdmin(ctx context.Context, clubID int64, userID string) (bool, error) {
	return s.hasRole(ctx, clubID, userID, model.RoleAdmin)
}

func (s *MembershipService) hasRole(ctx context.Context, clubID int64, userID string, need model.Role) (bool, error) {
	role, err := s.memberships.GetRole(ctx, clubID, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("service/membership: %w", err)
	}
	return role.Satisfies(need), nil
}

// Add records a membership. A second row for the same pair is a Conflict.
func (s *MembershipService) Add(ctx context.Context, clubID int64, userID string, role model.Role) error {
	if err := s.memberships.Add(ctx, clubID, userID, role); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("service/membership: adding %s to club %d: %w", userID, clubID, err)
	}

	s.logger.Info("membership added",
		slog.Int64("clubID", clubID),
		slog.String("userID", userID),
		slog.String("role", string(role)),
	)
	return nil
}

// Promote makes target an Admin of the club. The requester must already be
// an Admin; that is checked before the target's row is touched.
func (s *MembershipService) Promote(ctx context.Context, clubID int64, targetID, requesterID string) error {
	if err := s.guard.RequireAdmin(ctx, clubID, requesterID); err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			return apperror.Forbidden("only admins can promote members")
		}
		return err
	}

	if err := s.memberships.Promote(ctx, clubID, targetID); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("service/membership: promoting %s in club %d: %w", targetID, clubID, err)
	}

	s.logger.Info("member promoted",
		slog.Int64("clubID", clubID),
		slog.String("userID", targetID),
		slog.String("by", requesterID),
	)
	return nil
}

// Members returns the roster. Callers are responsible for authorization.
func (s *MembershipService) Members(ctx context.Context, clubID int64) ([]model.Member, error) {
	members, err := s.memberships.ListMembers(ctx, clubID)
	if err != nil {
		return nil, fmt.Errorf("service/membership: listing club %d: %w", clubID, err)
	}
	return nonNil(members), nil
}
