package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

var _ repository.MembershipRepository = (*MembershipDB)(nil)

// MembershipDB is the ledger of (club, user) → role.
type MembershipDB struct {
	db *DB
}

// Add inserts a membership row. There is no existence pre-check: the
// UNIQUE(club_id, user_id) constraint decides, which also settles racing
// joins.
func (m *MembershipDB) Add(ctx context.Context, clubID int64, userID string, role model.Role) error {
	return insertMembership(ctx, m.db.conn, clubID, userID, role, time.Now().UTC())
}

func insertMembership(ctx context.Context, q queryer, clubID int64, userID string, role model.Role, at time.Time) error {
	if !role.Valid() {
		return fmt.Errorf("sqlite: invalid role %q", role)
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO memberships (club_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		clubID, userID, string(role), at,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return apperror.Conflict("already a member of this club")
	case isForeignKeyViolation(err):
		return apperror.NotFound("club or user", fmt.Sprintf("%d/%s", clubID, userID))
	default:
		return fmt.Errorf("sqlite: inserting membership (club=%d user=%s): %w", clubID, userID, err)
	}
}

// GetRole returns the user's role in the club or apperror.ErrNotFound.
func (m *MembershipDB) GetRole(ctx context.Context, clubID int64, userID string) (model.Role, error) {
	var role model.Role
	err := m.db.conn.QueryRowContext(ctx,
		`SELECT role FROM memberships WHERE club_id = ? AND user_id = ?`,
		clubID, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("membership", fmt.Sprintf("%d/%s", clubID, userID))
		}
		return "", fmt.Errorf("sqlite: getting role (club=%d user=%s): %w", clubID, userID, err)
	}
	return role, nil
}

// Promote flips a Member to Admin with a conditional UPDATE. The WHERE
// clause is the optimistic check: only a row still at Member changes, so two
// racing promotions produce one success and one Conflict, and an Admin is
// never rewritten.
func (m *MembershipDB) Promote(ctx context.Context, clubID int64, userID string) error {
	res, err := m.db.conn.ExecContext(ctx,
		`UPDATE memberships SET role = ? WHERE club_id = ? AND user_id = ? AND role = ?`,
		string(model.RoleAdmin), clubID, userID, string(model.RoleMember),
	)
	if err != nil {
		return fmt.Errorf("sqlite: promoting (club=%d user=%s): %w", clubID, userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking promotion (club=%d user=%s): %w", clubID, userID, err)
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: either there is no such member or they are already Admin.
	role, err := m.GetRole(ctx, clubID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &apperror.AppError{Err: apperror.ErrNotFound, Message: "member not found in the club"}
		}
		return err
	}
	if role == model.RoleAdmin {
		return apperror.Conflict("member is already an admin")
	}
	return fmt.Errorf("sqlite: promotion of user %s in club %d had no effect (role %q)", userID, clubID, role)
}

// ListMembers returns the club's roster in join order.
func (m *MembershipDB) ListMembers(ctx context.Context, clubID int64) ([]model.Member, error) {
	return listMembers(ctx, m.db.conn, clubID)
}

func listMembers(ctx context.Context, q queryer, clubID int64) ([]model.Member, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT u.id, u.institution_id, u.name, m.role, m.joined_at
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.club_id = ?
		 ORDER BY m.id`,
		clubID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of club %s: %w", strconv.FormatInt(clubID, 10), err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var mem model.Member
		if err := rows.Scan(&mem.UserID, &mem.InstitutionID, &mem.Name, &mem.Role, &mem.JoinedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning member: %w", err)
		}
		members = append(members, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating members: %w", err)
	}
	return members, nil
}

// ListForUser returns every club the user belongs to with their role there.
func (m *MembershipDB) ListForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	rows, err := m.db.conn.QueryContext(ctx,
		`SELECT m.club_id, c.name, m.role
		 FROM memberships m
		 JOIN clubs c ON c.id = m.club_id
		 WHERE m.user_id = ?
		 ORDER BY m.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing memberships of user %s: %w", userID, err)
	}
	defer rows.Close()

	memberships := []model.Membership{}
	for rows.Next() {
		var ms model.Membership
		if err := rows.Scan(&ms.ClubID, &ms.ClubName, &ms.Role); err != nil {
			return nil, fmt.Errorf("sqlite: scanning membership: %w", err)
		}
		memberships = append(memberships, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating memberships: %w", err)
	}
	return memberships, nil
}
