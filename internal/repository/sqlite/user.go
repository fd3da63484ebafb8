package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts and their interest categories.
type UserDB struct {
	db *DB
}

const userColumns = `id, institution_id, password_hash, name, grade, major, created_at, updated_at`

// Create inserts a new user. The UNIQUE constraint on institution_id is the
// duplicate check, so two concurrent registrations cannot both succeed.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.InstitutionID,
		user.PasswordHash,
		user.Name,
		user.Grade,
		user.Major,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("institution ID already exists")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := u.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByInstitutionID looks a user up by their login handle.
func (u *UserDB) GetByInstitutionID(ctx context.Context, institutionID string) (*model.User, error) {
	row := u.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE institution_id = ?`, institutionID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", institutionID)
		}
		return nil, fmt.Errorf("sqlite: getting user by institution id: %w", err)
	}
	return user, nil
}

// UpdateProfile rewrites the editable profile fields and replaces the
// interest set (delete all, insert new) in one transaction.
func (u *UserDB) UpdateProfile(ctx context.Context, user *model.User, interests []string) error {
	user.UpdatedAt = time.Now().UTC()

	return u.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET name = ?, grade = ?, major = ?, updated_at = ? WHERE id = ?`,
			user.Name, user.Grade, user.Major, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("sqlite: checking update of user %s: %w", user.ID, err)
		} else if n == 0 {
			return apperror.NotFound("user", user.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_interests WHERE user_id = ?`, user.ID); err != nil {
			return fmt.Errorf("sqlite: clearing interests of user %s: %w", user.ID, err)
		}

		for _, category := range interests {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_interests (user_id, category) VALUES (?, ?)`,
				user.ID, category,
			); err != nil {
				return fmt.Errorf("sqlite: inserting interest for user %s: %w", user.ID, err)
			}
		}
		return nil
	})
}

// ListInterests returns the user's interest categories in insertion order.
func (u *UserDB) ListInterests(ctx context.Context, userID string) ([]string, error) {
	rows, err := u.db.conn.QueryContext(ctx,
		`SELECT category FROM user_interests WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing interests of user %s: %w", userID, err)
	}
	defer rows.Close()

	interests := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite: scanning interest: %w", err)
		}
		interests = append(interests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating interests: %w", err)
	}
	return interests, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.InstitutionID,
		&user.PasswordHash,
		&user.Name,
		&user.Grade,
		&user.Major,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
