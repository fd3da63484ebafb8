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

var _ repository.ClubRepository = (*ClubDB)(nil)

// ClubDB stores clubs. Every club it returns has its member roster attached.
type ClubDB struct {
	db *DB
}

const clubColumns = `id, name, description, categories, created_at`

// CreateWithFounder inserts the club and the founder's Admin membership in a
// single transaction. If the membership insert fails the club row is rolled
// back too, so a club never exists without an admin.
func (c *ClubDB) CreateWithFounder(ctx context.Context, club *model.Club, founderID string) error {
	now := time.Now().UTC()

	err := c.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO clubs (name, description, categories, created_at) VALUES (?, ?, ?, ?)`,
			club.Name, club.Description, club.Categories, now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting club: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading new club id: %w", err)
		}

		if err := insertMembership(ctx, tx, id, founderID, model.RoleAdmin, now); err != nil {
			return err
		}

		club.ID = id
		club.CreatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	members, err := listMembers(ctx, c.db.conn, club.ID)
	if err != nil {
		return err
	}
	club.Members = members
	return nil
}

// GetByID returns the club with its members, or apperror.ErrNotFound.
func (c *ClubDB) GetByID(ctx context.Context, id int64) (*model.Club, error) {
	var club model.Club
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT `+clubColumns+` FROM clubs WHERE id = ?`, id,
	).Scan(&club.ID, &club.Name, &club.Description, &club.Categories, &club.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("club", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting club %d: %w", id, err)
	}

	members, err := listMembers(ctx, c.db.conn, club.ID)
	if err != nil {
		return nil, err
	}
	club.Members = members
	return &club, nil
}

// Exists reports whether a club with the given id is stored.
func (c *ClubDB) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := c.db.conn.QueryRowContext(ctx, `SELECT 1 FROM clubs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking club %d: %w", id, err)
	}
	return true, nil
}

// List returns clubs ordered by id. opts.Limit == 0 returns all of them.
func (c *ClubDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs ORDER BY id`
	var args []any
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}
	return c.queryClubs(ctx, query, args...)
}

// Search matches the query as a case-insensitive literal substring of the
// name, description or categories.
func (c *ClubDB) Search(ctx context.Context, query string) ([]model.Club, error) {
	p := likePattern(query)
	return c.queryClubs(ctx,
		`SELECT `+clubColumns+` FROM clubs
		 WHERE name LIKE ? ESCAPE '\'
		    OR description LIKE ? ESCAPE '\'
		    OR categories LIKE ? ESCAPE '\'
		 ORDER BY id`,
		p, p, p,
	)
}

// ListByCategories returns clubs whose categories string is exactly one of
// the given values.
func (c *ClubDB) ListByCategories(ctx context.Context, categories []string) ([]model.Club, error) {
	if len(categories) == 0 {
		return []model.Club{}, nil
	}
	args := make([]any, len(categories))
	for i, cat := range categories {
		args[i] = cat
	}
	return c.queryClubs(ctx,
		`SELECT `+clubColumns+` FROM clubs WHERE categories IN (`+placeholders(len(args))+`) ORDER BY id`,
		args...,
	)
}

// queryClubs runs a club SELECT, closes the rows, then attaches rosters.
func (c *ClubDB) queryClubs(ctx context.Context, query string, args ...any) ([]model.Club, error) {
	clubs, err := scanClubs(ctx, c.db.conn, query, args...)
	if err != nil {
		return nil, err
	}
	if err := attachMembers(ctx, c.db.conn, clubs); err != nil {
		return nil, err
	}
	return clubs, nil
}

func scanClubs(ctx context.Context, q queryer, query string, args ...any) ([]model.Club, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing clubs: %w", err)
	}
	defer rows.Close()

	clubs := []model.Club{}
	for rows.Next() {
		var club model.Club
		if err := rows.Scan(&club.ID, &club.Name, &club.Description, &club.Categories, &club.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning club: %w", err)
		}
		clubs = append(clubs, club)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating clubs: %w", err)
	}
	return clubs, nil
}

// memberBatchSize bounds the IN (...) list per roster query, well under
// SQLite's host parameter limit.
var memberBatchSize = 500

// attachMembers loads the rosters for the given clubs, one query per batch
// of memberBatchSize clubs.
func attachMembers(ctx context.Context, q queryer, clubs []model.Club) error {
	if len(clubs) == 0 {
		return nil
	}

	index := make(map[int64]int, len(clubs))
	for i := range clubs {
		index[clubs[i].ID] = i
		clubs[i].Members = []model.Member{}
	}

	for start := 0; start < len(clubs); start += memberBatchSize {
		end := min(start+memberBatchSize, len(clubs))
		if err := attachMemberBatch(ctx, q, clubs, index, clubs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func attachMemberBatch(ctx context.Context, q queryer, clubs []model.Club, index map[int64]int, batch []model.Club) error {
	args := make([]any, len(batch))
	for i := range batch {
		args[i] = batch[i].ID
	}

	rows, err := q.QueryContext(ctx,
		`SELECT m.club_id, u.id, u.institution_id, u.name, m.role, m.joined_at
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.club_id IN (`+placeholders(len(args))+`)
		 ORDER BY m.id`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading club members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var clubID int64
		var m model.Member
		if err := rows.Scan(&clubID, &m.UserID, &m.InstitutionID, &m.Name, &m.Role, &m.JoinedAt); err != nil {
			return fmt.Errorf("sqlite: scanning club member: %w", err)
		}
		if i, ok := index[clubID]; ok {
			clubs[i].Members = append(clubs[i].Members, m)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating club members: %w", err)
	}
	return nil
}
