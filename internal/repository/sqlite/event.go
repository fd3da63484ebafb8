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

var _ repository.EventRepository = (*EventDB)(nil)

// EventDB stores club events. Reads join clubs so every event carries its
// club's name.
type EventDB struct {
	db *DB
}

const eventSelect = `
	SELECT e.id, e.club_id, c.name, e.title, e.description, e.location, e.starts_at, e.created_at
	FROM events e
	JOIN clubs c ON c.id = e.club_id`

// Create inserts the event and fills in ID, ClubName and CreatedAt.
func (e *EventDB) Create(ctx context.Context, event *model.Event) error {
	event.CreatedAt = time.Now().UTC()
	event.StartsAt = event.StartsAt.UTC()

	res, err := e.db.conn.ExecContext(ctx,
		`INSERT INTO events (club_id, title, description, location, starts_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ClubID,
		event.Title,
		event.Description,
		event.Location,
		event.StartsAt,
		event.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("club", strconv.FormatInt(event.ClubID, 10))
		}
		return fmt.Errorf("sqlite: inserting event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new event id: %w", err)
	}
	event.ID = id

	if err := e.db.conn.QueryRowContext(ctx,
		`SELECT name FROM clubs WHERE id = ?`, event.ClubID,
	).Scan(&event.ClubName); err != nil {
		return fmt.Errorf("sqlite: reading club name for event %d: %w", id, err)
	}
	return nil
}

// GetByID returns the event or apperror.ErrNotFound.
func (e *EventDB) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	var ev model.Event
	err := e.db.conn.QueryRowContext(ctx, eventSelect+` WHERE e.id = ?`, id).Scan(
		&ev.ID, &ev.ClubID, &ev.ClubName, &ev.Title, &ev.Description, &ev.Location, &ev.StartsAt, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("event", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting event %d: %w", id, err)
	}
	return &ev, nil
}

// ListForMember returns events of every club the user belongs to, any role,
// soonest first.
func (e *EventDB) ListForMember(ctx context.Context, userID string) ([]model.Event, error) {
	return e.queryEvents(ctx,
		eventSelect+`
		JOIN memberships m ON m.club_id = e.club_id AND m.user_id = ?
		ORDER BY e.starts_at, e.id`,
		userID,
	)
}

// SearchForMember narrows ListForMember to events whose title, description
// or location contains the query.
func (e *EventDB) SearchForMember(ctx context.Context, userID, query string) ([]model.Event, error) {
	p := likePattern(query)
	return e.queryEvents(ctx,
		eventSelect+`
		JOIN memberships m ON m.club_id = e.club_id AND m.user_id = ?
		WHERE e.title LIKE ? ESCAPE '\'
		   OR e.description LIKE ? ESCAPE '\'
		   OR e.location LIKE ? ESCAPE '\'
		ORDER BY e.starts_at, e.id`,
		userID, p, p, p,
	)
}

func (e *EventDB) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := e.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(
			&ev.ID, &ev.ClubID, &ev.ClubName, &ev.Title, &ev.Description, &ev.Location, &ev.StartsAt, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}
	return events, nil
}
