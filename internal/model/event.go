package model

import "time"

// Event is a scheduled happening owned by exactly one club. Events are
// immutable once created.
type Event struct {
	ID          int64     `json:"id"          db:"id"`
	ClubID      int64     `json:"clubId"      db:"club_id"`
	ClubName    string    `json:"clubName"    db:"club_name"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	Location    string    `json:"location"    db:"location"`
	StartsAt    time.Time `json:"dateTime"    db:"starts_at"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}
