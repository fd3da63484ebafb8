// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// ID is our own xid string and is what tokens carry in "sub".
// InstitutionID is the campus-issued identifier the user logs in with; the
// users table holds a UNIQUE constraint on it.
//
// PasswordHash is a bcrypt string and is never serialised (json:"-").
type User struct {
	ID            string    `json:"id"            db:"id"`
	InstitutionID string    `json:"institutionId" db:"institution_id"`
	PasswordHash  string    `json:"-"             db:"password_hash"`
	Name          string    `json:"name"          db:"name"`
	Grade         string    `json:"grade"         db:"grade"`
	Major         string    `json:"major"         db:"major"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// Profile is what GET /accounts/me returns: the user plus the clubs they
// belong to and their declared interest categories.
type Profile struct {
	User
	Memberships []Membership `json:"memberships"`
	Interests   []string     `json:"interests"`
}
