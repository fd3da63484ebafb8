package model

import "time"

// Role is a user's standing inside one club. Admin is a strict superset of
// Member.
type Role string

const (
	RoleMember Role = "Member"
	RoleAdmin  Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// Satisfies reports whether a holder of r may act where need is required.
func (r Role) Satisfies(need Role) bool {
	switch need {
	case RoleMember:
		return r == RoleMember || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

// Club is a student club with its member list attached.
//
// Categories is the raw comma-joined tag string. Recommendations compare it
// whole against a user's interests, so it is stored as entered.
type Club struct {
	ID          int64     `json:"id"          db:"id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	Categories  string    `json:"categories"  db:"categories"`
	Members     []Member  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// Member is one row of a club's roster.
type Member struct {
	UserID        string    `json:"userId"        db:"user_id"`
	InstitutionID string    `json:"institutionId" db:"institution_id"`
	Name          string    `json:"name"          db:"name"`
	Role          Role      `json:"role"          db:"role"`
	JoinedAt      time.Time `json:"joinedAt"      db:"joined_at"`
}

// Membership is a user's view of one club they belong to.
type Membership struct {
	ClubID   int64  `json:"clubId"   db:"club_id"`
	ClubName string `json:"clubName" db:"club_name"`
	Role     Role   `json:"role"     db:"role"`
}
