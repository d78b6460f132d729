package models

import "time"

type Role string

const (
	RoleTherapist Role = "THERAPIST"
	RoleClient    Role = "CLIENT"
)

// RoleFromHint maps a first-login role hint to a role. Anything but THERAPIST is a client.
func RoleFromHint(hint string) Role {
	if Role(hint) == RoleTherapist {
		return RoleTherapist
	}
	return RoleClient
}

type UserProfile struct {
	SubjectID string     `json:"subjectId"`
	Role      Role       `json:"role"`
	Nickname  string     `json:"nickname"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
