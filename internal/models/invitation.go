package models

import "time"

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
)

type Invitation struct {
	OwnerID    string       `json:"ownerId"`
	InviteCode string       `json:"inviteCode"`
	ClientID   string       `json:"clientId"`
	ClientName string       `json:"clientName"`
	AvatarID   string       `json:"avatarId"`
	AvatarName string       `json:"avatarName"`
	Status     InviteStatus `json:"status"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	CreatedAt  time.Time    `json:"createdAt"`
	AcceptedAt *time.Time   `json:"acceptedAt,omitempty"`
	AcceptedBy string       `json:"acceptedBy,omitempty"`
}

// Expired reports whether the code can no longer be redeemed at now.
// A code is still valid at the exact instant it expires.
func (i Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}
