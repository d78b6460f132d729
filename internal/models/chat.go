package models

import "time"

type ChatSession struct {
	OwnerID     string    `json:"ownerId"`
	ClientID    string    `json:"clientId"`
	AvatarID    string    `json:"avatarId"`
	ClientName  string    `json:"clientName"`
	AvatarName  string    `json:"avatarName"`
	TherapistID string    `json:"therapistId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AccessGrant is written when a user redeems an invitation. It is what entitles that user
// to the (client, avatar) conversation; chat sessions are only a directory over grants.
type AccessGrant struct {
	OwnerID     string    `json:"ownerId"`
	ClientID    string    `json:"clientId"`
	AvatarID    string    `json:"avatarId"`
	ClientName  string    `json:"clientName"`
	AvatarName  string    `json:"avatarName"`
	TherapistID string    `json:"therapistId"`
	InviteCode  string    `json:"inviteCode"`
	GrantedAt   time.Time `json:"grantedAt"`
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Message is one transcript turn. CreatedAt is unix milliseconds and orders the transcript.
type Message struct {
	ClientID  string `json:"clientId"`
	AvatarID  string `json:"avatarId"`
	SortKey   string `json:"sortKey"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	AuthorID  string `json:"authorId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

type ExportStatus string

const (
	ExportStatusQueued ExportStatus = "QUEUED"
	ExportStatusReady  ExportStatus = "READY"
	ExportStatusFailed ExportStatus = "FAILED"
)

// Export is an asynchronous transcript export written to object storage by the worker.
type Export struct {
	OwnerID   string       `json:"ownerId"`
	ExportID  string       `json:"exportId"`
	UserID    string       `json:"userId,omitempty"`
	ClientID  string       `json:"clientId"`
	AvatarID  string       `json:"avatarId"`
	Status    ExportStatus `json:"status"`
	Bucket    string       `json:"bucket,omitempty"`
	ObjectKey string       `json:"objectKey,omitempty"`
	Messages  int          `json:"messages"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
}
