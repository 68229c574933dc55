package entity

import (
	"time"

	"github.com/google/uuid"
)

type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
)

// Post is the parent entity a job may point back to. The scheduler core only
// mirrors outcome status onto it; the post lifecycle is owned elsewhere.
type Post struct {
	ID       uuid.UUID  `json:"id"`
	UserID   uuid.UUID  `json:"user_id"`
	Status   PostStatus `json:"status"`
	PostedAt *time.Time `json:"posted_at,omitempty"`
}

// Integration is a user's connection to one platform. Read-only for the
// scheduler: it is created and refreshed by the integrations subsystem, and
// credentials arrive already decrypted.
type Integration struct {
	UserID      uuid.UUID `json:"user_id"`
	Platform    Platform  `json:"platform"`
	Connected   bool      `json:"connected"`
	Credentials []byte    `json:"-"`
}
