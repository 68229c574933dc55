package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether s is absorbing: no further transition is ever
// written once a job reaches it.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// PostJob is one scheduled attempt to publish content to one platform.
// attempts is incremented by the claim itself, so attempts <= maxAttempts
// holds at every observable point.
type PostJob struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	PostID         *uuid.UUID      `json:"post_id,omitempty"`
	Platform       Platform        `json:"platform"`
	RunAt          time.Time       `json:"run_at"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	Status         JobStatus       `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	IdempotencyKey string          `json:"idempotency_key"`
	Content        string          `json:"content"`
	MediaURLs      []string        `json:"media_urls,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
