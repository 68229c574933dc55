package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"postpilot/internal/entity"
	"postpilot/internal/repository/postgresql"
)

// ValidationError rejects a malformed scheduling request before any job is
// created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// JobWriter is the intake's port onto job persistence
// (implementation: postgresql.JobRepository).
type JobWriter interface {
	Create(ctx context.Context, job *entity.PostJob) (*entity.PostJob, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*entity.PostJob, error)
}

// RunNotifier nudges the processing trigger when a request schedules in the
// past or right now. Best effort: a lost nudge only delays the job until the
// next regular trigger.
type RunNotifier interface {
	NotifyRunDue(ctx context.Context) error
}

type IntakeService struct {
	jobs        JobWriter
	notifier    RunNotifier
	maxAttempts int
}

func NewIntakeService(jobs JobWriter, notifier RunNotifier, maxAttempts int) *IntakeService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &IntakeService{jobs: jobs, notifier: notifier, maxAttempts: maxAttempts}
}

type ScheduleRequest struct {
	UserID         uuid.UUID
	PostID         *uuid.UUID
	Content        string
	Platforms      []string
	ScheduleDate   string
	MediaURLs      []string
	Options        json.RawMessage
	IdempotencyKey string
}

// ScheduledJob is one created (or replayed) job reference.
type ScheduledJob struct {
	ID       uuid.UUID        `json:"id"`
	Platform entity.Platform  `json:"platform"`
	Status   entity.JobStatus `json:"status"`
	Reused   bool             `json:"reused"`
}

// Schedule creates one pending job per requested platform. Replaying the same
// request returns the already-created jobs instead of duplicating them.
func (s *IntakeService) Schedule(ctx context.Context, req ScheduleRequest) ([]ScheduledJob, error) {
	runAt, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	results := make([]ScheduledJob, 0, len(req.Platforms))
	for _, raw := range req.Platforms {
		p := entity.Platform(raw)
		key := idempotencyKey(req, p, runAt)

		job, err := s.jobs.Create(ctx, &entity.PostJob{
			UserID:         req.UserID,
			PostID:         req.PostID,
			Platform:       p,
			RunAt:          runAt,
			MaxAttempts:    s.maxAttempts,
			IdempotencyKey: key,
			Content:        req.Content,
			MediaURLs:      req.MediaURLs,
			Payload:        req.Options,
		})
		if err != nil {
			if errors.Is(err, postgresql.ErrDuplicateKey) {
				existing, findErr := s.jobs.FindByIdempotencyKey(ctx, req.UserID, key)
				if findErr != nil {
					return nil, findErr
				}
				results = append(results, ScheduledJob{
					ID:       existing.ID,
					Platform: existing.Platform,
					Status:   existing.Status,
					Reused:   true,
				})
				continue
			}
			return nil, err
		}
		results = append(results, ScheduledJob{ID: job.ID, Platform: job.Platform, Status: job.Status})
	}

	if !runAt.After(time.Now()) && s.notifier != nil {
		if err := s.notifier.NotifyRunDue(ctx); err != nil {
			log.Printf("[intake] run-now notify error=%v", err)
		}
	}
	return results, nil
}

func (s *IntakeService) validate(req ScheduleRequest) (time.Time, error) {
	if req.Content == "" {
		return time.Time{}, &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(req.Platforms) == 0 {
		return time.Time{}, &ValidationError{Field: "platforms", Reason: "at least one platform required"}
	}
	for _, raw := range req.Platforms {
		if !entity.Platform(raw).Valid() {
			return time.Time{}, &ValidationError{Field: "platforms", Reason: "unknown platform: " + raw}
		}
	}
	runAt, err := time.Parse(time.RFC3339, req.ScheduleDate)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "scheduleDate", Reason: "must be RFC3339"}
	}
	return runAt, nil
}

// idempotencyKey makes the per-platform unique key. Caller-supplied keys are
// suffixed with the platform so one request fans out to distinct jobs;
// otherwise the key is derived from the logical content of the request.
func idempotencyKey(req ScheduleRequest, p entity.Platform, runAt time.Time) string {
	if req.IdempotencyKey != "" {
		return fmt.Sprintf("%s:%s", req.IdempotencyKey, p)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", req.UserID, p, req.Content, runAt.Unix())
	return hex.EncodeToString(h.Sum(nil))
}
