package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postpilot/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNotClaimed means the job was no longer pending when the claim ran:
	// another cycle took it, or it already reached a terminal state. Callers
	// skip the job, they do not surface this.
	ErrNotClaimed = errors.New("not claimed")

	// ErrDuplicateKey means this user already has a job with the same
	// idempotency key. Keys are scoped per user: another tenant picking the
	// same key is not a conflict.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

const jobColumns = `
id, user_id, post_id, platform, run_at, next_attempt_at, status,
attempts, max_attempts, idempotency_key, content, media_urls, payload,
error, created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func scanJob(row pgx.Row) (*entity.PostJob, error) {
	var j entity.PostJob
	err := row.Scan(
		&j.ID,
		&j.UserID,
		&j.PostID,
		&j.Platform,
		&j.RunAt,
		&j.NextAttemptAt,
		&j.Status,
		&j.Attempts,
		&j.MaxAttempts,
		&j.IdempotencyKey,
		&j.Content,
		&j.MediaURLs,
		&j.Payload,
		&j.Error,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *JobRepository) Create(ctx context.Context, job *entity.PostJob) (*entity.PostJob, error) {
	const q = `
INSERT INTO post_jobs
  (user_id, post_id, platform, run_at, next_attempt_at, status,
   attempts, max_attempts, idempotency_key, content, media_urls, payload)
VALUES ($1, $2, $3, $4, $4, 'pending', 0, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, idempotency_key) DO NOTHING
RETURNING ` + jobColumns + `;`

	created, err := scanJob(r.pool.QueryRow(ctx, q,
		job.UserID,
		job.PostID,
		job.Platform,
		job.RunAt,
		job.MaxAttempts,
		job.IdempotencyKey,
		job.Content,
		job.MediaURLs,
		job.Payload,
	))
	if errors.Is(err, ErrNotFound) {
		// ON CONFLICT DO NOTHING returns no row when the key already exists.
		return nil, ErrDuplicateKey
	}
	return created, err
}

func (r *JobRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*entity.PostJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM post_jobs WHERE id = $1 AND user_id = $2;`
	return scanJob(r.pool.QueryRow(ctx, q, id, userID))
}

func (r *JobRepository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*entity.PostJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM post_jobs WHERE user_id = $1 AND idempotency_key = $2;`
	return scanJob(r.pool.QueryRow(ctx, q, userID, key))
}

// FetchDue returns pending jobs whose scheduled time and backoff window have
// both passed and that still have attempt budget, oldest schedule first.
func (r *JobRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*entity.PostJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM post_jobs
WHERE status = 'pending'
  AND run_at <= $1
  AND next_attempt_at <= $1
  AND attempts < max_attempts
ORDER BY run_at ASC
LIMIT $2;`

	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.PostJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Claim is the concurrency primitive: a single conditional UPDATE that moves
// pending -> processing and increments attempts. Two overlapping cycles
// racing on the same job get exactly one winner; the loser sees
// ErrNotClaimed because the WHERE no longer matches.
func (r *JobRepository) Claim(ctx context.Context, id uuid.UUID) (*entity.PostJob, error) {
	const q = `
UPDATE post_jobs
SET status = 'processing', attempts = attempts + 1, updated_at = now()
WHERE id = $1 AND status = 'pending' AND attempts < max_attempts
RETURNING ` + jobColumns + `;`

	j, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotClaimed
	}
	return j, err
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE post_jobs
SET status = 'succeeded', error = NULL, updated_at = now()
WHERE id = $1 AND status = 'processing';`
	return r.execExpectingRow(ctx, q, id)
}

// MarkRetry returns the job to pending and schedules its next eligibility.
// attempts stays as the claim left it.
func (r *JobRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time) error {
	const q = `
UPDATE post_jobs
SET status = 'pending', error = $2, next_attempt_at = $3, updated_at = now()
WHERE id = $1 AND status = 'processing';`
	return r.execExpectingRow(ctx, q, id, errMsg, nextAttemptAt)
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `
UPDATE post_jobs
SET status = 'failed', error = $2, updated_at = now()
WHERE id = $1 AND status = 'processing';`
	return r.execExpectingRow(ctx, q, id, errMsg)
}

// ReleaseStale recovers jobs stuck in processing since before cutoff, e.g.
// after a crash between claim and outcome write. Jobs with budget left go
// back to pending; exhausted ones are terminally failed.
func (r *JobRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
UPDATE post_jobs
SET status     = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    error      = CASE WHEN attempts >= max_attempts THEN 'stalled in processing' ELSE error END,
    updated_at = now()
WHERE status = 'processing' AND updated_at < $1;`

	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Cancel only applies to jobs that were never claimed into flight. Terminal
// states stay untouched.
func (r *JobRepository) Cancel(ctx context.Context, userID, id uuid.UUID) error {
	const q = `
UPDATE post_jobs
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND user_id = $2 AND status = 'pending';`
	return r.execExpectingRow(ctx, q, id, userID)
}

func (r *JobRepository) execExpectingRow(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
