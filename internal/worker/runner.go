package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"postpilot/internal/dispatch"
	"postpilot/internal/entity"
	"postpilot/internal/repository/postgresql"
	"postpilot/internal/retry"
)

// JobStore is the runner's port onto job persistence
// (implementation: postgresql.JobRepository).
type JobStore interface {
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*entity.PostJob, error)
	Claim(ctx context.Context, id uuid.UUID) (*entity.PostJob, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostMirror propagates job success to the parent post
// (implementation: postgresql.PostRepository).
type PostMirror interface {
	UpdateStatus(ctx context.Context, postID, userID uuid.UUID, status entity.PostStatus, postedAt *time.Time) error
}

// Dispatcher executes one delivery attempt for a claimed job.
type Dispatcher interface {
	Execute(ctx context.Context, job *entity.PostJob) dispatch.Outcome
}

// Report is what one processing cycle hands back to its trigger. Errors is
// per-job, so a caller sees exactly which jobs failed and why.
type Report struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// Runner turns due jobs into delivery attempts. It owns no schedule of its
// own: each RunCycle is invoked by an external trigger, runs to completion
// and stops. Overlapping cycles are safe because Claim has one winner.
type Runner struct {
	store      JobStore
	posts      PostMirror
	dispatcher Dispatcher
	policy     retry.Policy

	batchLimit  int
	concurrency int64
	staleAfter  time.Duration
}

func NewRunner(store JobStore, posts PostMirror, dispatcher Dispatcher, policy retry.Policy, batchLimit int, concurrency int) *Runner {
	if batchLimit <= 0 {
		batchLimit = 50
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{
		store:       store,
		posts:       posts,
		dispatcher:  dispatcher,
		policy:      policy,
		batchLimit:  batchLimit,
		concurrency: int64(concurrency),
		staleAfter:  10 * time.Minute,
	}
}

// RunCycle processes one batch of due jobs. Jobs are independent: one job's
// failure never aborts the rest. The only hard error is the store itself
// being unreachable for the initial fetch.
func (r *Runner) RunCycle(ctx context.Context) (*Report, error) {
	start := time.Now()

	// Recover jobs a crashed cycle left in processing. If the store is down
	// this fails too; the fetch below turns that into the hard error.
	if released, err := r.store.ReleaseStale(ctx, start.Add(-r.staleAfter)); err != nil {
		log.Printf("[runner] release stale error=%v", err)
	} else if released > 0 {
		log.Printf("[runner] released %d stalled jobs", released)
	}

	batch, err := r.store.FetchDue(ctx, start, r.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}

	report := &Report{Errors: []string{}}
	if len(batch) == 0 {
		return report, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(r.concurrency)
	)

	for _, job := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)

		go func(job *entity.PostJob) {
			defer sem.Release(1)
			defer wg.Done()

			outcome, skipped, writeErr := r.processJob(ctx, job)
			if skipped {
				return
			}

			mu.Lock()
			report.Processed++
			switch {
			case writeErr != nil:
				// The attempt ran but its result never made it to the store;
				// never report that as a success.
				report.Failed++
				report.Errors = append(report.Errors,
					fmt.Sprintf("job %s (%s): persist outcome: %v", job.ID, job.Platform, writeErr))
			case outcome.Success:
				report.Succeeded++
			default:
				report.Failed++
				report.Errors = append(report.Errors,
					fmt.Sprintf("job %s (%s): %s", job.ID, job.Platform, outcome.Message))
			}
			mu.Unlock()
		}(job)
	}
	wg.Wait()

	log.Printf("[runner] cycle processed=%d succeeded=%d failed=%d duration_ms=%d",
		report.Processed, report.Succeeded, report.Failed, time.Since(start).Milliseconds())
	return report, nil
}

// processJob runs the claim -> dispatch -> outcome-write sequence for one
// job. skipped is true when another cycle won the claim; that is a benign
// race and does not count toward the report. writeErr reports a failed
// outcome write: the job is then stuck in processing until ReleaseStale
// recovers it, so the caller must surface it.
func (r *Runner) processJob(ctx context.Context, job *entity.PostJob) (dispatch.Outcome, bool, error) {
	claimed, err := r.store.Claim(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, postgresql.ErrNotClaimed) {
			log.Printf("[runner] job_id=%s claim error=%v", job.ID, err)
		}
		return dispatch.Outcome{}, true, nil
	}

	outcome := r.dispatcher.Execute(ctx, claimed)
	if outcome.Success {
		if err := r.store.MarkSucceeded(ctx, claimed.ID); err != nil {
			log.Printf("[runner] job_id=%s mark_succeeded error=%v", claimed.ID, err)
			return outcome, false, err
		}
		r.mirrorPost(ctx, claimed)

		log.Printf("[runner] job_id=%s platform=%s status=succeeded attempts=%d",
			claimed.ID, claimed.Platform, claimed.Attempts)
		return outcome, false, nil
	}

	switch r.policy.Decide(claimed.Attempts, claimed.MaxAttempts) {
	case retry.Exhaust:
		if err := r.store.MarkFailed(ctx, claimed.ID, outcome.Message); err != nil {
			log.Printf("[runner] job_id=%s mark_failed error=%v", claimed.ID, err)
			return outcome, false, err
		}
		log.Printf("[runner] job_id=%s platform=%s status=failed attempts=%d error=%s",
			claimed.ID, claimed.Platform, claimed.Attempts, outcome.Message)
	default:
		next := time.Now().Add(r.policy.Backoff(claimed.Attempts))
		if err := r.store.MarkRetry(ctx, claimed.ID, outcome.Message, next); err != nil {
			log.Printf("[runner] job_id=%s mark_retry error=%v", claimed.ID, err)
			return outcome, false, err
		}
		log.Printf("[runner] job_id=%s platform=%s status=retry attempts=%d next_attempt_at=%s error=%s",
			claimed.ID, claimed.Platform, claimed.Attempts, next.Format(time.RFC3339), outcome.Message)
	}
	return outcome, false, nil
}

// mirrorPost updates the parent post after a successful dispatch. The job
// outcome stands regardless: a missing or stale post row is logged, not
// propagated.
func (r *Runner) mirrorPost(ctx context.Context, job *entity.PostJob) {
	if job.PostID == nil {
		return
	}
	now := time.Now().UTC()
	if err := r.posts.UpdateStatus(ctx, *job.PostID, job.UserID, entity.PostStatusPosted, &now); err != nil {
		log.Printf("[runner] job_id=%s post_id=%s mirror error=%v", job.ID, *job.PostID, err)
	}
}
