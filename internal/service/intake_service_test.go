package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"postpilot/internal/entity"
	"postpilot/internal/repository/postgresql"
	"postpilot/internal/service"
)

// fakeJobWriter stores jobs the way the (user_id, idempotency_key) unique
// constraint does: the same key from two tenants is two distinct jobs.
type fakeJobWriter struct {
	byUserKey map[string]*entity.PostJob
	createErr error
}

func newFakeJobWriter() *fakeJobWriter {
	return &fakeJobWriter{byUserKey: map[string]*entity.PostJob{}}
}

func userKey(userID uuid.UUID, key string) string {
	return userID.String() + "|" + key
}

func (f *fakeJobWriter) Create(ctx context.Context, job *entity.PostJob) (*entity.PostJob, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	k := userKey(job.UserID, job.IdempotencyKey)
	if _, exists := f.byUserKey[k]; exists {
		return nil, postgresql.ErrDuplicateKey
	}
	cp := *job
	cp.ID = uuid.New()
	cp.Status = entity.StatusPending
	f.byUserKey[k] = &cp
	return &cp, nil
}

func (f *fakeJobWriter) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*entity.PostJob, error) {
	j, ok := f.byUserKey[userKey(userID, key)]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return j, nil
}

type fakeNotifier struct {
	calls int
	err   error
}

func (n *fakeNotifier) NotifyRunDue(ctx context.Context) error {
	n.calls++
	return n.err
}

func validRequest() service.ScheduleRequest {
	return service.ScheduleRequest{
		UserID:       uuid.New(),
		Content:      "launch day!",
		Platforms:    []string{"twitter", "linkedin"},
		ScheduleDate: time.Now().Add(time.Hour).Format(time.RFC3339),
	}
}

func TestSchedule_OneJobPerPlatform(t *testing.T) {
	writer := newFakeJobWriter()
	svc := service.NewIntakeService(writer, &fakeNotifier{}, 3)

	postID := uuid.New()
	req := validRequest()
	req.PostID = &postID

	jobs, err := svc.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	platforms := map[entity.Platform]bool{}
	for _, j := range jobs {
		if j.Status != entity.StatusPending {
			t.Fatalf("expected pending, got %s", j.Status)
		}
		if j.Reused {
			t.Fatalf("fresh job marked reused: %+v", j)
		}
		platforms[j.Platform] = true
	}
	if !platforms[entity.PlatformTwitter] || !platforms[entity.PlatformLinkedIn] {
		t.Fatalf("expected twitter+linkedin, got %v", platforms)
	}

	// both jobs reference the same parent post
	for _, stored := range writer.byUserKey {
		if stored.PostID == nil || *stored.PostID != postID {
			t.Fatalf("expected shared post id, got %v", stored.PostID)
		}
		if stored.Attempts != 0 {
			t.Fatalf("expected attempts=0, got %d", stored.Attempts)
		}
	}
}

func TestSchedule_ReplayReturnsExistingJobs(t *testing.T) {
	writer := newFakeJobWriter()
	svc := service.NewIntakeService(writer, &fakeNotifier{}, 3)

	req := validRequest()
	req.IdempotencyKey = "req-42"

	first, err := svc.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	second, err := svc.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(writer.byUserKey) != 2 {
		t.Fatalf("expected 2 stored jobs after replay, got %d", len(writer.byUserKey))
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 job refs on replay, got %d", len(second))
	}
	for i, j := range second {
		if !j.Reused {
			t.Fatalf("replayed job %d not marked reused", i)
		}
		if j.ID != first[i].ID {
			t.Fatalf("replay returned different job id: %s vs %s", j.ID, first[i].ID)
		}
	}
}

func TestSchedule_SameKeyDifferentUsersIsNoConflict(t *testing.T) {
	writer := newFakeJobWriter()
	svc := service.NewIntakeService(writer, &fakeNotifier{}, 3)

	reqA := validRequest()
	reqA.IdempotencyKey = "order-123"
	reqB := validRequest() // different UserID
	reqB.IdempotencyKey = "order-123"

	jobsA, err := svc.Schedule(context.Background(), reqA)
	if err != nil {
		t.Fatalf("user A schedule: %v", err)
	}
	jobsB, err := svc.Schedule(context.Background(), reqB)
	if err != nil {
		t.Fatalf("user B schedule failed because of user A's key: %v", err)
	}

	if len(writer.byUserKey) != 4 {
		t.Fatalf("expected 2 jobs per user, got %d total", len(writer.byUserKey))
	}
	for i := range jobsB {
		if jobsB[i].Reused {
			t.Fatalf("user B job %d marked reused off another tenant's key", i)
		}
		if jobsB[i].ID == jobsA[i].ID {
			t.Fatalf("tenants share a job: %s", jobsB[i].ID)
		}
	}
}

func TestSchedule_ValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*service.ScheduleRequest)
	}{
		{"empty content", func(r *service.ScheduleRequest) { r.Content = "" }},
		{"no platforms", func(r *service.ScheduleRequest) { r.Platforms = nil }},
		{"unknown platform", func(r *service.ScheduleRequest) { r.Platforms = []string{"myspace"} }},
		{"bad date", func(r *service.ScheduleRequest) { r.ScheduleDate = "tomorrow" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writer := newFakeJobWriter()
			svc := service.NewIntakeService(writer, &fakeNotifier{}, 3)

			req := validRequest()
			tc.mutate(&req)

			_, err := svc.Schedule(context.Background(), req)
			var vErr *service.ValidationError
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if len(writer.byUserKey) != 0 {
				t.Fatalf("expected zero jobs created, got %d", len(writer.byUserKey))
			}
		})
	}
}

func TestSchedule_ImmediateRunNudges(t *testing.T) {
	writer := newFakeJobWriter()
	notifier := &fakeNotifier{}
	svc := service.NewIntakeService(writer, notifier, 3)

	req := validRequest()
	req.ScheduleDate = time.Now().Add(-time.Minute).Format(time.RFC3339)

	if _, err := svc.Schedule(context.Background(), req); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected 1 nudge, got %d", notifier.calls)
	}
}

func TestSchedule_FutureRunDoesNotNudge(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := service.NewIntakeService(newFakeJobWriter(), notifier, 3)

	if _, err := svc.Schedule(context.Background(), validRequest()); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if notifier.calls != 0 {
		t.Fatalf("expected no nudge for future schedule, got %d", notifier.calls)
	}
}

func TestSchedule_NudgeFailureDoesNotFailRequest(t *testing.T) {
	writer := newFakeJobWriter()
	notifier := &fakeNotifier{err: context.DeadlineExceeded}
	svc := service.NewIntakeService(writer, notifier, 3)

	req := validRequest()
	req.ScheduleDate = time.Now().Add(-time.Minute).Format(time.RFC3339)

	jobs, err := svc.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("expected nil error despite nudge failure, got %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
}
