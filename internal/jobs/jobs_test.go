package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	dbfs "github.com/garnizeh/campusfix/db"
	"github.com/garnizeh/campusfix/internal/db"
	"github.com/garnizeh/campusfix/internal/jobs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRepo(t *testing.T) (*jobs.Repository, *db.DB) {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return jobs.NewRepository(d), d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEnqueueAndProcess(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	handled := make(chan map[string]string, 1)
	handlers := map[string]jobs.Handler{
		"test": func(ctx context.Context, j *jobs.Job) error {
			var pl map[string]string
			if err := j.Decode(&pl); err != nil {
				return err
			}
			handled <- pl
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, nil, 1, jobs.WithPollInterval(10*time.Millisecond))
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "test", map[string]string{"foo": "bar"}, 10, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case pl := <-handled:
		if pl["foo"] != "bar" {
			t.Fatalf("unexpected payload %v", pl)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}

	waitFor(t, "job done", func() bool {
		j, err := repo.Get(ctx, id)
		return err == nil && j.Status == jobs.StatusDone
	})
}

func TestEnqueueUnique(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	pool := jobs.NewWorkerPool(repo, nil, nil, 1)

	if _, err := pool.EnqueueUnique(ctx, "issue.reported", "issue:1", map[string]string{}, 10, 3); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	_, err := pool.EnqueueUnique(ctx, "issue.reported", "issue:1", map[string]string{}, 10, 3)
	if !errors.Is(err, jobs.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// jobs without a key never collide
	for i := 0; i < 2; i++ {
		if _, err := pool.Enqueue(ctx, "plain", nil, 10, 3); err != nil {
			t.Fatalf("enqueue plain: %v", err)
		}
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[jobs.StatusQueued] != 3 {
		t.Fatalf("expected 3 queued jobs, got %v", counts)
	}
}

func TestClaim_PriorityAndExclusive(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	past := time.Now().Add(-time.Minute)
	for _, j := range []*jobs.Job{
		{Type: "low", Priority: 100, ScheduledAt: past},
		{Type: "high", Priority: 1, ScheduledAt: past},
		{Type: "later", Priority: 0, ScheduledAt: time.Now().Add(time.Hour)},
	} {
		if _, err := repo.Enqueue(ctx, j); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	first, err := repo.Claim(ctx)
	if err != nil || first == nil || first.Type != "high" || first.Status != jobs.StatusRunning {
		t.Fatalf("expected high priority job first, got %+v %v", first, err)
	}
	second, _ := repo.Claim(ctx)
	if second == nil || second.Type != "low" {
		t.Fatalf("expected low priority job second, got %+v", second)
	}
	third, err := repo.Claim(ctx)
	if err != nil || third != nil {
		t.Fatalf("future job must not be claimed, got %+v %v", third, err)
	}

	n, err := repo.ReleaseRunning(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 released jobs, got %d %v", n, err)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	ctx := context.Background()
	repo, d := newRepo(t)

	var calls atomic.Int32
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			calls.Add(1)
			return errors.New("boom")
		},
	}
	id, err := repo.Enqueue(ctx, &jobs.Job{Type: "flaky", DedupeKey: "k", Payload: []byte(`{}`), MaxAttempts: 1})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "orphan", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pool := jobs.NewWorkerPool(repo, handlers, nil, 2, jobs.WithPollInterval(10*time.Millisecond))
	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, "dead letters", func() bool {
		var n int
		_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_jobs`).Scan(&n)
		return n == 2
	})

	var lastErr string
	if err := d.QueryRow(ctx, `SELECT last_error FROM dead_letter_jobs WHERE job_id = ?`, id).Scan(&lastErr); err != nil {
		t.Fatalf("dead letter row: %v", err)
	}
	if lastErr != "boom" || calls.Load() != 1 {
		t.Fatalf("unexpected dead letter: %q after %d calls", lastErr, calls.Load())
	}
}

func TestRetrySchedulesBackoff(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	handlers := map[string]jobs.Handler{
		"panics": func(ctx context.Context, j *jobs.Job) error { panic("bad payload") },
	}
	id, _ := repo.Enqueue(ctx, &jobs.Job{Type: "panics", Payload: []byte(`{}`), MaxAttempts: 3})

	pool := jobs.NewWorkerPool(repo, handlers, nil, 1, jobs.WithPollInterval(10*time.Millisecond))
	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, "retry state", func() bool {
		j, err := repo.Get(ctx, id)
		return err == nil && j.Status == jobs.StatusRetry
	})
	j, _ := repo.Get(ctx, id)
	if j.Attempts != 1 || j.NextTryAt == nil || !j.NextTryAt.After(time.Now()) {
		t.Fatalf("expected a scheduled retry, got %+v", j)
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{9, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := jobs.BackoffDuration(tt.attempt); got != tt.want {
			t.Errorf("BackoffDuration(%d) = %v want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	repo, _ := newRepo(t)
	pool := jobs.NewWorkerPool(repo, nil, nil, 2)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
}
