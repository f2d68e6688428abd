package worker_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	dbfs "github.com/garnizeh/cleardeal/db"
	"github.com/garnizeh/cleardeal/internal/db"
	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/repository/sqlite"
	"github.com/garnizeh/cleardeal/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupRepo(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "worker.db"), nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(ctx, d, dbfs.Migrations, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlite.New(d, nil)
}

func TestEnqueueAndProcess(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	handled := make(chan string, 1)
	pool := worker.NewPool(repo, nil, nil, 1)
	pool.Handle("test", func(ctx context.Context, j *models.BackgroundJob) error {
		handled <- string(j.Payload)
		return nil
	})
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := pool.Enqueue(ctx, "test", map[string]string{"foo": "bar"}, 10, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case payload := <-handled:
		if payload != `{"foo":"bar"}` {
			t.Fatalf("unexpected payload %s", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}
}

func TestFailingJobMovesToDeadLetter(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	calls := make(chan struct{}, 4)
	pool := worker.NewPool(repo, map[string]worker.Handler{
		"flaky": func(ctx context.Context, j *models.BackgroundJob) error {
			calls <- struct{}{}
			return errors.New("boom")
		},
	}, nil, 1)
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := pool.Enqueue(ctx, "flaky", nil, 1, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := pool.Enqueue(ctx, "unknown", nil, 1, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		n, err := repo.CountDeadLetters(ctx)
		if err != nil {
			t.Fatalf("count dead letters: %v", err)
		}
		if n == 2 {
			if len(calls) != 1 {
				t.Fatalf("expected one handler call, got %d", len(calls))
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("jobs were not moved to dead letter in time")
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := setupRepo(t)
	pool := worker.NewPool(repo, nil, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("pool did not stop")
	}
	pool.Stop()
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{20, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := worker.BackoffDuration(tt.attempt); got != tt.want {
			t.Errorf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
