package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/cleardeal/internal/models"
)

type backgroundJobRow struct {
	ID          int64          `db:"id"`
	Type        string         `db:"type"`
	Payload     sql.NullString `db:"payload"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	Priority    int            `db:"priority"`
	ScheduledAt int64          `db:"scheduled_at"`
	NextTryAt   sql.NullInt64  `db:"next_try_at"`
	LastError   sql.NullString `db:"last_error"`
	Created     int64          `db:"created"`
	Updated     int64          `db:"updated"`
}

func (row backgroundJobRow) toModel() *models.BackgroundJob {
	j := &models.BackgroundJob{
		ID:          row.ID,
		Type:        row.Type,
		Status:      row.Status,
		Attempts:    row.Attempts,
		MaxAttempts: row.MaxAttempts,
		Priority:    row.Priority,
		ScheduledAt: time.Unix(row.ScheduledAt, 0),
		Created:     time.Unix(row.Created, 0),
		Updated:     time.Unix(row.Updated, 0),
	}
	if row.Payload.Valid {
		j.Payload = json.RawMessage(row.Payload.String)
	}
	if row.NextTryAt.Valid {
		t := time.Unix(row.NextTryAt.Int64, 0)
		j.NextTryAt = &t
	}
	if row.LastError.Valid {
		j.LastError = row.LastError.String
	}
	return j
}

// Enqueue inserts a job into the background_jobs table and returns the new ID
func (r *SQLiteRepo) Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("background job is nil")
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now()
	}

	ts := time.Now().UTC().Unix()
	q := `INSERT INTO background_jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := r.q.ExecContext(ctx, q, j.Type, string(j.Payload), "queued", j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().Unix(), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}

	return res.LastInsertId()
}

// FetchNext claims the next available job respecting priority and schedule.
// The claimed job is marked running so concurrent workers never share it.
func (r *SQLiteRepo) FetchNext(ctx context.Context) (*models.BackgroundJob, error) {
	q := `UPDATE background_jobs SET status = 'running', updated = ?1
		WHERE id = (
			SELECT id FROM background_jobs
			WHERE (status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?1) AND scheduled_at <= ?1
			ORDER BY priority ASC, scheduled_at ASC LIMIT 1
		)
		RETURNING id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`
	ts := time.Now().UTC().Unix()

	var row backgroundJobRow
	if err := r.q.QueryRowxContext(ctx, q, ts).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("fetch next job: %w", err)
	}

	return row.toModel(), nil
}

// UpdateBackgroundJob updates attempts, status, next_try_at, last_error
func (r *SQLiteRepo) UpdateBackgroundJob(ctx context.Context, j *models.BackgroundJob) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.Unix()
	}
	q := `UPDATE background_jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.q.ExecContext(ctx, q, j.Status, j.Attempts, nextTry, j.LastError, time.Now().UTC().Unix(), j.ID)

	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	return r.withTx(ctx, func(tr *SQLiteRepo) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tr.q.ExecContext(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().Unix()); err != nil {
			return err
		}

		_, err := tr.q.ExecContext(ctx, `DELETE FROM background_jobs WHERE id = ?`, j.ID)
		return err
	})
}

// CountDeadLetters returns the number of jobs that exhausted their attempts.
func (r *SQLiteRepo) CountDeadLetters(ctx context.Context) (int64, error) {
	var n int64
	err := r.q.QueryRowxContext(ctx, `SELECT COUNT(*) FROM dead_letter_jobs`).Scan(&n)
	return n, err
}
