package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

const jobColumns = `id, title, description, bounty, client, is_completed, submission_type, submission_content, submission_description, version, created, updated`

type jobRow struct {
	ID                    int64          `db:"id"`
	Title                 string         `db:"title"`
	Description           string         `db:"description"`
	Bounty                models.Amount  `db:"bounty"`
	Client                string         `db:"client"`
	IsCompleted           bool           `db:"is_completed"`
	SubmissionType        sql.NullString `db:"submission_type"`
	SubmissionContent     sql.NullString `db:"submission_content"`
	SubmissionDescription sql.NullString `db:"submission_description"`
	Version               int64          `db:"version"`
	Created               int64          `db:"created"`
	Updated               int64          `db:"updated"`
}

func (row jobRow) toModel() models.Job {
	j := models.Job{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Bounty:      row.Bounty,
		Client:      row.Client,
		IsCompleted: row.IsCompleted,
		Version:     row.Version,
		Created:     row.Created,
		Updated:     row.Updated,
	}
	if row.SubmissionType.Valid {
		j.Submission = &models.Submission{
			Type:        models.SubmissionType(row.SubmissionType.String),
			Content:     row.SubmissionContent.String,
			Description: row.SubmissionDescription.String,
		}
	}
	return j
}

func submissionColumns(s *models.Submission) (typ, content, desc sql.NullString) {
	if s == nil {
		return
	}
	return sql.NullString{String: string(s.Type), Valid: true},
		sql.NullString{String: s.Content, Valid: true},
		sql.NullString{String: s.Description, Valid: true}
}

func (r *SQLiteRepo) CreateJob(ctx context.Context, j *models.Job) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}

	ts := now()
	if j.Created == 0 {
		j.Created = ts
	}
	if j.Version == 0 {
		j.Version = 1
	}
	j.Updated = ts

	var id any
	if j.ID != 0 {
		id = j.ID
	}
	typ, content, desc := submissionColumns(j.Submission)
	res, err := r.q.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, j.Title, j.Description, j.Bounty, j.Client, j.IsCompleted, typ, content, desc, j.Version, j.Created, j.Updated)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("job %d: %w", j.ID, repository.ErrDuplicate)
		}
		return 0, err
	}

	newID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	j.ID = newID
	return newID, nil
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	var row jobRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	j := row.toModel()
	return &j, nil
}

func (r *SQLiteRepo) ListJobs(ctx context.Context, f repository.JobFilter) ([]models.Job, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `SELECT ` + jobColumns + ` FROM jobs WHERE 1 = 1`
	var args []any
	if f.Client != "" {
		q += ` AND client = ?`
		args = append(args, f.Client)
	}
	if f.OpenOnly {
		q += ` AND is_completed = 0`
	}
	q += ` ORDER BY created DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	var rows []jobRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, q, args...); err != nil {
		return nil, err
	}
	return jobsFromRows(rows), nil
}

func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}

	ts := now()
	typ, content, desc := submissionColumns(j.Submission)
	res, err := r.q.ExecContext(ctx, `UPDATE jobs SET description = ?, is_completed = ?, submission_type = ?, submission_content = ?, submission_description = ?, version = version + 1, updated = ? WHERE id = ? AND version = ?`,
		j.Description, j.IsCompleted, typ, content, desc, ts, j.ID, j.Version)
	if err != nil {
		return err
	}
	if err := r.checkVersioned(ctx, res, `SELECT COUNT(1) FROM jobs WHERE id = ?`, j.ID); err != nil {
		return fmt.Errorf("job %d: %w", j.ID, err)
	}

	j.Version++
	j.Updated = ts
	return nil
}

// checkVersioned turns a zero-row optimistic update into ErrConflict, or
// ErrNotFound when the record is gone.
func (r *SQLiteRepo) checkVersioned(ctx context.Context, res sql.Result, existsQuery string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, existsQuery, args...); err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *SQLiteRepo) LoadJobs(ctx context.Context) ([]models.Job, error) {
	var rows []jobRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT `+jobColumns+` FROM jobs ORDER BY id`); err != nil {
		return nil, err
	}
	return jobsFromRows(rows), nil
}

// SaveJobs upserts every job and deletes the ones not present. Jobs that still
// have applications cannot be deleted.
func (r *SQLiteRepo) SaveJobs(ctx context.Context, jobs []models.Job) error {
	return r.withTx(ctx, func(tr *SQLiteRepo) error {
		ids := make([]int64, 0, len(jobs))
		for i := range jobs {
			j := &jobs[i]
			if j.ID == 0 {
				return fmt.Errorf("save jobs: job %q has no id", j.Title)
			}
			ids = append(ids, j.ID)
		}

		del := `DELETE FROM jobs`
		var args []any
		if len(ids) > 0 {
			q, a, err := sqlx.In(`DELETE FROM jobs WHERE id NOT IN (?)`, ids)
			if err != nil {
				return err
			}
			del, args = q, a
		}
		if _, err := tr.q.ExecContext(ctx, del, args...); err != nil {
			return fmt.Errorf("save jobs: delete stale: %w", err)
		}

		ts := now()
		for i := range jobs {
			j := &jobs[i]
			if j.Created == 0 {
				j.Created = ts
			}
			typ, content, desc := submissionColumns(j.Submission)
			_, err := tr.q.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
				ON CONFLICT(id) DO UPDATE SET title = excluded.title, description = excluded.description, bounty = excluded.bounty,
					client = excluded.client, is_completed = excluded.is_completed, submission_type = excluded.submission_type,
					submission_content = excluded.submission_content, submission_description = excluded.submission_description,
					version = jobs.version + 1, updated = excluded.updated`,
				j.ID, j.Title, j.Description, j.Bounty, j.Client, j.IsCompleted, typ, content, desc, j.Created, ts)
			if err != nil {
				return fmt.Errorf("save job %d: %w", j.ID, err)
			}
		}
		return nil
	})
}

func jobsFromRows(rows []jobRow) []models.Job {
	out := make([]models.Job, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
