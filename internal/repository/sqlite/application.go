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

const applicationColumns = `job_id, freelancer, status, work_status, has_paid_fee, fee_receipt, applied_at, submission_type, submission_content, submission_description, submitted_at, version, updated`

type applicationRow struct {
	JobID                 int64          `db:"job_id"`
	Freelancer            string         `db:"freelancer"`
	Status                string         `db:"status"`
	WorkStatus            string         `db:"work_status"`
	HasPaidFee            sql.NullBool   `db:"has_paid_fee"`
	FeeReceipt            sql.NullString `db:"fee_receipt"`
	AppliedAt             int64          `db:"applied_at"`
	SubmissionType        sql.NullString `db:"submission_type"`
	SubmissionContent     sql.NullString `db:"submission_content"`
	SubmissionDescription sql.NullString `db:"submission_description"`
	SubmittedAt           sql.NullInt64  `db:"submitted_at"`
	Version               int64          `db:"version"`
	Updated               int64          `db:"updated"`
}

func (row applicationRow) toModel() models.Application {
	a := models.Application{
		JobID:      row.JobID,
		Freelancer: row.Freelancer,
		Status:     models.ApplicationStatus(row.Status),
		WorkStatus: models.WorkStatus(row.WorkStatus),
		// rows written before the fee was tracked count as paid
		HasPaidFee: !row.HasPaidFee.Valid || row.HasPaidFee.Bool,
		FeeReceipt: row.FeeReceipt.String,
		AppliedAt:  row.AppliedAt,
		Version:    row.Version,
		Updated:    row.Updated,
	}
	if a.WorkStatus == "" {
		a.WorkStatus = models.WorkNotStarted
	}
	if row.SubmissionType.Valid {
		a.Submission = &models.SubmissionData{
			Submission: models.Submission{
				Type:        models.SubmissionType(row.SubmissionType.String),
				Content:     row.SubmissionContent.String,
				Description: row.SubmissionDescription.String,
			},
			SubmittedAt: row.SubmittedAt.Int64,
		}
	}
	return a
}

func applicationArgs(a *models.Application) []any {
	var (
		sub         *models.Submission
		submittedAt sql.NullInt64
	)
	if a.Submission != nil {
		sub = &a.Submission.Submission
		submittedAt = sql.NullInt64{Int64: a.Submission.SubmittedAt, Valid: true}
	}
	typ, content, desc := submissionColumns(sub)
	receipt := sql.NullString{String: a.FeeReceipt, Valid: a.FeeReceipt != ""}
	return []any{a.Status, a.WorkStatus, a.HasPaidFee, receipt, a.AppliedAt, typ, content, desc, submittedAt}
}

func (r *SQLiteRepo) CreateApplication(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}

	ts := now()
	if a.AppliedAt == 0 {
		a.AppliedAt = ts
	}
	if a.Version == 0 {
		a.Version = 1
	}
	a.Updated = ts

	args := append([]any{a.JobID, a.Freelancer}, applicationArgs(a)...)
	args = append(args, a.Version, a.Updated)
	if _, err := r.q.ExecContext(ctx, `INSERT INTO applications (`+applicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("application %d/%s: %w", a.JobID, a.Freelancer, repository.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *SQLiteRepo) GetApplication(ctx context.Context, jobID int64, freelancer string) (*models.Application, error) {
	var row applicationRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+applicationColumns+` FROM applications WHERE job_id = ? AND freelancer = ?`, jobID, freelancer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	a := row.toModel()
	return &a, nil
}

func (r *SQLiteRepo) ListApplicationsByJob(ctx context.Context, jobID int64) ([]models.Application, error) {
	return r.selectApplications(ctx, `SELECT `+applicationColumns+` FROM applications WHERE job_id = ? ORDER BY applied_at, freelancer`, jobID)
}

func (r *SQLiteRepo) ListApplicationsByFreelancer(ctx context.Context, freelancer string) ([]models.Application, error) {
	return r.selectApplications(ctx, `SELECT `+applicationColumns+` FROM applications WHERE freelancer = ? ORDER BY applied_at DESC`, freelancer)
}

func (r *SQLiteRepo) LoadApplications(ctx context.Context) ([]models.Application, error) {
	return r.selectApplications(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY job_id, applied_at`)
}

func (r *SQLiteRepo) selectApplications(ctx context.Context, q string, args ...any) ([]models.Application, error) {
	var rows []applicationRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, q, args...); err != nil {
		return nil, err
	}

	out := make([]models.Application, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *SQLiteRepo) UpdateApplication(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}

	ts := now()
	args := append(applicationArgs(a), ts, a.JobID, a.Freelancer, a.Version)
	res, err := r.q.ExecContext(ctx, `UPDATE applications SET status = ?, work_status = ?, has_paid_fee = ?, fee_receipt = ?, applied_at = ?,
		submission_type = ?, submission_content = ?, submission_description = ?, submitted_at = ?, version = version + 1, updated = ?
		WHERE job_id = ? AND freelancer = ? AND version = ?`, args...)
	if err != nil {
		return err
	}
	if err := r.checkVersioned(ctx, res, `SELECT COUNT(1) FROM applications WHERE job_id = ? AND freelancer = ?`, a.JobID, a.Freelancer); err != nil {
		return fmt.Errorf("application %d/%s: %w", a.JobID, a.Freelancer, err)
	}

	a.Version++
	a.Updated = ts
	return nil
}

type applicationKey struct {
	jobID      int64
	freelancer string
}

// SaveApplications upserts every application and deletes the ones not present.
func (r *SQLiteRepo) SaveApplications(ctx context.Context, apps []models.Application) error {
	return r.withTx(ctx, func(tr *SQLiteRepo) error {
		keep := make(map[applicationKey]bool, len(apps))
		for _, a := range apps {
			k := applicationKey{a.JobID, a.Freelancer}
			if keep[k] {
				return fmt.Errorf("save applications: %d/%s: %w", a.JobID, a.Freelancer, repository.ErrDuplicate)
			}
			keep[k] = true
		}

		var existing []applicationKeyRow
		if err := sqlx.SelectContext(ctx, tr.q, &existing, `SELECT job_id, freelancer FROM applications`); err != nil {
			return err
		}
		for _, e := range existing {
			if keep[applicationKey{e.JobID, e.Freelancer}] {
				continue
			}
			if _, err := tr.q.ExecContext(ctx, `DELETE FROM applications WHERE job_id = ? AND freelancer = ?`, e.JobID, e.Freelancer); err != nil {
				return fmt.Errorf("save applications: delete stale: %w", err)
			}
		}

		ts := now()
		for i := range apps {
			a := &apps[i]
			if a.AppliedAt == 0 {
				a.AppliedAt = ts
			}
			args := append([]any{a.JobID, a.Freelancer}, applicationArgs(a)...)
			args = append(args, ts)
			_, err := tr.q.ExecContext(ctx, `INSERT INTO applications (`+applicationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
				ON CONFLICT(job_id, freelancer) DO UPDATE SET status = excluded.status, work_status = excluded.work_status,
					has_paid_fee = excluded.has_paid_fee, fee_receipt = excluded.fee_receipt, applied_at = excluded.applied_at,
					submission_type = excluded.submission_type, submission_content = excluded.submission_content,
					submission_description = excluded.submission_description, submitted_at = excluded.submitted_at,
					version = applications.version + 1, updated = excluded.updated`, args...)
			if err != nil {
				return fmt.Errorf("save application %d/%s: %w", a.JobID, a.Freelancer, err)
			}
		}
		return nil
	})
}

type applicationKeyRow struct {
	JobID      int64  `db:"job_id"`
	Freelancer string `db:"freelancer"`
}
