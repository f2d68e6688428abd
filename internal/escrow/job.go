// Package escrow holds the job and application lifecycle engines. Engines take
// the caller's address explicitly and reject calls the caller's role does not
// allow.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/cleardeal/internal/identity"
	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/notify"
	"github.com/garnizeh/cleardeal/pkg/metrics"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

type createJobInput struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"required,max=10000"`
}

type JobEngine struct {
	store    repository.EntityStore
	validate *validator.Validate
	opts     options
}

func NewJobEngine(store repository.EntityStore, opts ...Option) *JobEngine {
	return &JobEngine{store: store, validate: validator.New(), opts: buildOptions(opts)}
}

// CreateJob stores a new open job owned by client.
func (e *JobEngine) CreateJob(ctx context.Context, client, title, description string, bounty models.Amount) (*models.Job, error) {
	addr, err := identity.NormalizeAddress(client)
	if err != nil {
		return nil, NewValidationError("client: %v", err)
	}
	in := createJobInput{Title: strings.TrimSpace(title), Description: strings.TrimSpace(description)}
	if err := e.validate.Struct(in); err != nil {
		return nil, NewValidationError("invalid job: %v", err)
	}
	if bounty.Sign() <= 0 {
		return nil, NewValidationError("bounty must be greater than zero")
	}
	if Fee(bounty).Sign() <= 0 {
		return nil, NewValidationError("bounty is too small to carry an application fee")
	}

	now := e.opts.nowMillis()
	job := &models.Job{
		Title:       in.Title,
		Description: in.Description,
		Bounty:      bounty,
		Client:      addr,
		Created:     now,
		Updated:     now,
	}
	if _, err := e.store.CreateJob(ctx, job); err != nil {
		metrics.IncreaseTransitionsTotal("create_job", metrics.OutcomeError)
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.IncreaseTransitionsTotal("create_job", metrics.OutcomeOK)
	e.opts.logger.Info("job created", "job_id", job.ID, "client", job.Client, "bounty", job.Bounty.String())
	e.opts.publish(ctx, notify.Event{Kind: notify.KindJobCreated, JobID: job.ID, Client: job.Client, Actor: job.Client})
	return job, nil
}

func (e *JobEngine) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	return getJob(ctx, e.store, id)
}

func (e *JobEngine) ListJobs(ctx context.Context, f repository.JobFilter) ([]models.Job, error) {
	if f.Client != "" {
		addr, err := identity.NormalizeAddress(f.Client)
		if err != nil {
			return nil, NewValidationError("client: %v", err)
		}
		f.Client = addr
	}
	jobs, err := e.store.ListJobs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// RecordSubmission copies sub onto the job, replacing any earlier submission.
func (e *JobEngine) RecordSubmission(ctx context.Context, jobID int64, sub models.Submission) error {
	return recordSubmission(ctx, e.store, jobID, sub)
}

// MarkCompleted closes the job. It does not look at the job's applications;
// ApplicationEngine.ApproveWork is the caller that has checked them.
func (e *JobEngine) MarkCompleted(ctx context.Context, jobID int64) error {
	return markCompleted(ctx, e.store, jobID)
}

func getJob(ctx context.Context, store repository.JobRepo, id int64) (*models.Job, error) {
	job, err := store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	if job == nil {
		return nil, NewJobNotFoundError(id)
	}
	return job, nil
}

func recordSubmission(ctx context.Context, store repository.JobRepo, jobID int64, sub models.Submission) error {
	job, err := getJob(ctx, store, jobID)
	if err != nil {
		return err
	}
	job.Submission = &sub
	return updateJob(ctx, store, job)
}

func markCompleted(ctx context.Context, store repository.JobRepo, jobID int64) error {
	job, err := getJob(ctx, store, jobID)
	if err != nil {
		return err
	}
	if job.IsCompleted {
		return nil
	}
	job.IsCompleted = true
	return updateJob(ctx, store, job)
}

func updateJob(ctx context.Context, store repository.JobRepo, job *models.Job) error {
	err := store.UpdateJob(ctx, job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return NewJobNotFoundError(job.ID)
	case errors.Is(err, repository.ErrConflict):
		return NewConflictError(fmt.Sprintf("job %d", job.ID), err)
	}
	return fmt.Errorf("update job %d: %w", job.ID, err)
}
