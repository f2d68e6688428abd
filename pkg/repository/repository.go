package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/cleardeal/internal/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Getters return (nil, nil) when the record does not exist.

var (
	// ErrConflict is returned by optimistic updates whose version no longer matches.
	ErrConflict = errors.New("record was modified concurrently")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("record already exists")
	// ErrNotFound is returned by updates of records that do not exist.
	ErrNotFound = errors.New("record not found")
)

type JobFilter struct {
	Client   string
	OpenOnly bool
	Limit    int
	Offset   int
}

type JobRepo interface {
	// CreateJob stores j, assigning an id when j.ID is zero.
	CreateJob(ctx context.Context, j *models.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]models.Job, error)
	// UpdateJob writes the mutable fields of j if j.Version is current and
	// advances j.Version. Title, bounty and client are never rewritten.
	UpdateJob(ctx context.Context, j *models.Job) error
	LoadJobs(ctx context.Context) ([]models.Job, error)
	// SaveJobs replaces the whole job collection with jobs.
	SaveJobs(ctx context.Context, jobs []models.Job) error
}

type ApplicationRepo interface {
	CreateApplication(ctx context.Context, a *models.Application) error
	GetApplication(ctx context.Context, jobID int64, freelancer string) (*models.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID int64) ([]models.Application, error)
	ListApplicationsByFreelancer(ctx context.Context, freelancer string) ([]models.Application, error)
	UpdateApplication(ctx context.Context, a *models.Application) error
	LoadApplications(ctx context.Context) ([]models.Application, error)
	// SaveApplications replaces the whole application collection with apps.
	SaveApplications(ctx context.Context, apps []models.Application) error
}

type ReceiptRepo interface {
	CreateReceipt(ctx context.Context, r *models.Receipt) error
	ListReceiptsByJob(ctx context.Context, jobID int64) ([]models.Receipt, error)
}

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
}

type SchemaRepo interface {
	CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error)
	GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error)
	ListSchemas(ctx context.Context) ([]models.Schema, error)
	DeleteSchema(ctx context.Context, version string) error
}

// QueueRepo persists background jobs for the worker pool.
type QueueRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	// FetchNext claims the next due job, or returns nil when none is due.
	FetchNext(ctx context.Context) (*models.BackgroundJob, error)
	UpdateBackgroundJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}

// EntityStore is the authoritative job and application store used by the
// lifecycle engines.
type EntityStore interface {
	JobRepo
	ApplicationRepo
	ReceiptRepo

	// WithTx runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(EntityStore) error) error
	// DataVersion changes whenever another connection commits to the store.
	DataVersion(ctx context.Context) (int64, error)
}
