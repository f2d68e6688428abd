package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// ApplicationStatus is the client's selection decision on an application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusSelected ApplicationStatus = "selected"
	StatusRejected ApplicationStatus = "rejected"
)

// WorkStatus tracks the selected freelancer's deliverable. It only advances while
// the application is selected.
type WorkStatus string

const (
	WorkNotStarted WorkStatus = "not_started"
	WorkInProgress WorkStatus = "in_progress"
	WorkSubmitted  WorkStatus = "submitted"
	WorkApproved   WorkStatus = "approved"
	WorkRejected   WorkStatus = "rejected"
)

type SubmissionType string

const (
	SubmissionFile SubmissionType = "file"
	SubmissionLink SubmissionType = "link"
)

type User struct {
	ID           int64  `json:"id" db:"id"`
	Address      string `json:"address" db:"address" validate:"required"`
	Role         Role   `json:"role" db:"role" validate:"required,oneof=client freelancer"`
	Name         string `json:"name" db:"name" validate:"required"`
	Email        string `json:"email" db:"email" validate:"required,email"`
	Updated      int64  `json:"updated" db:"updated"`
	PasswordHash string `json:"-" db:"password_hash"`
}

// Submission is the work payload handed over by the intake boundary.
type Submission struct {
	Type        SubmissionType `json:"type" validate:"required,oneof=file link"`
	Content     string         `json:"content" validate:"required"`
	Description string         `json:"description" validate:"max=10000"`
}

// SubmissionData is a Submission as recorded on an application.
type SubmissionData struct {
	Submission
	SubmittedAt int64 `json:"submitted_at"`
}

type Job struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Bounty      Amount      `json:"bounty"`
	Client      string      `json:"client"`
	IsCompleted bool        `json:"is_completed"`
	Submission  *Submission `json:"submission,omitempty"`
	Version     int64       `json:"version"`
	Created     int64       `json:"created"`
	Updated     int64       `json:"updated"`
}

// Application is keyed by (JobID, Freelancer).
type Application struct {
	JobID      int64             `json:"job_id"`
	Freelancer string            `json:"freelancer"`
	Status     ApplicationStatus `json:"status"`
	WorkStatus WorkStatus        `json:"work_status"`
	HasPaidFee bool              `json:"has_paid_fee"`
	FeeReceipt string            `json:"fee_receipt,omitempty"`
	AppliedAt  int64             `json:"applied_at"`
	Submission *SubmissionData   `json:"submission,omitempty"`
	Version    int64             `json:"version"`
	Updated    int64             `json:"updated"`
}

type ReceiptKind string

const (
	ReceiptFee    ReceiptKind = "fee"
	ReceiptBounty ReceiptKind = "bounty"
)

// Receipt is a confirmed settlement recorded in the local ledger.
type Receipt struct {
	ID      string      `json:"id" db:"id"`
	Kind    ReceiptKind `json:"kind" db:"kind"`
	JobID   int64       `json:"job_id" db:"job_id"`
	Party   string      `json:"party" db:"party"`
	Amount  Amount      `json:"amount" db:"amount"`
	TxHash  string      `json:"tx_hash,omitempty" db:"tx_hash"`
	Created int64       `json:"created" db:"created"`
}

type Schema struct {
	ID          int64  `json:"id" db:"id"`
	Version     string `json:"version" db:"version"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

type BackgroundJob struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}
