package escrow

import (
	"fmt"

	"github.com/garnizeh/cleardeal/internal/models"
)

type ValidationError struct {
	error
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{fmt.Errorf(format, args...)}
}

type NotFoundError struct {
	error
}

func NewJobNotFoundError(jobID int64) *NotFoundError {
	return &NotFoundError{fmt.Errorf("job %d not found", jobID)}
}

func NewApplicationNotFoundError(jobID int64, freelancer string) *NotFoundError {
	return &NotFoundError{fmt.Errorf("application of %s to job %d not found", freelancer, jobID)}
}

type DuplicateApplicationError struct {
	error
}

func NewDuplicateApplicationError(jobID int64, freelancer string) *DuplicateApplicationError {
	return &DuplicateApplicationError{fmt.Errorf("%s has already applied to job %d", freelancer, jobID)}
}

// NotEligibleError covers role mismatches and preconditions the caller cannot
// satisfy, such as selecting an application whose fee is unpaid.
type NotEligibleError struct {
	error
}

func NewNotEligibleError(format string, args ...any) *NotEligibleError {
	return &NotEligibleError{fmt.Errorf(format, args...)}
}

func NewNotJobClientError(caller string, jobID int64) *NotEligibleError {
	return NewNotEligibleError("%s is not the client of job %d", caller, jobID)
}

type NotSelectedError struct {
	error
}

func NewNotSelectedError(jobID int64, freelancer string, app *models.Application) *NotSelectedError {
	if app == nil {
		return &NotSelectedError{fmt.Errorf("%s has no application to job %d", freelancer, jobID)}
	}
	return &NotSelectedError{fmt.Errorf("application of %s to job %d is %s with work %s", freelancer, jobID, app.Status, app.WorkStatus)}
}

type NoSubmissionError struct {
	error
}

func NewNoSubmissionError(jobID int64) *NoSubmissionError {
	return &NoSubmissionError{fmt.Errorf("job %d has no submitted work awaiting review", jobID)}
}

// SettlementError wraps a settlement failure; errors.Is still matches the
// settlement package sentinels through it.
type SettlementError struct {
	error
}

func NewSettlementError(op string, err error) *SettlementError {
	return &SettlementError{fmt.Errorf("%s: %w", op, err)}
}

func (e *SettlementError) Unwrap() error { return e.error }

type ConflictError struct {
	error
}

func NewConflictError(what string, err error) *ConflictError {
	return &ConflictError{fmt.Errorf("%s: %w", what, err)}
}

func (e *ConflictError) Unwrap() error { return e.error }
