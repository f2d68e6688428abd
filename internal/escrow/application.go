package escrow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/cleardeal/internal/identity"
	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/notify"
	"github.com/garnizeh/cleardeal/pkg/metrics"
	"github.com/garnizeh/cleardeal/pkg/repository"
	"github.com/garnizeh/cleardeal/pkg/settlement"
)

// FeePercent is the application fee charged on apply, as a share of the bounty.
const FeePercent = 10

const commitTimeout = 10 * time.Second

// ApplicationEngine runs the application state machine:
//
//	pending -> selected(in_progress) -> submitted -> approved
//	        \-> rejected                         \-> rejected -> submitted ...
//
// Settlement always completes before the matching transition is committed.
type ApplicationEngine struct {
	store    repository.EntityStore
	settler  settlement.Settler
	validate *validator.Validate
	locks    *jobLocks
	opts     options
}

func NewApplicationEngine(store repository.EntityStore, settler settlement.Settler, opts ...Option) *ApplicationEngine {
	return &ApplicationEngine{
		store:    store,
		settler:  settler,
		validate: validator.New(),
		locks:    newJobLocks(),
		opts:     buildOptions(opts),
	}
}

// Fee returns the application fee for a job with the given bounty.
func Fee(bounty models.Amount) models.Amount {
	return bounty.Percent(FeePercent)
}

// Apply charges the application fee and records a pending application for
// freelancer. Nothing is recorded unless the fee payment is confirmed.
func (e *ApplicationEngine) Apply(ctx context.Context, jobID int64, freelancer string) (*models.Application, error) {
	const op = "apply"
	freelancer, err := normalizeCaller(freelancer)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.lock(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for job %d: %w", jobID, err)
	}
	defer unlock()

	job, err := e.checkApply(ctx, jobID, freelancer)
	if err != nil {
		e.count(op, err)
		return nil, err
	}

	fee := Fee(job.Bounty)
	receipt, err := e.unrecorded(ctx, jobID, models.ReceiptFee, freelancer)
	if err != nil {
		e.count(op, err)
		return nil, err
	}
	if receipt == nil {
		receipt, err = e.settle(ctx, models.ReceiptFee, func(ctx context.Context) (*settlement.Receipt, error) {
			return e.settler.PayFee(ctx, jobID, freelancer, fee)
		})
		if err != nil {
			e.count(op, err)
			return nil, err
		}
	}

	// The fee has moved; the caller going away must not lose the record.
	ctx, cancel := commitContext(ctx)
	defer cancel()
	e.recordReceipt(ctx, receipt)

	app := &models.Application{
		JobID:      jobID,
		Freelancer: freelancer,
		Status:     models.StatusPending,
		WorkStatus: models.WorkNotStarted,
		HasPaidFee: true,
		FeeReceipt: receipt.ID,
		AppliedAt:  e.opts.nowMillis(),
	}
	if err := e.store.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			err = NewDuplicateApplicationError(jobID, freelancer)
		} else {
			err = fmt.Errorf("create application: %w", err)
		}
		e.opts.logger.Error("fee paid but application not recorded", "job_id", jobID, "freelancer", freelancer, "receipt", receipt.ID, "err", err)
		e.count(op, err)
		return nil, err
	}

	e.count(op, nil)
	e.opts.logger.Info("application created", "job_id", jobID, "freelancer", freelancer, "fee", fee.String())
	e.opts.publish(ctx, notify.Event{Kind: notify.KindApplied, JobID: jobID, Client: job.Client, Freelancer: freelancer, Actor: freelancer})
	return app, nil
}

func (e *ApplicationEngine) checkApply(ctx context.Context, jobID int64, freelancer string) (*models.Job, error) {
	job, err := getJob(ctx, e.store, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsCompleted {
		return nil, NewNotEligibleError("job %d is already completed", jobID)
	}
	if identity.SameAddress(job.Client, freelancer) {
		return nil, NewNotEligibleError("client cannot apply to their own job %d", jobID)
	}
	if Fee(job.Bounty).Sign() <= 0 {
		return nil, NewNotEligibleError("bounty of job %d is too small to carry an application fee", jobID)
	}

	apps, err := e.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	for _, a := range apps {
		if identity.SameAddress(a.Freelancer, freelancer) {
			return nil, NewDuplicateApplicationError(jobID, freelancer)
		}
	}
	for _, a := range apps {
		if a.Status == models.StatusSelected {
			return nil, NewNotEligibleError("job %d already has a selected freelancer", jobID)
		}
	}
	return job, nil
}

// Select picks freelancer for the job and rejects every other pending
// application in the same transaction.
func (e *ApplicationEngine) Select(ctx context.Context, caller string, jobID int64, freelancer string) (*models.Application, error) {
	const op = "select"
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}
	freelancer, err = identity.NormalizeAddress(freelancer)
	if err != nil {
		return nil, NewValidationError("freelancer: %v", err)
	}

	unlock, err := e.locks.lock(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for job %d: %w", jobID, err)
	}
	defer unlock()

	var (
		job      *models.Job
		selected *models.Application
		losers   []string
	)
	err = e.store.WithTx(ctx, func(tx repository.EntityStore) error {
		var err error
		job, err = e.clientJob(ctx, tx, caller, jobID)
		if err != nil {
			return err
		}
		if job.IsCompleted {
			return NewNotEligibleError("job %d is already completed", jobID)
		}

		apps, err := tx.ListApplicationsByJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("list applications: %w", err)
		}
		for i := range apps {
			a := &apps[i]
			if identity.SameAddress(a.Freelancer, freelancer) {
				selected = a
				continue
			}
			if a.Status == models.StatusSelected {
				return NewNotEligibleError("job %d already has a selected freelancer", jobID)
			}
		}
		if selected == nil {
			return NewApplicationNotFoundError(jobID, freelancer)
		}
		if selected.Status != models.StatusPending {
			return NewNotEligibleError("application of %s to job %d is %s", freelancer, jobID, selected.Status)
		}
		if !selected.HasPaidFee {
			return NewNotEligibleError("application fee of %s for job %d is unpaid", freelancer, jobID)
		}

		selected.Status = models.StatusSelected
		selected.WorkStatus = models.WorkInProgress
		if err := updateApplication(ctx, tx, selected); err != nil {
			return err
		}
		for i := range apps {
			a := &apps[i]
			if a == selected || a.Status != models.StatusPending {
				continue
			}
			a.Status = models.StatusRejected
			if err := updateApplication(ctx, tx, a); err != nil {
				return err
			}
			losers = append(losers, a.Freelancer)
		}
		return nil
	})
	if err != nil {
		e.count(op, err)
		return nil, err
	}

	e.count(op, nil)
	e.opts.logger.Info("freelancer selected", "job_id", jobID, "freelancer", selected.Freelancer, "rejected", len(losers))
	e.opts.publish(ctx, notify.Event{Kind: notify.KindSelected, JobID: jobID, Client: job.Client, Freelancer: selected.Freelancer, Actor: caller})
	for _, f := range losers {
		e.opts.publish(ctx, notify.Event{Kind: notify.KindNotSelected, JobID: jobID, Client: job.Client, Freelancer: f, Actor: caller})
	}
	return selected, nil
}

// SubmitWork records the selected freelancer's deliverable on both the
// application and the job. A rejected submission may be replaced this way.
func (e *ApplicationEngine) SubmitWork(ctx context.Context, caller string, jobID int64, sub models.Submission) (*models.Application, error) {
	const op = "submit_work"
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}
	if err := e.validateSubmission(ctx, &sub); err != nil {
		e.count(op, err)
		return nil, err
	}

	unlock, err := e.locks.lock(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for job %d: %w", jobID, err)
	}
	defer unlock()

	var (
		job *models.Job
		app *models.Application
	)
	err = e.store.WithTx(ctx, func(tx repository.EntityStore) error {
		var err error
		job, err = getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		app, err = tx.GetApplication(ctx, jobID, caller)
		if err != nil {
			return fmt.Errorf("get application: %w", err)
		}
		if app == nil || app.Status != models.StatusSelected || !canSubmit(app.WorkStatus) {
			return NewNotSelectedError(jobID, caller, app)
		}

		app.WorkStatus = models.WorkSubmitted
		app.Submission = &models.SubmissionData{Submission: sub, SubmittedAt: e.opts.nowMillis()}
		if err := updateApplication(ctx, tx, app); err != nil {
			return err
		}
		return recordSubmission(ctx, tx, jobID, sub)
	})
	if err != nil {
		e.count(op, err)
		return nil, err
	}

	e.count(op, nil)
	e.opts.logger.Info("work submitted", "job_id", jobID, "freelancer", caller, "type", sub.Type)
	e.opts.publish(ctx, notify.Event{Kind: notify.KindWorkSubmitted, JobID: jobID, Client: job.Client, Freelancer: caller, Actor: caller})
	return app, nil
}

func canSubmit(ws models.WorkStatus) bool {
	switch ws {
	case models.WorkNotStarted, models.WorkInProgress, models.WorkRejected:
		return true
	}
	return false
}

func (e *ApplicationEngine) validateSubmission(ctx context.Context, sub *models.Submission) error {
	sub.Content = strings.TrimSpace(sub.Content)
	sub.Description = strings.TrimSpace(sub.Description)
	if err := e.validate.Struct(sub); err != nil {
		return NewValidationError("invalid submission: %v", err)
	}
	if sub.Type == models.SubmissionLink {
		u, err := url.Parse(sub.Content)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return NewValidationError("invalid submission: link must be an absolute http(s) URL")
		}
	}
	if e.opts.submissions != nil {
		if err := e.opts.submissions.Validate(ctx, *sub); err != nil {
			return NewValidationError("invalid submission: %v", err)
		}
	}
	return nil
}

// ApproveWork releases the bounty to the freelancer whose submission is under
// review, then marks the work approved and the job completed.
func (e *ApplicationEngine) ApproveWork(ctx context.Context, caller string, jobID int64) (*models.Application, error) {
	const op = "approve_work"
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.lock(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for job %d: %w", jobID, err)
	}
	defer unlock()

	job, app, err := e.submitted(ctx, e.store, caller, jobID)
	if err != nil {
		e.count(op, err)
		return nil, err
	}

	receipt, err := e.unrecorded(ctx, jobID, models.ReceiptBounty, app.Freelancer)
	if err != nil {
		e.count(op, err)
		return nil, err
	}
	if receipt == nil {
		receipt, err = e.settle(ctx, models.ReceiptBounty, func(ctx context.Context) (*settlement.Receipt, error) {
			return e.settler.ReleaseBounty(ctx, jobID, app.Freelancer, job.Bounty)
		})
		if err != nil {
			e.count(op, err)
			return nil, err
		}
	} else {
		e.opts.logger.Warn("bounty already released, completing approval", "job_id", jobID, "receipt", receipt.ID)
	}

	ctx, cancel := commitContext(ctx)
	defer cancel()
	e.recordReceipt(ctx, receipt)

	checked := app.Version
	err = e.store.WithTx(ctx, func(tx repository.EntityStore) error {
		var err error
		_, app, err = e.submitted(ctx, tx, caller, jobID)
		if err != nil {
			return err
		}
		if app.Version != checked {
			return NewConflictError(fmt.Sprintf("application %d/%s", jobID, app.Freelancer), repository.ErrConflict)
		}
		app.WorkStatus = models.WorkApproved
		if err := updateApplication(ctx, tx, app); err != nil {
			return err
		}
		return markCompleted(ctx, tx, jobID)
	})
	if err != nil {
		e.opts.logger.Error("bounty released but approval not recorded", "job_id", jobID, "receipt", receipt.ID, "err", err)
		e.count(op, err)
		return nil, err
	}

	e.count(op, nil)
	e.opts.logger.Info("work approved", "job_id", jobID, "freelancer", app.Freelancer, "bounty", job.Bounty.String(), "tx_hash", receipt.TxHash)
	e.opts.publish(ctx, notify.Event{Kind: notify.KindWorkApproved, JobID: jobID, Client: job.Client, Freelancer: app.Freelancer, Actor: caller})
	return app, nil
}

// RejectWork sends the submission back to the freelancer, who may submit again.
func (e *ApplicationEngine) RejectWork(ctx context.Context, caller string, jobID int64) (*models.Application, error) {
	const op = "reject_work"
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}

	unlock, err := e.locks.lock(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("wait for job %d: %w", jobID, err)
	}
	defer unlock()

	var (
		job *models.Job
		app *models.Application
	)
	err = e.store.WithTx(ctx, func(tx repository.EntityStore) error {
		var err error
		job, app, err = e.submitted(ctx, tx, caller, jobID)
		if err != nil {
			return err
		}
		app.WorkStatus = models.WorkRejected
		return updateApplication(ctx, tx, app)
	})
	if err != nil {
		e.count(op, err)
		return nil, err
	}

	e.count(op, nil)
	e.opts.logger.Info("work rejected", "job_id", jobID, "freelancer", app.Freelancer)
	e.opts.publish(ctx, notify.Event{Kind: notify.KindWorkRejected, JobID: jobID, Client: job.Client, Freelancer: app.Freelancer, Actor: caller})
	return app, nil
}

// submitted returns the caller's job and its single application awaiting review.
func (e *ApplicationEngine) submitted(ctx context.Context, store repository.EntityStore, caller string, jobID int64) (*models.Job, *models.Application, error) {
	job, err := e.clientJob(ctx, store, caller, jobID)
	if err != nil {
		return nil, nil, err
	}
	apps, err := store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("list applications: %w", err)
	}

	var found *models.Application
	for i := range apps {
		a := &apps[i]
		if a.Status != models.StatusSelected || a.WorkStatus != models.WorkSubmitted {
			continue
		}
		if found != nil {
			return nil, nil, NewNoSubmissionError(jobID)
		}
		found = a
	}
	if found == nil || job.IsCompleted {
		return nil, nil, NewNoSubmissionError(jobID)
	}
	return job, found, nil
}

// ApplicationsForJob lists every application to a job. Only the job's client
// may see them.
func (e *ApplicationEngine) ApplicationsForJob(ctx context.Context, caller string, jobID int64) ([]models.Application, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}
	if _, err := e.clientJob(ctx, e.store, caller, jobID); err != nil {
		return nil, err
	}
	apps, err := e.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

func (e *ApplicationEngine) MyApplications(ctx context.Context, caller string) ([]models.Application, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}
	apps, err := e.store.ListApplicationsByFreelancer(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// StatusFor resolves the caller's standing on a job along with their
// application, which is nil when they have not applied.
func (e *ApplicationEngine) StatusFor(ctx context.Context, caller string, jobID int64) (Status, *models.Application, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return "", nil, err
	}
	job, err := getJob(ctx, e.store, jobID)
	if err != nil {
		return "", nil, err
	}
	app, err := e.store.GetApplication(ctx, jobID, caller)
	if err != nil {
		return "", nil, fmt.Errorf("get application: %w", err)
	}
	return Resolve(job, app), app, nil
}

func (e *ApplicationEngine) clientJob(ctx context.Context, store repository.JobRepo, caller string, jobID int64) (*models.Job, error) {
	job, err := getJob(ctx, store, jobID)
	if err != nil {
		return nil, err
	}
	if !identity.SameAddress(job.Client, caller) {
		return nil, NewNotJobClientError(caller, jobID)
	}
	return job, nil
}

func (e *ApplicationEngine) settle(ctx context.Context, kind models.ReceiptKind, call func(context.Context) (*settlement.Receipt, error)) (*settlement.Receipt, error) {
	op := "pay fee"
	if kind == models.ReceiptBounty {
		op = "release bounty"
	}
	if e.settler == nil {
		return nil, NewSettlementError(op, settlement.ErrUnavailable)
	}

	if e.opts.settlementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.settlementTimeout)
		defer cancel()
	}

	start := time.Now()
	r, err := call(ctx)
	if err == nil && (r == nil || r.Status != settlement.StatusConfirmed) {
		err = fmt.Errorf("%w: receipt is not confirmed", settlement.ErrRejected)
	}
	if err != nil {
		metrics.ObserveSettlement(string(kind), metrics.OutcomeError, time.Since(start))
		e.opts.logger.Warn("settlement failed", "kind", kind, "err", err)
		return nil, NewSettlementError(op, err)
	}
	metrics.ObserveSettlement(string(kind), metrics.OutcomeOK, time.Since(start))
	return r, nil
}

// recordReceipt keeps a confirmed settlement in the local ledger. It is
// committed on its own so a payment survives a failed state transition.
func (e *ApplicationEngine) recordReceipt(ctx context.Context, r *settlement.Receipt) {
	m := r.Model()
	m.Created = e.opts.nowMillis()
	if err := e.store.CreateReceipt(ctx, m); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		e.opts.logger.Error("record receipt", "receipt", r.ID, "kind", r.Kind, "job_id", r.JobID, "err", err)
	}
}

// unrecorded returns a confirmed receipt of kind to party for the job that no
// transition has consumed yet, or nil. A fee receipt is unconsumed while the
// party has no application; a bounty receipt while the job is still open.
func (e *ApplicationEngine) unrecorded(ctx context.Context, jobID int64, kind models.ReceiptKind, party string) (*settlement.Receipt, error) {
	receipts, err := e.store.ListReceiptsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	for _, r := range receipts {
		if r.Kind != kind || !identity.SameAddress(r.Party, party) {
			continue
		}
		return &settlement.Receipt{
			ID:     r.ID,
			Kind:   r.Kind,
			JobID:  r.JobID,
			Party:  r.Party,
			Amount: r.Amount,
			TxHash: r.TxHash,
			Status: settlement.StatusConfirmed,
		}, nil
	}
	return nil, nil
}

// commitContext detaches the writes that follow a confirmed settlement from
// the caller's cancellation while still bounding them.
func commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
}

func (e *ApplicationEngine) count(op string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeRejected
		var se *SettlementError
		if errors.As(err, &se) || !isDomainError(err) {
			outcome = metrics.OutcomeError
		}
	}
	metrics.IncreaseTransitionsTotal(op, outcome)
}

func updateApplication(ctx context.Context, store repository.ApplicationRepo, a *models.Application) error {
	err := store.UpdateApplication(ctx, a)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return NewApplicationNotFoundError(a.JobID, a.Freelancer)
	case errors.Is(err, repository.ErrConflict):
		return NewConflictError(fmt.Sprintf("application %d/%s", a.JobID, a.Freelancer), err)
	}
	return fmt.Errorf("update application %d/%s: %w", a.JobID, a.Freelancer, err)
}

func normalizeCaller(caller string) (string, error) {
	addr, err := identity.NormalizeAddress(caller)
	if err != nil {
		return "", NewValidationError("caller: %v", err)
	}
	return addr, nil
}

func isDomainError(err error) bool {
	var (
		ve  *ValidationError
		nf  *NotFoundError
		de  *DuplicateApplicationError
		ne  *NotEligibleError
		nse *NotSelectedError
		nos *NoSubmissionError
		ce  *ConflictError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &de) || errors.As(err, &ne) ||
		errors.As(err, &nse) || errors.As(err, &nos) || errors.As(err, &ce)
}
