package escrow

import "github.com/garnizeh/cleardeal/internal/models"

// Status is the freelancer-facing summary of where an application stands.
// It is always derived, never stored.
type Status string

const (
	StatusNotApplied       Status = "not_applied"
	StatusFeePending       Status = "fee_pending"
	StatusPendingSelection Status = "pending_selection"
	StatusRejected         Status = "rejected"
	StatusCanSubmit        Status = "can_submit"
	StatusWorkSubmitted    Status = "work_submitted"
	StatusWorkApproved     Status = "work_approved"
	StatusWorkRejected     Status = "work_rejected"
	StatusUnknown          Status = "unknown"
)

// Resolve maps a job and the caller's application (nil when there is none)
// to a Status. It has no side effects.
func Resolve(job *models.Job, app *models.Application) Status {
	if app == nil {
		return StatusNotApplied
	}
	if job != nil && job.ID != app.JobID {
		return StatusUnknown
	}
	if !app.HasPaidFee {
		return StatusFeePending
	}

	switch app.Status {
	case models.StatusPending:
		return StatusPendingSelection
	case models.StatusRejected:
		return StatusRejected
	case models.StatusSelected:
		switch app.WorkStatus {
		case models.WorkNotStarted, models.WorkInProgress:
			return StatusCanSubmit
		case models.WorkSubmitted:
			return StatusWorkSubmitted
		case models.WorkApproved:
			return StatusWorkApproved
		case models.WorkRejected:
			return StatusWorkRejected
		}
	}
	return StatusUnknown
}

var statusMessages = map[Status]string{
	StatusNotApplied:       "You have not applied to this job.",
	StatusFeePending:       "Your application fee has not been confirmed yet.",
	StatusPendingSelection: "Waiting for the client to select a freelancer.",
	StatusRejected:         "The client selected another freelancer.",
	StatusCanSubmit:        "You were selected. Submit your work when it is ready.",
	StatusWorkSubmitted:    "Your work was submitted and is awaiting review.",
	StatusWorkApproved:     "Your work was approved and the bounty released.",
	StatusWorkRejected:     "Your work was rejected. You can submit a revision.",
	StatusUnknown:          "The application is in an unexpected state.",
}

func Message(s Status) string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return statusMessages[StatusUnknown]
}
