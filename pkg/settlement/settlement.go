// Package settlement moves fees and bounties through an external settlement
// service. Callers get either a confirmed Receipt or an error; pending
// settlements never surface as success.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/garnizeh/cleardeal/internal/models"
)

var (
	ErrRejected    = errors.New("settlement rejected")
	ErrTimeout     = errors.New("settlement timed out")
	ErrCanceled    = errors.New("settlement canceled")
	ErrCircuitOpen = errors.New("settlement circuit open")
	ErrUnavailable = errors.New("settlement service unavailable")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Receipt is the settlement service's proof that funds moved.
type Receipt struct {
	ID     string             `json:"id"`
	Kind   models.ReceiptKind `json:"kind"`
	JobID  int64              `json:"job_id"`
	Party  string             `json:"party"`
	Amount models.Amount      `json:"amount"`
	TxHash string             `json:"tx_hash,omitempty"`
	Status Status             `json:"status"`
}

// Model converts a confirmed receipt into the ledger row stored locally.
func (r *Receipt) Model() *models.Receipt {
	return &models.Receipt{ID: r.ID, Kind: r.Kind, JobID: r.JobID, Party: r.Party, Amount: r.Amount, TxHash: r.TxHash}
}

// Settler charges application fees and releases bounties. Both calls block
// until the settlement is final or ctx ends.
type Settler interface {
	PayFee(ctx context.Context, jobID int64, from string, amount models.Amount) (*Receipt, error)
	ReleaseBounty(ctx context.Context, jobID int64, to string, amount models.Amount) (*Receipt, error)
}

// package-level logger for pkg/settlement; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/settlement. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// contextError maps an ended context onto ErrCanceled or ErrTimeout.
func contextError(ctx context.Context, cause error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, cause)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, cause)
	}
	return nil
}
