package settlement

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/garnizeh/cleardeal/internal/models"
)

// Ledger is an in-process Settler for development and tests. Every call
// confirms immediately unless a Rejecter refuses it.
type Ledger struct {
	mu       sync.Mutex
	receipts []Receipt
	reject   Rejecter
}

// Rejecter returns a non-nil reason to refuse a settlement.
type Rejecter func(kind models.ReceiptKind, jobID int64, party string, amount models.Amount) error

var _ Settler = (*Ledger)(nil)

func NewLedger(reject Rejecter) *Ledger {
	return &Ledger{reject: reject}
}

func (l *Ledger) PayFee(ctx context.Context, jobID int64, from string, amount models.Amount) (*Receipt, error) {
	return l.settle(ctx, models.ReceiptFee, jobID, from, amount)
}

func (l *Ledger) ReleaseBounty(ctx context.Context, jobID int64, to string, amount models.Amount) (*Receipt, error) {
	return l.settle(ctx, models.ReceiptBounty, jobID, to, amount)
}

func (l *Ledger) settle(ctx context.Context, kind models.ReceiptKind, jobID int64, party string, amount models.Amount) (*Receipt, error) {
	if err := contextError(ctx, ctx.Err()); err != nil {
		return nil, err
	}
	if l.reject != nil {
		if reason := l.reject(kind, jobID, party, amount); reason != nil {
			return nil, &rejection{reason}
		}
	}

	id := uuid.NewString()
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id))
	r := Receipt{
		ID:     id,
		Kind:   kind,
		JobID:  jobID,
		Party:  party,
		Amount: amount,
		TxHash: "0x" + hex.EncodeToString(h.Sum(nil)),
		Status: StatusConfirmed,
	}

	l.mu.Lock()
	l.receipts = append(l.receipts, r)
	l.mu.Unlock()

	logger.Debug("settlement: ledger confirmed", slog.String("kind", string(kind)), slog.Int64("job_id", jobID), slog.String("amount", amount.String()))
	return &r, nil
}

// Receipts returns a copy of every confirmed settlement.
func (l *Ledger) Receipts() []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Receipt, len(l.receipts))
	copy(out, l.receipts)
	return out
}

type rejection struct{ reason error }

func (r *rejection) Error() string { return ErrRejected.Error() + ": " + r.reason.Error() }

func (r *rejection) Is(target error) bool { return target == ErrRejected }

func (r *rejection) Unwrap() error { return r.reason }
