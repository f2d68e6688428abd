package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

type receiptRow struct {
	ID      string         `db:"id"`
	Kind    string         `db:"kind"`
	JobID   int64          `db:"job_id"`
	Party   string         `db:"party"`
	Amount  models.Amount  `db:"amount"`
	TxHash  sql.NullString `db:"tx_hash"`
	Created int64          `db:"created"`
}

// CreateReceipt appends a confirmed settlement to the local ledger.
func (r *SQLiteRepo) CreateReceipt(ctx context.Context, rc *models.Receipt) error {
	if rc == nil {
		return fmt.Errorf("receipt is nil")
	}
	if rc.Created == 0 {
		rc.Created = now()
	}

	txHash := sql.NullString{String: rc.TxHash, Valid: rc.TxHash != ""}
	_, err := r.q.ExecContext(ctx, `INSERT INTO receipts (id, kind, job_id, party, amount, tx_hash, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.Kind, rc.JobID, rc.Party, rc.Amount, txHash, rc.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("receipt %s: %w", rc.ID, repository.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *SQLiteRepo) ListReceiptsByJob(ctx context.Context, jobID int64) ([]models.Receipt, error) {
	var rows []receiptRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT id, kind, job_id, party, amount, tx_hash, created FROM receipts WHERE job_id = ? ORDER BY created, id`, jobID); err != nil {
		return nil, err
	}

	out := make([]models.Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Receipt{
			ID:      row.ID,
			Kind:    models.ReceiptKind(row.Kind),
			JobID:   row.JobID,
			Party:   row.Party,
			Amount:  row.Amount,
			TxHash:  row.TxHash.String,
			Created: row.Created,
		})
	}
	return out, nil
}
