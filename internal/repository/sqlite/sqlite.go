package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/garnizeh/cleardeal/internal/db"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
// A repo returned to a WithTx callback runs every statement inside that
// transaction.
type SQLiteRepo struct {
	conn   *db.DB
	q      sqlx.ExtContext
	tx     *sqlx.Tx
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var (
	_ repository.EntityStore = (*SQLiteRepo)(nil)
	_ repository.UserRepo    = (*SQLiteRepo)(nil)
	_ repository.SchemaRepo  = (*SQLiteRepo)(nil)
	_ repository.QueueRepo   = (*SQLiteRepo)(nil)
)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, q: conn.X(), logger: logger}
}

// WithTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (r *SQLiteRepo) WithTx(ctx context.Context, fn func(repository.EntityStore) error) error {
	return r.withTx(ctx, func(tr *SQLiteRepo) error { return fn(tr) })
}

func (r *SQLiteRepo) withTx(ctx context.Context, fn func(*SQLiteRepo) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.conn.X().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	child := &SQLiteRepo{conn: r.conn, q: tx, tx: tx, logger: r.logger}

	if err := fn(child); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) DataVersion(ctx context.Context) (int64, error) {
	if r.tx == nil {
		return r.conn.DataVersion(ctx)
	}
	var v int64
	if err := sqlx.GetContext(ctx, r.q, &v, `PRAGMA data_version`); err != nil {
		return 0, fmt.Errorf("data version: %w", err)
	}
	return v, nil
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

// isUniqueViolation reports whether err is a primary key or unique constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
