package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

const userColumns = `id, address, role, name, email, updated, password_hash`

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}

	res, err := r.q.ExecContext(ctx, `INSERT INTO users (address, role, name, email, updated, password_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Address, u.Role, u.Name, u.Email, now(), u.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("user %s: %w", u.Email, repository.ErrDuplicate)
		}
		return 0, err
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepo) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE address = ? COLLATE NOCASE`, address)
}

func (r *SQLiteRepo) getUser(ctx context.Context, q string, arg any) (*models.User, error) {
	var u models.User
	if err := sqlx.GetContext(ctx, r.q, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &u, nil
}
