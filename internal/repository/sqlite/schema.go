package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/garnizeh/cleardeal/internal/models"
)

const schemaColumns = `id, version, COALESCE(description, '') AS description, schema_json, created, updated`

// CreateSchema inserts or updates a submission schema by version.
func (r *SQLiteRepo) CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error) {
	ts := now()
	res, err := r.q.ExecContext(ctx, `INSERT INTO submission_schemas (version, description, schema_json, created, updated) VALUES (?, ?, ?, ?, ?) ON CONFLICT(version) DO UPDATE SET description=excluded.description, schema_json=excluded.schema_json, updated=excluded.updated`, version, description, schemaJSON, ts, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error) {
	var s models.Schema
	if err := sqlx.GetContext(ctx, r.q, &s, `SELECT `+schemaColumns+` FROM submission_schemas WHERE version = ?`, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	var out []models.Schema
	if err := sqlx.SelectContext(ctx, r.q, &out, `SELECT `+schemaColumns+` FROM submission_schemas ORDER BY version`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) DeleteSchema(ctx context.Context, version string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM submission_schemas WHERE version = ?`, version)
	return err
}
