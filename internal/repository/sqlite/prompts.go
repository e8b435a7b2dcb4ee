package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/garnizeh/fieldops/pkg/models"
)

// Assistant answer schemas and prompt templates are versioned documents.
// Writes upsert by version; lookups of an unknown version return nil, nil.

const schemaColumns = `id, version, COALESCE(description, ''), schema_json, created, updated`

func (r *SQLiteRepo) CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error) {
	res, err := r.conn.Exec(ctx, `INSERT INTO assistant_schemas (version, description, schema_json, created, updated)
		VALUES (?, ?, ?, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(version) DO UPDATE SET description=excluded.description, schema_json=excluded.schema_json, updated=excluded.updated`,
		version, description, schemaJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error) {
	s, err := scanSchema(r.conn.QueryRow(ctx, `SELECT `+schemaColumns+` FROM assistant_schemas WHERE version = ?`, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+schemaColumns+` FROM assistant_schemas ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSchema(row rowScanner) (*models.Schema, error) {
	var s models.Schema
	if err := row.Scan(&s.ID, &s.Version, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateTemplate upserts a prompt template. A nil schemaVersion stores NULL
// and leaves the answer unvalidated.
func (r *SQLiteRepo) CreateTemplate(ctx context.Context, name, version, templateText string, schemaVersion *string) (int64, error) {
	var sv sql.NullString
	if schemaVersion != nil {
		sv = sql.NullString{String: *schemaVersion, Valid: true}
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO assistant_templates (name, version, template_text, schema_version, created, updated)
		VALUES (?, ?, ?, ?, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(name, version) DO UPDATE SET template_text=excluded.template_text, schema_version=excluded.schema_version, updated=excluded.updated`,
		name, version, templateText, sv)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetTemplate(ctx context.Context, name, version string) (*models.Template, error) {
	var (
		t  models.Template
		sv sql.NullString
	)
	err := r.conn.QueryRow(ctx, `SELECT id, name, version, template_text, schema_version, created, updated FROM assistant_templates WHERE name = ? AND version = ?`, name, version).
		Scan(&t.ID, &t.Name, &t.Version, &t.TemplateTxt, &sv, &t.Created, &t.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sv.Valid {
		t.SchemaVer = &sv.String
	}
	return &t, nil
}
