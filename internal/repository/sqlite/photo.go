package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

const photoColumns = `id, job_id, staff_id, type, local_uri, remote_url, content_type, captured_at, uploaded_at`

func (r *SQLiteRepo) CreatePhoto(ctx context.Context, p *models.Photo) error {
	if p == nil {
		return fmt.Errorf("photo is nil")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CapturedAt.IsZero() {
		p.CapturedAt = time.Now().UTC()
	}
	if p.ContentType == "" {
		p.ContentType = "image/jpeg"
	}

	q := `INSERT INTO photos (` + photoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.conn.Exec(ctx, q, p.ID, p.JobID, p.StaffID, string(p.Type), p.LocalURI, nullString(p.RemoteURL), p.ContentType, p.CapturedAt.UnixMilli(), toMillis(p.UploadedAt)); err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}

	return nil
}

func (r *SQLiteRepo) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	p, err := scanPhoto(r.conn.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}

	return p, nil
}

func (r *SQLiteRepo) ListPhotosByJob(ctx context.Context, jobID string) ([]models.Photo, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+photoColumns+` FROM photos WHERE job_id = ? ORDER BY captured_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var out []models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, *p)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) MarkPhotoUploaded(ctx context.Context, id, remoteURL string) error {
	res, err := r.conn.Exec(ctx, `UPDATE photos SET remote_url = ?, uploaded_at = ? WHERE id = ?`, remoteURL, now(), id)
	if err != nil {
		return fmt.Errorf("mark photo uploaded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanPhoto(s rowScanner) (*models.Photo, error) {
	var (
		p          models.Photo
		typ        string
		remote     sql.NullString
		captured   int64
		uploadedAt sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.JobID, &p.StaffID, &typ, &p.LocalURI, &remote, &p.ContentType, &captured, &uploadedAt); err != nil {
		return nil, err
	}
	p.Type = models.PhotoType(typ)
	p.RemoteURL = remote.String
	p.CapturedAt = time.UnixMilli(captured).UTC()
	p.UploadedAt = fromMillis(uploadedAt)

	return &p, nil
}
