package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
)

func (r *SQLiteRepo) CreateStaff(ctx context.Context, s *models.Staff) (string, error) {
	if s == nil {
		return "", fmt.Errorf("staff is nil")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	ts := now()
	if _, err := r.conn.Exec(ctx, `INSERT INTO staff (id, staff_code, name, pin_hash, active, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.ID, s.StaffCode, s.Name, s.PINHash, s.Active, ts, ts); err != nil {
		return "", fmt.Errorf("insert staff: %w", err)
	}

	return s.ID, nil
}

// GetStaffByID returns nil, nil when no staff member matches.
func (r *SQLiteRepo) GetStaffByID(ctx context.Context, id string) (*models.Staff, error) {
	return r.scanStaff(r.conn.QueryRow(ctx, `SELECT id, staff_code, name, pin_hash, active, created, updated FROM staff WHERE id = ?`, id))
}

// GetStaffByCode returns nil, nil when no staff member matches.
func (r *SQLiteRepo) GetStaffByCode(ctx context.Context, code string) (*models.Staff, error) {
	return r.scanStaff(r.conn.QueryRow(ctx, `SELECT id, staff_code, name, pin_hash, active, created, updated FROM staff WHERE staff_code = ?`, code))
}

func (r *SQLiteRepo) scanStaff(row *sql.Row) (*models.Staff, error) {
	var s models.Staff
	if err := row.Scan(&s.ID, &s.StaffCode, &s.Name, &s.PINHash, &s.Active, &s.Created, &s.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return &s, nil
}
