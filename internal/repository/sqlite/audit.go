package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
)

func (r *SQLiteRepo) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e == nil {
		return fmt.Errorf("audit entry is nil")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}

	var details any
	if len(e.Details) > 0 {
		details = string(e.Details)
	}

	q := `INSERT INTO audit_log (id, job_id, session_id, staff_id, event, from_status, to_status, details_json, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.conn.Exec(ctx, q, e.ID, e.JobID, e.SessionID, e.StaffID, string(e.Event), nullString(string(e.FromStatus)), nullString(string(e.ToStatus)), details, e.Created.UnixMilli()); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}

	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
