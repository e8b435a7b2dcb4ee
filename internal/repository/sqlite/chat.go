package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
)

func (r *SQLiteRepo) CreateMessage(ctx context.Context, m *models.ChatMessage) error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Created.IsZero() {
		m.Created = time.Now().UTC()
	}

	if _, err := r.conn.Exec(ctx, `INSERT INTO chat_messages (id, job_id, staff_id, role, content, created) VALUES (?, ?, ?, ?, ?, ?)`, m.ID, m.JobID, m.StaffID, string(m.Role), m.Content, m.Created.UnixMilli()); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}

	return nil
}

// ListMessages returns the most recent limit messages of a job, oldest first.
// A non-positive limit returns the whole history.
func (r *SQLiteRepo) ListMessages(ctx context.Context, jobID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}

	q := `SELECT id, job_id, staff_id, role, content, created FROM (SELECT rowid AS seq, id, job_id, staff_id, role, content, created FROM chat_messages WHERE job_id = ? ORDER BY created DESC, seq DESC LIMIT ?) ORDER BY created ASC, seq ASC`
	rows, err := r.conn.QueryRows(ctx, q, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m       models.ChatMessage
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.JobID, &m.StaffID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Role = models.ChatRole(role)
		m.Created = time.UnixMilli(created).UTC()
		out = append(out, m)
	}

	return out, rows.Err()
}
