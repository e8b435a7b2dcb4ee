package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/fieldops/pkg/models"
)

// LoadQueue returns the persisted action list of a job, or nil when none exists.
func (r *SQLiteRepo) LoadQueue(ctx context.Context, jobID string) ([]models.OfflineAction, error) {
	var raw string
	if err := r.conn.QueryRow(ctx, `SELECT actions_json FROM offline_queues WHERE job_id = ?`, jobID).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load offline queue: %w", err)
	}

	var actions []models.OfflineAction
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, fmt.Errorf("decode offline queue: %w", err)
	}

	return actions, nil
}

// SaveQueue replaces the whole action list of a job.
func (r *SQLiteRepo) SaveQueue(ctx context.Context, jobID string, actions []models.OfflineAction) error {
	raw, err := marshalJSON(actions, "[]")
	if err != nil {
		return fmt.Errorf("encode offline queue: %w", err)
	}

	q := `INSERT INTO offline_queues (job_id, actions_json, updated) VALUES (?, ?, ?) ON CONFLICT(job_id) DO UPDATE SET actions_json=excluded.actions_json, updated=excluded.updated`
	if _, err := r.conn.Exec(ctx, q, jobID, raw, now()); err != nil {
		return fmt.Errorf("save offline queue: %w", err)
	}

	return nil
}

func (r *SQLiteRepo) ListQueuedJobIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT job_id FROM offline_queues ORDER BY updated ASC, job_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list offline queues: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}

	return out, rows.Err()
}
