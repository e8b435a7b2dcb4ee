package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garnizeh/fieldops/pkg/models"
)

// Enqueue inserts a task into the tasks table and returns the new ID
func (r *SQLiteRepo) Enqueue(ctx context.Context, t *models.BackgroundTask) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("task is nil")
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = 5
	}
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = time.Now().UTC()
	}
	ts := time.Now().UTC().Unix()
	q := `INSERT INTO tasks(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := r.conn.Exec(ctx, q, t.Type, string(t.Payload), "queued", t.Attempts, t.MaxAttempts, t.Priority, t.ScheduledAt.UTC().Unix(), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}

	return res.LastInsertId()
}

// FetchNext claims the next runnable task respecting priority and schedule.
// The claim flips the row to running so concurrent workers never share a task.
func (r *SQLiteRepo) FetchNext(ctx context.Context) (*models.BackgroundTask, error) {
	var t *models.BackgroundTask
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		q := `SELECT id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated FROM tasks WHERE (status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ? ORDER BY priority ASC, scheduled_at ASC LIMIT 1`
		ts := time.Now().UTC().Unix()
		var (
			payload     sql.NullString
			scheduledAt int64
			nextTry     sql.NullInt64
			lastError   sql.NullString
			created     int64
			updated     int64
		)
		next := &models.BackgroundTask{}
		if err := tx.QueryRowContext(ctx, q, ts, ts).Scan(&next.ID, &next.Type, &payload, &next.Status, &next.Attempts, &next.MaxAttempts, &next.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("fetch next task: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = 'running', updated = ? WHERE id = ? AND status IN ('queued', 'retry')`, ts, next.ID)
		if err != nil {
			return fmt.Errorf("claim task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		next.Status = "running"
		next.ScheduledAt = time.Unix(scheduledAt, 0)
		next.Created = time.Unix(created, 0)
		next.Updated = time.Unix(ts, 0)
		if payload.Valid {
			next.Payload = json.RawMessage(payload.String)
		}
		if nextTry.Valid {
			nt := time.Unix(nextTry.Int64, 0)
			next.NextTryAt = &nt
		}
		next.LastError = lastError.String
		t = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// UpdateTask updates attempts, status, next_try_at, last_error
func (r *SQLiteRepo) UpdateTask(ctx context.Context, t *models.BackgroundTask) error {
	var nextTry any
	if t.NextTryAt != nil {
		nextTry = t.NextTryAt.Unix()
	}
	q := `UPDATE tasks SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.conn.Exec(ctx, q, t.Status, t.Attempts, nextTry, t.LastError, time.Now().UTC().Unix(), t.ID)

	return err
}

// MoveToDeadLetter moves a task to dead_letter_tasks and deletes the original
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, t *models.BackgroundTask) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_tasks(task_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, t.ID, t.Type, string(t.Payload), t.Attempts, t.LastError, time.Now().UTC().Unix()); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, t.ID)
		return err
	})
}
