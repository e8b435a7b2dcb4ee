package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// Legacy documents carry the assignee in assigned_staff_id. Reads coalesce both
// columns so callers only ever see Job.AssignedTo.
const jobColumns = `id, title, description, status, priority, address, latitude, longitude, requirements_json, booking_json, COALESCE(assigned_to, assigned_staff_id, ''), scheduled_for, accepted_at, started_at, completed_at, rejected_at, rejection_reason, acknowledged_json, start_location_json, completion_json, created, updated`

const (
	assigneeColumn       = "assigned_to"
	legacyAssigneeColumn = "assigned_staff_id"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepo) CreateJob(ctx context.Context, j *models.Job) (string, error) {
	if j == nil {
		return "", fmt.Errorf("job is nil")
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = models.StatusAssigned
	}
	if j.Priority == "" {
		j.Priority = models.PriorityMedium
	}

	reqs, err := marshalJSON(j.Requirements, "[]")
	if err != nil {
		return "", fmt.Errorf("marshal requirements: %w", err)
	}
	booking, err := marshalNullable(j.BookingDetails)
	if err != nil {
		return "", fmt.Errorf("marshal booking: %w", err)
	}

	var lat, lng any
	if c := j.Location.Coordinates; c != nil {
		lat, lng = c.Latitude, c.Longitude
	}

	ts := now()
	q := `INSERT INTO jobs (id, title, description, status, priority, address, latitude, longitude, requirements_json, booking_json, assigned_to, scheduled_for, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.conn.Exec(ctx, q, j.ID, j.Title, j.Description, string(j.Status), string(j.Priority), j.Location.Address, lat, lng, reqs, booking, j.AssignedTo, toMillis(j.ScheduledFor), ts, ts); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}

	return j.ID, nil
}

func (r *SQLiteRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(r.conn.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	return j, nil
}

// ListJobsByAssignee queries the canonical assignee column and retries against
// the legacy column only when the first query yields nothing.
func (r *SQLiteRepo) ListJobsByAssignee(ctx context.Context, staffID string, f repository.JobFilter) ([]models.Job, error) {
	jobs, err := r.listByColumn(ctx, assigneeColumn, staffID, f)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		return jobs, nil
	}

	r.logger.Debug("assignee fallback", "staff_id", staffID, "column", legacyAssigneeColumn)
	return r.listByColumn(ctx, legacyAssigneeColumn, staffID, f)
}

func (r *SQLiteRepo) listByColumn(ctx context.Context, column, staffID string, f repository.JobFilter) ([]models.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + column + ` = ?`
	args := []any{staffID}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY COALESCE(scheduled_for, created) ASC, id ASC`

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs by %s: %w", column, err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}

	return out, rows.Err()
}

// UpdateJob applies every non-nil field of u in a single statement. There is
// no version check; the last writer wins.
func (r *SQLiteRepo) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.Requirements != nil {
		b, err := json.Marshal(u.Requirements)
		if err != nil {
			return fmt.Errorf("marshal requirements: %w", err)
		}
		set("requirements_json", string(b))
	}
	if u.AcceptedAt != nil {
		set("accepted_at", toMillis(u.AcceptedAt))
	}
	if u.StartedAt != nil {
		set("started_at", toMillis(u.StartedAt))
	}
	if u.CompletedAt != nil {
		set("completed_at", toMillis(u.CompletedAt))
	}
	if u.RejectedAt != nil {
		set("rejected_at", toMillis(u.RejectedAt))
	}
	if u.RejectionReason != nil {
		set("rejection_reason", *u.RejectionReason)
	}
	if u.Acknowledged != nil {
		b, err := json.Marshal(u.Acknowledged)
		if err != nil {
			return fmt.Errorf("marshal acknowledged: %w", err)
		}
		set("acknowledged_json", string(b))
	}
	if u.StartLocation != nil {
		b, err := json.Marshal(u.StartLocation)
		if err != nil {
			return fmt.Errorf("marshal start location: %w", err)
		}
		set("start_location_json", string(b))
	}
	if u.Completion != nil {
		b, err := json.Marshal(u.Completion)
		if err != nil {
			return fmt.Errorf("marshal completion: %w", err)
		}
		set("completion_json", string(b))
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated", now())
	args = append(args, id)

	res, err := r.conn.Exec(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanJob(s rowScanner) (*models.Job, error) {
	var (
		j                                                 models.Job
		status, priority                                  string
		lat, lng                                          sql.NullFloat64
		reqs                                              string
		booking, reason, acked, startLoc, completion      sql.NullString
		scheduled, accepted, started, completed, rejected sql.NullInt64
		created, updated                                  int64
	)
	if err := s.Scan(&j.ID, &j.Title, &j.Description, &status, &priority, &j.Location.Address, &lat, &lng, &reqs, &booking, &j.AssignedTo, &scheduled, &accepted, &started, &completed, &rejected, &reason, &acked, &startLoc, &completion, &created, &updated); err != nil {
		return nil, err
	}

	j.Status = models.JobStatus(status)
	j.Priority = models.Priority(priority)
	if lat.Valid && lng.Valid {
		j.Location.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if err := json.Unmarshal([]byte(reqs), &j.Requirements); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	if booking.Valid {
		j.BookingDetails = &models.BookingDetails{}
		if err := json.Unmarshal([]byte(booking.String), j.BookingDetails); err != nil {
			return nil, fmt.Errorf("decode booking: %w", err)
		}
	}
	if acked.Valid {
		if err := json.Unmarshal([]byte(acked.String), &j.Acknowledged); err != nil {
			return nil, fmt.Errorf("decode acknowledged: %w", err)
		}
	}
	if startLoc.Valid {
		j.StartLocation = &models.Fix{}
		if err := json.Unmarshal([]byte(startLoc.String), j.StartLocation); err != nil {
			return nil, fmt.Errorf("decode start location: %w", err)
		}
	}
	if completion.Valid {
		j.Completion = &models.CompletionRecord{}
		if err := json.Unmarshal([]byte(completion.String), j.Completion); err != nil {
			return nil, fmt.Errorf("decode completion: %w", err)
		}
	}
	j.RejectionReason = reason.String
	j.ScheduledFor = fromMillis(scheduled)
	j.AcceptedAt = fromMillis(accepted)
	j.StartedAt = fromMillis(started)
	j.CompletedAt = fromMillis(completed)
	j.RejectedAt = fromMillis(rejected)
	j.Created = time.UnixMilli(created).UTC()
	j.Updated = time.UnixMilli(updated).UTC()

	return &j, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func marshalNullable(v any) (any, error) {
	s, err := marshalJSON(v, "")
	if err != nil || s == "" {
		return nil, err
	}
	return s, nil
}
