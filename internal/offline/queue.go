// Package offline queues accept/reject actions taken without connectivity and
// replays them in order once the device is back online.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// ErrUnreachable marks an apply failure caused by missing connectivity rather
// than a rejection by the job store.
var ErrUnreachable = errors.New("job store unreachable")

// ErrRefused marks an apply failure the job store will repeat on every try,
// such as a job reassigned while the device was offline.
var ErrRefused = errors.New("action refused by job store")

// Applier performs the remote write an action stands for.
type Applier interface {
	Apply(ctx context.Context, a models.OfflineAction) error
}

type ApplierFunc func(ctx context.Context, a models.OfflineAction) error

func (f ApplierFunc) Apply(ctx context.Context, a models.OfflineAction) error { return f(ctx, a) }

type AcceptData struct {
	Acknowledged []string    `json:"acknowledged,omitempty"`
	Override     bool        `json:"override,omitempty"`
	Fix          *models.Fix `json:"fix,omitempty"`
}

type RejectData struct {
	Reason string `json:"reason"`
}

// Queue persists pending actions per job. Each job's list is read, modified
// and written back as a whole.
type Queue struct {
	repo   repository.OfflineQueueRepo
	logger *slog.Logger
	mu     sync.Mutex
}

func NewQueue(repo repository.OfflineQueueRepo, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{repo: repo, logger: logger}
}

// Enqueue appends an unsynced action to the job's list.
func (q *Queue) Enqueue(ctx context.Context, typ models.OfflineActionType, jobID, staffID string, data any) (models.OfflineAction, error) {
	a, err := newAction(typ, jobID, staffID, data)
	if err != nil {
		return models.OfflineAction{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.repo.LoadQueue(ctx, jobID)
	if err != nil {
		return models.OfflineAction{}, err
	}
	list = append(list, a)
	if err := q.repo.SaveQueue(ctx, jobID, list); err != nil {
		return models.OfflineAction{}, err
	}

	q.logger.Info("action queued offline", "job_id", jobID, "staff_id", staffID, "type", typ, "action_id", a.ID)
	return a, nil
}

// Pending returns the unsynced actions of a job in FIFO order.
func (q *Queue) Pending(ctx context.Context, jobID string) ([]models.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.repo.LoadQueue(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var out []models.OfflineAction
	for _, a := range list {
		if !a.Synced {
			out = append(out, a)
		}
	}
	return out, nil
}

// All returns every persisted action of every job, synced or not.
func (q *Queue) All(ctx context.Context) ([]models.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids, err := q.repo.ListQueuedJobIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.OfflineAction
	for _, id := range ids {
		list, err := q.repo.LoadQueue(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

type ReplayResult struct {
	Synced int
	Failed int
}

// Replay applies the job's unsynced actions in FIFO order. An action flips to
// synced only after its own apply succeeded; a failure is recorded and the
// next action is still attempted. Synced and refused actions are never
// applied again; a refused action keeps synced false.
func (q *Queue) Replay(ctx context.Context, jobID string, applier Applier) (ReplayResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res ReplayResult
	list, err := q.repo.LoadQueue(ctx, jobID)
	if err != nil {
		return res, err
	}

	for i := range list {
		if list[i].Synced || list[i].Refused {
			continue
		}
		if err := applier.Apply(ctx, list[i]); err != nil {
			list[i].LastError = err.Error()
			list[i].Refused = errors.Is(err, ErrRefused)
			res.Failed++
			q.logger.Warn("offline replay failed", "job_id", jobID, "action_id", list[i].ID, "type", list[i].Type, "err", err)
			continue
		}

		at := time.Now().UTC()
		list[i].Synced = true
		list[i].SyncedAt = &at
		list[i].LastError = ""
		res.Synced++
		// persist progress per action so a crash never replays a synced one
		if err := q.repo.SaveQueue(ctx, jobID, list); err != nil {
			return res, err
		}
	}
	if res.Failed > 0 {
		if err := q.repo.SaveQueue(ctx, jobID, list); err != nil {
			return res, err
		}
	}

	if res.Synced > 0 || res.Failed > 0 {
		q.logger.Info("offline replay", "job_id", jobID, "synced", res.Synced, "failed", res.Failed)
	}
	return res, nil
}

func newAction(typ models.OfflineActionType, jobID, staffID string, data any) (models.OfflineAction, error) {
	a := models.OfflineAction{
		ID:        uuid.NewString(),
		Type:      typ,
		JobID:     jobID,
		StaffID:   staffID,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return models.OfflineAction{}, fmt.Errorf("encode action data: %w", err)
		}
		a.Data = b
	}
	return a, nil
}

// ReplayAll replays every job that has a persisted list.
func (q *Queue) ReplayAll(ctx context.Context, applier Applier) (ReplayResult, error) {
	ids, err := q.repo.ListQueuedJobIDs(ctx)
	if err != nil {
		return ReplayResult{}, err
	}

	var total ReplayResult
	var errs []error
	for _, id := range ids {
		r, err := q.Replay(ctx, id, applier)
		total.Synced += r.Synced
		total.Failed += r.Failed
		if err != nil {
			errs = append(errs, fmt.Errorf("replay %s: %w", id, err))
		}
	}
	return total, errors.Join(errs...)
}
