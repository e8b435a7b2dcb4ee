package offline

import (
	"context"
	"errors"

	"github.com/garnizeh/fieldops/pkg/models"
)

// Dispatcher sends accept/reject actions straight to the job store while
// online and queues them otherwise.
type Dispatcher struct {
	monitor *Monitor
	queue   *Queue
	applier Applier
}

func NewDispatcher(monitor *Monitor, queue *Queue, applier Applier) *Dispatcher {
	return &Dispatcher{monitor: monitor, queue: queue, applier: applier}
}

// Outcome tells the caller whether the action reached the job store or was
// only recorded locally.
type Outcome struct {
	Queued bool
	Action models.OfflineAction
}

func (d *Dispatcher) Accept(ctx context.Context, jobID, staffID string, data AcceptData) (Outcome, error) {
	return d.dispatch(ctx, models.ActionAccept, jobID, staffID, data)
}

func (d *Dispatcher) Reject(ctx context.Context, jobID, staffID string, data RejectData) (Outcome, error) {
	return d.dispatch(ctx, models.ActionReject, jobID, staffID, data)
}

func (d *Dispatcher) dispatch(ctx context.Context, typ models.OfflineActionType, jobID, staffID string, data any) (Outcome, error) {
	if !d.monitor.Online() {
		a, err := d.queue.Enqueue(ctx, typ, jobID, staffID, data)
		return Outcome{Queued: true, Action: a}, err
	}

	a, err := newAction(typ, jobID, staffID, data)
	if err != nil {
		return Outcome{}, err
	}
	err = d.applier.Apply(ctx, a)
	if errors.Is(err, ErrUnreachable) {
		d.monitor.MarkOffline()
		a, err := d.queue.Enqueue(ctx, typ, jobID, staffID, data)
		return Outcome{Queued: true, Action: a}, err
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: a}, nil
}
