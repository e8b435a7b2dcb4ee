package offline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/internal/offline"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository/mock"
)

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
}

func (r *recordingApplier) Apply(ctx context.Context, a models.OfflineAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[a.ID]; err != nil {
		return err
	}
	r.applied = append(r.applied, a.ID)
	return nil
}

func (r *recordingApplier) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

func TestQueue_ReplayFIFOAndIdempotent(t *testing.T) {
	ctx := context.Background()
	q := offline.NewQueue(mock.NewMocks().Queue, nil)

	a1, err := q.Enqueue(ctx, models.ActionAccept, "j1", "s1", offline.AcceptData{Override: true})
	require.NoError(t, err)
	a2, err := q.Enqueue(ctx, models.ActionReject, "j1", "s1", offline.RejectData{Reason: "flat tyre"})
	require.NoError(t, err)

	pending, err := q.Pending(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.False(t, pending[0].Synced)

	var data offline.RejectData
	require.NoError(t, json.Unmarshal(pending[1].Data, &data))
	assert.Equal(t, "flat tyre", data.Reason)

	app := &recordingApplier{}
	res, err := q.Replay(ctx, "j1", app)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{Synced: 2}, res)
	assert.Equal(t, []string{a1.ID, a2.ID}, app.calls())

	// synced actions are never replayed again
	res, err = q.Replay(ctx, "j1", app)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{}, res)
	assert.Len(t, app.calls(), 2)

	all, err := q.All(ctx)
	require.NoError(t, err)
	for _, a := range all {
		assert.True(t, a.Synced)
		assert.NotNil(t, a.SyncedAt)
	}
}

func TestQueue_FailureDoesNotBlockLaterActions(t *testing.T) {
	ctx := context.Background()
	q := offline.NewQueue(mock.NewMocks().Queue, nil)

	a1, _ := q.Enqueue(ctx, models.ActionAccept, "j1", "s1", nil)
	a2, _ := q.Enqueue(ctx, models.ActionReject, "j1", "s1", offline.RejectData{Reason: "x"})

	app := &recordingApplier{fail: map[string]error{a1.ID: errors.New("job reassigned")}}
	res, err := q.Replay(ctx, "j1", app)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{Synced: 1, Failed: 1}, res)
	assert.Equal(t, []string{a2.ID}, app.calls())

	pending, err := q.Pending(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a1.ID, pending[0].ID)
	assert.Equal(t, "job reassigned", pending[0].LastError)

	// the failed action is retried on the next replay, the synced one is not
	delete(app.fail, a1.ID)
	res, err = q.Replay(ctx, "j1", app)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{Synced: 1}, res)
	assert.Equal(t, []string{a2.ID, a1.ID}, app.calls())
}

func TestQueue_RefusedActionIsNotReplayedAgain(t *testing.T) {
	ctx := context.Background()
	q := offline.NewQueue(mock.NewMocks().Queue, nil)

	a1, _ := q.Enqueue(ctx, models.ActionAccept, "j1", "s1", nil)
	a2, _ := q.Enqueue(ctx, models.ActionReject, "j1", "s1", offline.RejectData{Reason: "x"})

	refused := fmt.Errorf("%w: http 403: not assigned to you", offline.ErrRefused)
	app := &recordingApplier{fail: map[string]error{a1.ID: refused}}
	res, err := q.Replay(ctx, "j1", app)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{Synced: 1, Failed: 1}, res)

	pending, err := q.Pending(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a1.ID, pending[0].ID)
	assert.False(t, pending[0].Synced)
	assert.True(t, pending[0].Refused)
	assert.Contains(t, pending[0].LastError, "not assigned")

	// even once the store would accept it, a refused action stays put
	delete(app.fail, a1.ID)
	res, err = q.Replay(ctx, "j1", app)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{}, res)
	assert.Equal(t, []string{a2.ID}, app.calls())
}

func TestQueue_SaveFailureSurfaces(t *testing.T) {
	m := mock.NewMocks()
	m.Queue.SaveErr = errors.New("disk full")
	q := offline.NewQueue(m.Queue, nil)

	_, err := q.Enqueue(context.Background(), models.ActionAccept, "j1", "s1", nil)
	assert.Error(t, err)
}

type switchProbe struct{ up atomic.Bool }

func (p *switchProbe) Check(ctx context.Context) error {
	if p.up.Load() {
		return nil
	}
	return errors.New("no route to host")
}

func TestMonitor_ReplaysOnReconnect(t *testing.T) {
	ctx := context.Background()
	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	app := &recordingApplier{}
	probe := &switchProbe{}

	mon := offline.NewMonitor(probe, q, app, time.Hour, time.Second, nil)
	mon.Poll(ctx)
	assert.False(t, mon.Online())

	a, err := q.Enqueue(ctx, models.ActionAccept, "j1", "s1", nil)
	require.NoError(t, err)

	mon.Poll(ctx)
	assert.Empty(t, app.calls(), "still offline")

	probe.up.Store(true)
	mon.Poll(ctx)
	assert.True(t, mon.Online())
	assert.Equal(t, []string{a.ID}, app.calls())

	// staying online does not replay again
	mon.Poll(ctx)
	assert.Len(t, app.calls(), 1)
}

func TestMonitor_StartStop(t *testing.T) {
	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	probe := &switchProbe{}
	probe.up.Store(true)

	mon := offline.NewMonitor(probe, q, &recordingApplier{}, 10*time.Millisecond, time.Second, nil)
	mon.Start(context.Background())
	require.Eventually(t, mon.Online, time.Second, 5*time.Millisecond)
	mon.Stop()
	mon.Stop()
}

// Offline accept is queued, then replayed against the job store on reconnect.
func TestOfflineAcceptReplaysToJobStore(t *testing.T) {
	ctx := context.Background()
	m := mock.NewMocks()
	jobID, err := m.Jobs.CreateJob(ctx, &models.Job{Title: "Boiler service", AssignedTo: "s1"})
	require.NoError(t, err)

	ctrl := lifecycle.NewController(m.Jobs, m.Photos, nil, lifecycle.Options{}, nil)
	store := offline.ApplierFunc(func(ctx context.Context, a models.OfflineAction) error {
		s := lifecycle.Session{StaffID: a.StaffID, SessionID: "replay"}
		switch a.Type {
		case models.ActionAccept:
			_, err := ctrl.Accept(ctx, s, a.JobID, lifecycle.AcceptRequest{})
			return err
		case models.ActionReject:
			var d offline.RejectData
			if err := json.Unmarshal(a.Data, &d); err != nil {
				return err
			}
			_, err := ctrl.Reject(ctx, s, a.JobID, d.Reason)
			return err
		}
		return nil
	})

	q := offline.NewQueue(m.Queue, nil)
	probe := &switchProbe{}
	mon := offline.NewMonitor(probe, q, store, time.Hour, time.Second, nil)
	d := offline.NewDispatcher(mon, q, store)

	mon.Poll(ctx)
	out, err := d.Accept(ctx, jobID, "s1", offline.AcceptData{})
	require.NoError(t, err)
	assert.True(t, out.Queued)
	assert.False(t, out.Action.Synced)

	job, _ := m.Jobs.GetJob(ctx, jobID)
	assert.Equal(t, models.StatusAssigned, job.Status)

	probe.up.Store(true)
	mon.Poll(ctx)

	all, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Synced)

	job, _ = m.Jobs.GetJob(ctx, jobID)
	assert.Equal(t, models.StatusAccepted, job.Status)
}

func TestDispatcher_OnlineAppliesDirectly(t *testing.T) {
	ctx := context.Background()
	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	probe := &switchProbe{}
	probe.up.Store(true)
	app := &recordingApplier{}
	mon := offline.NewMonitor(probe, q, app, time.Hour, time.Second, nil)
	mon.Poll(ctx)

	d := offline.NewDispatcher(mon, q, app)
	out, err := d.Reject(ctx, "j1", "s1", offline.RejectData{Reason: "ill"})
	require.NoError(t, err)
	assert.False(t, out.Queued)
	assert.Len(t, app.calls(), 1)

	pending, _ := q.Pending(ctx, "j1")
	assert.Empty(t, pending)
}

func TestDispatcher_UnreachableFallsBackToQueue(t *testing.T) {
	ctx := context.Background()
	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	probe := &switchProbe{}
	probe.up.Store(true)
	down := offline.ApplierFunc(func(context.Context, models.OfflineAction) error {
		return errors.Join(offline.ErrUnreachable, errors.New("dial tcp: connection refused"))
	})
	mon := offline.NewMonitor(probe, q, down, time.Hour, time.Second, nil)
	mon.Poll(ctx)

	d := offline.NewDispatcher(mon, q, down)
	out, err := d.Accept(ctx, "j1", "s1", offline.AcceptData{})
	require.NoError(t, err)
	assert.True(t, out.Queued)
	assert.False(t, mon.Online())

	// a rejection by the store itself is surfaced, not queued
	probe.up.Store(true)
	mon.Poll(ctx)
	refused := offline.NewDispatcher(mon, q, offline.ApplierFunc(func(context.Context, models.OfflineAction) error {
		return errors.New("invalid status transition")
	}))
	_, err = refused.Reject(ctx, "j2", "s1", offline.RejectData{Reason: "x"})
	assert.Error(t, err)
}
