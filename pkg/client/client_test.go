package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/fieldops/api"
	"github.com/garnizeh/fieldops/internal/config"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/internal/media"
	"github.com/garnizeh/fieldops/internal/offline"
	"github.com/garnizeh/fieldops/internal/realtime"
	"github.com/garnizeh/fieldops/pkg/client"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository/mock"
)

type fixture struct {
	srv  *httptest.Server
	m    *mock.Mocks
	hub  *realtime.Hub
	down atomic.Bool
	c    *client.Client
	sid  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{m: mock.NewMocks(), hub: realtime.NewHub(nil)}

	hash, err := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	require.NoError(t, err)
	f.sid, err = f.m.Staff.CreateStaff(t.Context(), &models.Staff{StaffCode: "S-7", Name: "Robin", PINHash: string(hash), Active: true})
	require.NoError(t, err)

	stager, err := media.NewStager(t.TempDir())
	require.NoError(t, err)
	jobs := realtime.NewPublishingJobRepo(f.m.Jobs, f.hub, nil)
	router := api.SetupRoutes(api.Deps{
		Config: &config.Config{
			JWTSecret:     "client-secret",
			TokenDuration: time.Hour,
			MinAppVersion: "1.0.0",
			Signin:        config.SigninConfig{RatePerMinute: 60, Burst: 10},
		},
		Staff:      f.m.Staff,
		Jobs:       jobs,
		Controller: lifecycle.NewController(jobs, f.m.Photos, nil, lifecycle.Options{}, nil),
		Stager:     stager,
		Hub:        f.hub,
	})

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.down.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		f.hub.Close()
		f.srv.Close()
	})

	f.c = client.New(f.srv.URL, "1.2.0", f.srv.Client())
	_, err = f.c.SigninPIN(t.Context(), "S-7", "4321")
	require.NoError(t, err)
	return f
}

func (f *fixture) job(t *testing.T, status models.JobStatus) string {
	t.Helper()
	id, err := f.m.Jobs.CreateJob(t.Context(), &models.Job{Title: "Window clean", AssignedTo: f.sid, Status: status})
	require.NoError(t, err)
	return id
}

func TestClient_SigninAndJobs(t *testing.T) {
	f := newFixture(t)
	assert.NotEmpty(t, f.c.Token())

	id := f.job(t, "")
	jobs, err := f.c.ListJobs(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)

	job, err := f.c.Accept(t.Context(), id, offline.AcceptData{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, job.Status)

	job, err = f.c.Start(t.Context(), id, client.Location{Error: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, job.Status)
	assert.Nil(t, job.StartLocation)
}

func TestClient_APIErrors(t *testing.T) {
	f := newFixture(t)
	id := f.job(t, "")

	_, err := f.c.Reject(t.Context(), id, " ")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.False(t, errors.Is(err, offline.ErrUnreachable))

	_, err = f.c.GetJob(t.Context(), "missing")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	old := client.New(f.srv.URL, "0.9.0", f.srv.Client())
	_, err = old.SigninPIN(t.Context(), "S-7", "4321")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUpgradeRequired, apiErr.Status)
}

func TestClient_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := client.New(url, "1.0.0", nil)
	require.ErrorIs(t, c.Check(t.Context()), offline.ErrUnreachable)
	err := c.Apply(t.Context(), models.OfflineAction{Type: models.ActionReject, JobID: "j1", Data: []byte(`{"reason":"sick"}`)})
	require.ErrorIs(t, err, offline.ErrUnreachable)
}

// Reject while the server is down is queued and replayed once it is back.
func TestClient_OfflineReplay(t *testing.T) {
	f := newFixture(t)
	id := f.job(t, "")
	ctx := t.Context()

	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	mon := offline.NewMonitor(f.c, q, f.c, time.Hour, time.Second, nil)
	d := offline.NewDispatcher(mon, q, f.c)

	mon.Poll(ctx)
	require.True(t, mon.Online())

	f.down.Store(true)
	out, err := d.Reject(ctx, id, f.sid, offline.RejectData{Reason: "van broke down"})
	require.NoError(t, err)
	assert.True(t, out.Queued)
	assert.False(t, mon.Online())

	job, err := f.m.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, job.Status)

	f.down.Store(false)
	mon.Poll(ctx)

	all, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Synced)

	job, err = f.m.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, job.Status)
	assert.Equal(t, "van broke down", job.RejectionReason)
}

// A store failure behind a reachable server is the caller's to retry; it is
// neither queued nor replayed on the next poll.
func TestClient_StoreFailureIsNotQueued(t *testing.T) {
	f := newFixture(t)
	id := f.job(t, "")
	ctx := t.Context()

	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	mon := offline.NewMonitor(f.c, q, f.c, time.Hour, time.Second, nil)
	d := offline.NewDispatcher(mon, q, f.c)
	mon.Poll(ctx)
	require.True(t, mon.Online())

	f.m.Jobs.FailUpdates(errors.New("disk I/O error"))
	out, err := d.Accept(ctx, id, f.sid, offline.AcceptData{})
	require.Error(t, err)
	assert.False(t, out.Queued)
	assert.False(t, errors.Is(err, offline.ErrUnreachable))

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.True(t, apiErr.Retryable)
	assert.True(t, mon.Online())

	all, err := q.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	f.m.Jobs.FailUpdates(nil)
	mon.Poll(ctx)
	job, err := f.m.Jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, job.Status)
}

// An action the server refuses on replay is kept unsynced but not sent again.
func TestClient_RefusedReplayIsNotResent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	id, err := f.m.Jobs.CreateJob(ctx, &models.Job{Title: "Gutters", AssignedTo: "someone-else"})
	require.NoError(t, err)

	q := offline.NewQueue(mock.NewMocks().Queue, nil)
	mon := offline.NewMonitor(f.c, q, f.c, time.Hour, time.Second, nil)

	_, err = q.Enqueue(ctx, models.ActionAccept, id, f.sid, offline.AcceptData{})
	require.NoError(t, err)

	mon.Poll(ctx)
	require.True(t, mon.Online())

	all, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Synced)
	assert.True(t, all[0].Refused)
	assert.Contains(t, all[0].LastError, "403")

	res, err := q.ReplayAll(ctx, f.c)
	require.NoError(t, err)
	assert.Equal(t, offline.ReplayResult{}, res)
}

func TestClient_Watch(t *testing.T) {
	f := newFixture(t)
	id := f.job(t, "")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	got := make(chan models.Job, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- f.c.Watch(ctx, id, func(j models.Job) { got <- j })
	}()

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := f.c.Reject(ctx, id, "double booked")
	require.NoError(t, err)

	select {
	case j := <-got:
		assert.Equal(t, id, j.ID)
		assert.Equal(t, models.StatusRejected, j.Status)
	case <-ctx.Done():
		t.Fatal("no realtime event")
	}

	cancel()
	select {
	case err := <-errc:
		assert.True(t, err == nil || errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "closed"), "watch: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
