// Package lifecycle is the single authority allowed to change a job's status.
// It enforces the legal transitions and their preconditions, writes each
// transition as one update, and mirrors status changes into the audit sink.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/fieldops/internal/audit"
	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// transitions lists the legal moves. Completion is reachable only through
// the wizard.
var transitions = map[models.JobStatus][]models.JobStatus{
	models.StatusAssigned:   {models.StatusAccepted, models.StatusRejected},
	models.StatusAccepted:   {models.StatusInProgress},
	models.StatusInProgress: {models.StatusCompleted},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.JobStatus) bool {
	return slices.Contains(transitions[from], to)
}

type Options struct {
	GPSVerification        bool
	RadiusMeters           float64
	RequireAcknowledgement bool
	LocationTimeout        time.Duration
	MaxFixAge              time.Duration // oldest fix the proximity gate takes
	MinPhotos              int
}

func (o *Options) defaults() {
	if o.RadiusMeters <= 0 {
		o.RadiusMeters = 100
	}
	if o.LocationTimeout <= 0 {
		o.LocationTimeout = 10 * time.Second
	}
	if o.MaxFixAge <= 0 {
		o.MaxFixAge = 2 * time.Minute
	}
	if o.MinPhotos <= 0 {
		o.MinPhotos = 3
	}
}

// CompletionHook runs after a completion has been committed.
type CompletionHook func(ctx context.Context, job *models.Job)

type Controller struct {
	jobs       repository.JobRepo
	photos     repository.PhotoRepo
	audit      audit.Sink
	logger     *slog.Logger
	opts       Options
	onComplete []CompletionHook
	now        func() time.Time

	wizMu   sync.Mutex
	wizards map[wizardKey]*Wizard
}

func NewController(jobs repository.JobRepo, photos repository.PhotoRepo, sink audit.Sink, opts Options, logger *slog.Logger) *Controller {
	opts.defaults()
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		jobs:    jobs,
		photos:  photos,
		audit:   sink,
		logger:  logger,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		wizards: map[wizardKey]*Wizard{},
	}
}

// OnComplete registers a hook invoked after every committed completion.
func (c *Controller) OnComplete(h CompletionHook) {
	c.onComplete = append(c.onComplete, h)
}

func (c *Controller) Options() Options { return c.opts }

// AcceptRequest carries what the staff member supplied with an accept.
type AcceptRequest struct {
	// Location is consulted only when GPS verification is enabled.
	Location geo.Provider
	// Acknowledged lists required requirement ids confirmed in this interaction.
	Acknowledged []string
	// Override accepts despite missing acknowledgements ("Accept Anyway").
	Override bool
}

// Accept moves an assigned job to accepted.
func (c *Controller) Accept(ctx context.Context, s Session, jobID string, req AcceptRequest) (*models.Job, error) {
	job, err := c.load(ctx, s, jobID, models.StatusAccepted)
	if err != nil {
		return nil, err
	}

	details := map[string]any{}
	if c.opts.GPSVerification {
		if job.Location.Coordinates == nil {
			c.logger.Warn("gps verification skipped, job has no coordinates", "job_id", job.ID)
			details["gps_skipped"] = true
		} else {
			dist, err := c.verifyProximity(ctx, job, req.Location)
			if err != nil {
				return nil, err
			}
			details["distance_meters"] = dist
		}
	}

	if c.opts.RequireAcknowledgement {
		if missing := MissingAcknowledgements(job, req.Acknowledged); len(missing) > 0 {
			if !req.Override {
				return nil, validation(ErrMissingRequirements, "complete or acknowledge these required items", missing...)
			}
			details["override"] = missing
		}
	}

	at := c.now()
	status := models.StatusAccepted
	u := models.JobUpdate{Status: &status, AcceptedAt: &at}
	if len(req.Acknowledged) > 0 {
		u.Acknowledged = slices.Clone(req.Acknowledged)
	}

	return c.commit(ctx, s, job, u, details)
}

// Reject moves an assigned job to rejected. The trimmed reason is stored.
func (c *Controller) Reject(ctx context.Context, s Session, jobID, reason string) (*models.Job, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validation(ErrReasonRequired, "please provide a reason for rejecting this job")
	}

	job, err := c.load(ctx, s, jobID, models.StatusRejected)
	if err != nil {
		return nil, err
	}

	at := c.now()
	status := models.StatusRejected
	return c.commit(ctx, s, job, models.JobUpdate{Status: &status, RejectedAt: &at, RejectionReason: &reason}, map[string]any{"reason": reason})
}

// Start moves an accepted job to in_progress. The start location is captured
// when available; its absence never blocks the transition.
func (c *Controller) Start(ctx context.Context, s Session, jobID string, location geo.Provider) (*models.Job, error) {
	job, err := c.load(ctx, s, jobID, models.StatusInProgress)
	if err != nil {
		return nil, err
	}

	at := c.now()
	status := models.StatusInProgress
	u := models.JobUpdate{Status: &status, StartedAt: &at}
	if fix := geo.TryFetch(ctx, location, c.opts.LocationTimeout); fix != nil {
		u.StartLocation = fix
	}

	return c.commit(ctx, s, job, u, nil)
}

// SetRequirement toggles one requirement outside the wizard. It does not
// change the job status.
func (c *Controller) SetRequirement(ctx context.Context, s Session, jobID, reqID string, completed bool, notes *string) (*models.Job, error) {
	job, err := c.get(ctx, s, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.StatusRejected || job.Status == models.StatusCompleted {
		return nil, validation(ErrInvalidTransition, fmt.Sprintf("job is %s", job.Status))
	}

	reqs := slices.Clone(job.Requirements)
	idx := slices.IndexFunc(reqs, func(r models.Requirement) bool { return r.ID == reqID })
	if idx < 0 {
		return nil, repository.ErrNotFound
	}
	reqs[idx].IsCompleted = completed
	if notes != nil {
		reqs[idx].Notes = *notes
	}

	if err := c.jobs.UpdateJob(ctx, job.ID, models.JobUpdate{Requirements: reqs}); err != nil {
		return nil, &RemoteWriteError{Op: "update requirement", Err: err}
	}
	job.Requirements = reqs
	return job, nil
}

// MissingAcknowledgements lists the required, not yet completed requirements
// that are absent from acknowledged.
func MissingAcknowledgements(job *models.Job, acknowledged []string) []string {
	var missing []string
	for _, r := range job.Requirements {
		if !r.IsRequired || r.IsCompleted || slices.Contains(acknowledged, r.ID) {
			continue
		}
		missing = append(missing, r.Description)
	}
	return missing
}

// verifyProximity needs a job with coordinates and a fix no older than
// MaxFixAge.
func (c *Controller) verifyProximity(ctx context.Context, job *models.Job, p geo.Provider) (float64, error) {
	fix, err := geo.Fetch(ctx, p, geo.AccuracyHigh, c.opts.LocationTimeout)
	if err != nil {
		return 0, &LocationError{Err: err}
	}
	if err := geo.CheckFresh(fix, c.now(), c.opts.MaxFixAge); err != nil {
		return 0, &LocationError{Err: err}
	}

	dist := geo.DistanceMeters(fix.Coordinates(), *job.Location.Coordinates)
	if dist > c.opts.RadiusMeters {
		return dist, &ProximityError{DistanceMeters: dist, RadiusMeters: c.opts.RadiusMeters}
	}
	return dist, nil
}

func (c *Controller) get(ctx context.Context, s Session, jobID string) (*models.Job, error) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, &RemoteWriteError{Op: "load job", Err: err}
	}
	if s.StaffID == "" || job.AssignedTo != s.StaffID {
		return nil, validation(ErrNotAssignee, "this job is assigned to someone else")
	}
	return job, nil
}

// load fetches the job and checks the acting staff and the transition.
func (c *Controller) load(ctx context.Context, s Session, jobID string, to models.JobStatus) (*models.Job, error) {
	job, err := c.get(ctx, s, jobID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(job.Status, to) {
		return nil, validation(ErrInvalidTransition, fmt.Sprintf("cannot move job from %s to %s", job.Status, to))
	}
	return job, nil
}

// commit writes u as one update, reflects it on job only after the write
// succeeded, and records the status change.
func (c *Controller) commit(ctx context.Context, s Session, job *models.Job, u models.JobUpdate, details map[string]any) (*models.Job, error) {
	from := job.Status
	if err := c.jobs.UpdateJob(ctx, job.ID, u); err != nil {
		c.logger.Error("job write failed", "job_id", job.ID, "status", *u.Status, "err", err)
		return nil, &RemoteWriteError{Op: "update job", Err: err}
	}

	next := *job
	apply(&next, u)
	c.logger.Info("job transition", "job_id", job.ID, "staff_id", s.StaffID, "from", from, "status", next.Status)

	var d any
	if len(details) > 0 {
		d = details
	}
	c.audit.Record(ctx, audit.StatusChange(job.ID, s.SessionID, s.StaffID, from, next.Status, d))

	return &next, nil
}

func apply(j *models.Job, u models.JobUpdate) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Requirements != nil {
		j.Requirements = u.Requirements
	}
	if u.AcceptedAt != nil {
		j.AcceptedAt = u.AcceptedAt
	}
	if u.StartedAt != nil {
		j.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		j.CompletedAt = u.CompletedAt
	}
	if u.RejectedAt != nil {
		j.RejectedAt = u.RejectedAt
	}
	if u.RejectionReason != nil {
		j.RejectionReason = *u.RejectionReason
	}
	if u.Acknowledged != nil {
		j.Acknowledged = u.Acknowledged
	}
	if u.StartLocation != nil {
		j.StartLocation = u.StartLocation
	}
	if u.Completion != nil {
		j.Completion = u.Completion
	}
}
