package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/garnizeh/fieldops/internal/audit"
	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

type Step int

const (
	StepRequirements Step = iota
	StepPhotos
	StepQuality
	StepNotes
	StepConfirm
)

var stepNames = [...]string{"requirements", "photos", "quality", "notes", "confirm"}

func (s Step) String() string {
	if s < StepRequirements || s > StepConfirm {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DefaultPhotoChecklist has one slot per photo type; attaching a photo of
// that type checks its slot.
func DefaultPhotoChecklist() []models.ChecklistItem {
	return []models.ChecklistItem{
		{ID: string(models.PhotoBefore), Label: "Before photos taken", Required: true},
		{ID: string(models.PhotoDuring), Label: "During-work photos taken", Required: true},
		{ID: string(models.PhotoAfter), Label: "After photos taken", Required: true},
	}
}

func DefaultQualityChecklist() []models.ChecklistItem {
	return []models.ChecklistItem{
		{ID: "work_completed", Label: "All work completed", Required: true},
		{ID: "area_clean", Label: "Work area left clean", Required: true},
		{ID: "no_hazards", Label: "No hazards left behind", Required: true},
		{ID: "materials_removed", Label: "Materials and tools removed", Required: false},
		{ID: "meets_standard", Label: "Meets quality standard", Required: true},
	}
}

// Wizard drives one staff member through the completion steps of one job.
// Step state is local until Complete commits it in a single write.
type Wizard struct {
	mu        sync.Mutex
	c         *Controller
	session   Session
	jobID     string
	step      Step
	reqs      []models.Requirement
	checklist []models.ChecklistItem
	photos    []models.Photo
	quality   []models.ChecklistItem
	notes     string
	done      bool
}

// WizardState is a read-only snapshot of a wizard.
type WizardState struct {
	JobID          string                 `json:"job_id"`
	Step           Step                   `json:"step"`
	Requirements   []models.Requirement   `json:"requirements"`
	PhotoChecklist []models.ChecklistItem `json:"photo_checklist"`
	Photos         []models.Photo         `json:"photos"`
	MinPhotos      int                    `json:"min_photos"`
	Quality        []models.ChecklistItem `json:"quality"`
	Notes          string                 `json:"notes"`
	CanProceed     bool                   `json:"can_proceed"`
	Missing        []string               `json:"missing,omitempty"`
}

type wizardKey struct{ staffID, jobID string }

// OpenWizard starts the completion wizard for an in-progress job, or resumes
// the one already open for this staff member. Requirements are snapshotted
// when the wizard starts.
func (c *Controller) OpenWizard(ctx context.Context, s Session, jobID string) (*Wizard, error) {
	c.wizMu.Lock()
	defer c.wizMu.Unlock()

	key := wizardKey{s.StaffID, jobID}
	if w, ok := c.wizards[key]; ok {
		return w, nil
	}

	job, err := c.load(ctx, s, jobID, models.StatusCompleted)
	if err != nil {
		return nil, err
	}

	w := &Wizard{
		c:         c,
		session:   s,
		jobID:     jobID,
		reqs:      slices.Clone(job.Requirements),
		checklist: DefaultPhotoChecklist(),
		quality:   DefaultQualityChecklist(),
	}
	c.wizards[key] = w
	return w, nil
}

// LookupWizard returns the open wizard without creating one.
func (c *Controller) LookupWizard(s Session, jobID string) (*Wizard, bool) {
	c.wizMu.Lock()
	defer c.wizMu.Unlock()
	w, ok := c.wizards[wizardKey{s.StaffID, jobID}]
	return w, ok
}

func (c *Controller) closeWizard(s Session, jobID string) {
	c.wizMu.Lock()
	defer c.wizMu.Unlock()
	delete(c.wizards, wizardKey{s.StaffID, jobID})
}

func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	missing := w.missing(w.step)
	return WizardState{
		JobID:          w.jobID,
		Step:           w.step,
		Requirements:   slices.Clone(w.reqs),
		PhotoChecklist: slices.Clone(w.checklist),
		Photos:         slices.Clone(w.photos),
		MinPhotos:      w.c.opts.MinPhotos,
		Quality:        slices.Clone(w.quality),
		Notes:          w.notes,
		CanProceed:     len(missing) == 0,
		Missing:        missing,
	}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// CanProceed evaluates the current step and names what is missing.
func (w *Wizard) CanProceed() (bool, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	missing := w.missing(w.step)
	return len(missing) == 0, missing
}

func (w *Wizard) missing(step Step) []string {
	var out []string
	switch step {
	case StepRequirements:
		for _, r := range w.reqs {
			if !r.IsCompleted {
				out = append(out, r.Description)
			}
		}
	case StepPhotos:
		for _, it := range w.checklist {
			if !it.Checked {
				out = append(out, it.Label)
			}
		}
		if n := len(w.photos); n < w.c.opts.MinPhotos {
			out = append(out, fmt.Sprintf("at least %d photos (%d attached)", w.c.opts.MinPhotos, n))
		}
	case StepQuality:
		for _, it := range w.quality {
			if it.Required && !it.Checked {
				out = append(out, it.Label)
			}
		}
	}
	return out
}

// Next advances one step when the current step can proceed.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	if missing := w.missing(w.step); len(missing) > 0 {
		return validation(ErrStepIncomplete, fmt.Sprintf("complete the %s step", w.step), missing...)
	}
	if w.step < StepConfirm {
		w.step++
	}
	return nil
}

// Back moves one step back without validation.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > StepRequirements {
		w.step--
	}
}

func (w *Wizard) SetRequirement(id string, completed bool, notes *string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	idx := slices.IndexFunc(w.reqs, func(r models.Requirement) bool { return r.ID == id })
	if idx < 0 {
		return repository.ErrNotFound
	}
	w.reqs[idx].IsCompleted = completed
	if notes != nil {
		w.reqs[idx].Notes = *notes
	}
	return nil
}

func (w *Wizard) SetPhotoItem(id string, checked bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	return setItem(w.checklist, id, checked)
}

func (w *Wizard) SetQuality(id string, checked bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	return setItem(w.quality, id, checked)
}

func (w *Wizard) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	w.notes = strings.TrimSpace(notes)
	return nil
}

// AttachPhoto records a captured photo against the job and audits the capture.
// The photo stays staged locally; nothing is uploaded before completion.
func (w *Wizard) AttachPhoto(ctx context.Context, p models.Photo) (models.Photo, error) {
	if !p.Type.Valid() {
		return models.Photo{}, validation(ErrStepIncomplete, "unknown photo type", string(p.Type))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return models.Photo{}, err
	}

	p.JobID = w.jobID
	p.StaffID = w.session.StaffID
	if err := w.c.photos.CreatePhoto(ctx, &p); err != nil {
		return models.Photo{}, &RemoteWriteError{Op: "save photo", Err: err}
	}
	w.c.audit.Record(ctx, audit.PhotoCaptured(w.session.SessionID, p))

	w.photos = append(w.photos, p)
	_ = setItem(w.checklist, string(p.Type), true)
	return p, nil
}

// Complete commits the completion from the confirm step. The end location is
// best-effort. On any failure the job status is left unchanged and the wizard
// stays open at the confirm step.
func (w *Wizard) Complete(ctx context.Context, location geo.Provider) (*models.Job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return nil, err
	}
	if w.step != StepConfirm {
		return nil, validation(ErrStepIncomplete, fmt.Sprintf("finish the %s step first", w.step))
	}
	for s := StepRequirements; s < StepConfirm; s++ {
		if missing := w.missing(s); len(missing) > 0 {
			return nil, validation(ErrStepIncomplete, fmt.Sprintf("complete the %s step", s), missing...)
		}
	}

	job, err := w.c.load(ctx, w.session, w.jobID, models.StatusCompleted)
	if err != nil {
		return nil, err
	}

	record := &models.CompletionRecord{
		RequirementsSummary: summarize(w.reqs),
		PhotosSummary:       slices.Clone(w.checklist),
		UploadedPhotos:      slices.Clone(w.photos),
		FinalQualityCheck:   slices.Clone(w.quality),
		CompletionNotes:     w.notes,
		EndLocation:         geo.TryFetch(ctx, location, w.c.opts.LocationTimeout),
		CompletedBy:         w.session.StaffID,
	}

	at := w.c.now()
	status := models.StatusCompleted
	u := models.JobUpdate{
		Status:       &status,
		CompletedAt:  &at,
		Requirements: slices.Clone(w.reqs),
		Completion:   record,
	}
	done, err := w.c.commit(ctx, w.session, job, u, map[string]any{"photos": len(w.photos)})
	if err != nil {
		return nil, err
	}

	w.done = true
	w.c.closeWizard(w.session, w.jobID)
	for _, h := range w.c.onComplete {
		h(ctx, done)
	}
	return done, nil
}

func (w *Wizard) open() error {
	if w.done {
		return validation(ErrInvalidTransition, "job already completed")
	}
	return nil
}

func setItem(items []models.ChecklistItem, id string, checked bool) error {
	for i := range items {
		if items[i].ID == id {
			items[i].Checked = checked
			return nil
		}
	}
	return repository.ErrNotFound
}

func summarize(reqs []models.Requirement) []models.RequirementSummary {
	out := make([]models.RequirementSummary, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, models.RequirementSummary{
			ID:          r.ID,
			Description: r.Description,
			IsRequired:  r.IsRequired,
			IsCompleted: r.IsCompleted,
			Notes:       r.Notes,
		})
	}
	return out
}
