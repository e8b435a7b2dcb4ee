package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/pkg/models"
)

func inProgressJob() *models.Job {
	job := siteJob(
		models.Requirement{ID: "r1", Description: "Vacuum", IsRequired: true},
		models.Requirement{ID: "r2", Description: "Windows"},
	)
	job.Status = models.StatusInProgress
	return job
}

func openWizard(t *testing.T) (*lifecycle.Controller, *lifecycle.Wizard, string, func() *models.Job) {
	t.Helper()
	c, m, id := setup(t, lifecycle.Options{MinPhotos: 3}, inProgressJob())
	w, err := c.OpenWizard(context.Background(), staff, id)
	require.NoError(t, err)
	get := func() *models.Job {
		j, err := m.Jobs.GetJob(context.Background(), id)
		require.NoError(t, err)
		return j
	}
	return c, w, id, get
}

func attach(t *testing.T, w *lifecycle.Wizard, types ...models.PhotoType) {
	t.Helper()
	for _, typ := range types {
		_, err := w.AttachPhoto(context.Background(), models.Photo{Type: typ, LocalURI: "/staging/" + string(typ) + ".jpg"})
		require.NoError(t, err)
	}
}

func checkRequiredQuality(t *testing.T, w *lifecycle.Wizard) {
	t.Helper()
	for _, it := range lifecycle.DefaultQualityChecklist() {
		if it.Required {
			require.NoError(t, w.SetQuality(it.ID, true))
		}
	}
}

func TestWizard_RequiresInProgressJob(t *testing.T) {
	c, _, id := setup(t, lifecycle.Options{}, siteJob())
	_, err := c.OpenWizard(context.Background(), staff, id)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestWizard_RequirementsStep(t *testing.T) {
	_, w, _, _ := openWizard(t)

	ok, missing := w.CanProceed()
	assert.False(t, ok)
	assert.Equal(t, []string{"Vacuum", "Windows"}, missing)

	err := w.Next()
	assert.ErrorIs(t, err, lifecycle.ErrStepIncomplete)
	assert.Equal(t, lifecycle.StepRequirements, w.Step())

	require.NoError(t, w.SetRequirement("r1", true, nil))
	require.NoError(t, w.SetRequirement("r2", true, nil))
	require.NoError(t, w.Next())
	assert.Equal(t, lifecycle.StepPhotos, w.Step())
}

func TestWizard_NoRequirementsProceeds(t *testing.T) {
	job := siteJob()
	job.Status = models.StatusInProgress
	c, _, id := setup(t, lifecycle.Options{}, job)
	w, err := c.OpenWizard(context.Background(), staff, id)
	require.NoError(t, err)

	ok, _ := w.CanProceed()
	assert.True(t, ok)
}

func TestWizard_PhotosStepNeedsMinimumCount(t *testing.T) {
	_, w, _, _ := openWizard(t)
	require.NoError(t, w.SetRequirement("r1", true, nil))
	require.NoError(t, w.SetRequirement("r2", true, nil))
	require.NoError(t, w.Next())

	ok, _ := w.CanProceed()
	assert.False(t, ok, "no photos attached")

	// checking every slot by hand is not enough without photos
	for _, it := range lifecycle.DefaultPhotoChecklist() {
		require.NoError(t, w.SetPhotoItem(it.ID, true))
	}
	ok, missing := w.CanProceed()
	assert.False(t, ok)
	assert.Len(t, missing, 1)
	assert.ErrorIs(t, w.Next(), lifecycle.ErrStepIncomplete)

	attach(t, w, models.PhotoBefore, models.PhotoDuring)
	assert.ErrorIs(t, w.Next(), lifecycle.ErrStepIncomplete)

	attach(t, w, models.PhotoAfter)
	ok, _ = w.CanProceed()
	assert.True(t, ok)
	require.NoError(t, w.Next())
	assert.Equal(t, lifecycle.StepQuality, w.Step())
}

func TestWizard_AttachingTypedPhotosChecksSlots(t *testing.T) {
	_, w, _, _ := openWizard(t)
	require.NoError(t, w.SetRequirement("r1", true, nil))
	require.NoError(t, w.SetRequirement("r2", true, nil))
	require.NoError(t, w.Next())

	attach(t, w, models.PhotoBefore, models.PhotoDuring, models.PhotoAfter)
	ok, missing := w.CanProceed()
	assert.True(t, ok, "missing: %v", missing)

	_, err := w.AttachPhoto(context.Background(), models.Photo{Type: "selfie"})
	assert.ErrorIs(t, err, lifecycle.ErrStepIncomplete)
}

func TestWizard_QualityOnlyRequiredItemsGate(t *testing.T) {
	_, w, _, _ := openWizard(t)
	require.NoError(t, w.SetRequirement("r1", true, nil))
	require.NoError(t, w.SetRequirement("r2", true, nil))
	require.NoError(t, w.Next())
	attach(t, w, models.PhotoBefore, models.PhotoDuring, models.PhotoAfter)
	require.NoError(t, w.Next())

	assert.ErrorIs(t, w.Next(), lifecycle.ErrStepIncomplete)
	checkRequiredQuality(t, w)
	require.NoError(t, w.Next(), "optional quality items must not gate")
	assert.Equal(t, lifecycle.StepNotes, w.Step())
}

func TestWizard_BackIsAlwaysAllowed(t *testing.T) {
	_, w, _, _ := openWizard(t)
	w.Back()
	assert.Equal(t, lifecycle.StepRequirements, w.Step())

	require.NoError(t, w.SetRequirement("r1", true, nil))
	require.NoError(t, w.SetRequirement("r2", true, nil))
	require.NoError(t, w.Next())
	require.NoError(t, w.SetRequirement("r2", false, nil))
	w.Back()
	assert.Equal(t, lifecycle.StepRequirements, w.Step())
	assert.ErrorIs(t, w.Next(), lifecycle.ErrStepIncomplete)
}

func driveToConfirm(t *testing.T, w *lifecycle.Wizard) {
	t.Helper()
	require.NoError(t, w.SetRequirement("r1", true, nil))
	notes := "streaks on glass"
	require.NoError(t, w.SetRequirement("r2", true, &notes))
	require.NoError(t, w.Next())
	attach(t, w, models.PhotoBefore, models.PhotoDuring, models.PhotoAfter)
	require.NoError(t, w.Next())
	checkRequiredQuality(t, w)
	require.NoError(t, w.Next())
	require.NoError(t, w.SetNotes("  all good  "))
	require.NoError(t, w.Next())
	require.Equal(t, lifecycle.StepConfirm, w.Step())
}

func TestWizard_CompleteCommitsRecord(t *testing.T) {
	c, w, id, get := openWizard(t)

	_, err := w.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, lifecycle.ErrStepIncomplete, "complete before confirm")

	var hooked *models.Job
	c.OnComplete(func(ctx context.Context, j *models.Job) { hooked = j })

	driveToConfirm(t, w)
	done, err := w.Complete(context.Background(), geo.ReportedProvider{Err: geo.ErrTimeout})
	require.NoError(t, err)

	stored := get()
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.Completion)
	assert.Nil(t, stored.Completion.EndLocation, "end location is optional")
	assert.Equal(t, "all good", stored.Completion.CompletionNotes)
	assert.Len(t, stored.Completion.UploadedPhotos, 3)
	assert.Equal(t, staff.StaffID, stored.Completion.CompletedBy)

	ids := []string{}
	for _, r := range stored.Completion.RequirementsSummary {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r1", "r2"}, ids)
	assert.Equal(t, "streaks on glass", stored.Completion.RequirementsSummary[1].Notes)

	require.NotNil(t, hooked)
	assert.Equal(t, done.ID, hooked.ID)

	_, ok := c.LookupWizard(staff, id)
	assert.False(t, ok, "wizard closes after completion")
	assert.ErrorIs(t, w.Next(), lifecycle.ErrInvalidTransition)
}

func TestWizard_RequirementsSnapshotAtStart(t *testing.T) {
	c, m, id := setup(t, lifecycle.Options{}, inProgressJob())
	ctx := context.Background()
	w, err := c.OpenWizard(ctx, staff, id)
	require.NoError(t, err)

	// a requirement removed remotely after the wizard started is still summarized
	require.NoError(t, m.Jobs.UpdateJob(ctx, id, models.JobUpdate{Requirements: []models.Requirement{{ID: "r1", Description: "Vacuum"}}}))

	driveToConfirm(t, w)
	_, err = w.Complete(ctx, geo.ReportedProvider{Fix: north(5)})
	require.NoError(t, err)

	stored, _ := m.Jobs.GetJob(ctx, id)
	assert.Len(t, stored.Completion.RequirementsSummary, 2)
	assert.NotNil(t, stored.Completion.EndLocation)
}

func TestWizard_FailedWriteKeepsStatus(t *testing.T) {
	c, m, id := setup(t, lifecycle.Options{}, inProgressJob())
	ctx := context.Background()
	w, err := c.OpenWizard(ctx, staff, id)
	require.NoError(t, err)
	driveToConfirm(t, w)

	m.Jobs.UpdateErr = errors.New("backend rejected")
	_, err = w.Complete(ctx, nil)
	require.Error(t, err)
	assert.True(t, lifecycle.IsRetryable(err))

	stored, _ := m.Jobs.GetJob(ctx, id)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, lifecycle.StepConfirm, w.Step())

	m.Jobs.UpdateErr = nil
	_, err = w.Complete(ctx, nil)
	require.NoError(t, err)
}

func TestWizard_ResumesOpenWizard(t *testing.T) {
	c, w, id, _ := openWizard(t)
	require.NoError(t, w.SetRequirement("r1", true, nil))

	again, err := c.OpenWizard(context.Background(), staff, id)
	require.NoError(t, err)
	assert.Same(t, w, again)
	assert.True(t, again.State().Requirements[0].IsCompleted)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "requirements", lifecycle.StepRequirements.String())
	assert.Equal(t, "confirm", lifecycle.StepConfirm.String())
	b, err := lifecycle.StepPhotos.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "photos", string(b))
}
