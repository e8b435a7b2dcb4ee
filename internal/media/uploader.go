package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/garnizeh/fieldops/internal/tasks"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// UploadTaskType is the background task that moves one staged photo to the store.
const UploadTaskType = "photo.upload"

type uploadPayload struct {
	PhotoID string `json:"photo_id"`
}

// Uploader defers remote uploads until a completion is committed, so a
// failed status write never leaves orphaned remote photos.
type Uploader struct {
	store  Store
	stager *Stager
	photos repository.PhotoRepo
	tasks  repository.TaskRepo
	logger *slog.Logger
}

func NewUploader(store Store, stager *Stager, photos repository.PhotoRepo, taskRepo repository.TaskRepo, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{store: store, stager: stager, photos: photos, tasks: taskRepo, logger: logger}
}

// OnCompleted enqueues an upload for every photo of a completed job.
func (u *Uploader) OnCompleted(ctx context.Context, job *models.Job) {
	if job.Completion == nil {
		return
	}
	for _, p := range job.Completion.UploadedPhotos {
		if _, err := tasks.Enqueue(ctx, u.tasks, UploadTaskType, uploadPayload{PhotoID: p.ID}, 50, 5); err != nil {
			u.logger.Error("enqueue photo upload", "job_id", job.ID, "photo_id", p.ID, "err", err)
		}
	}
}

// Handle is the task handler for UploadTaskType. Already uploaded photos are
// skipped, so a retried task never uploads twice.
func (u *Uploader) Handle(ctx context.Context, t *models.BackgroundTask) error {
	var pl uploadPayload
	if err := json.Unmarshal(t.Payload, &pl); err != nil {
		return fmt.Errorf("decode upload payload: %w", err)
	}

	p, err := u.photos.GetPhoto(ctx, pl.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", pl.PhotoID, err)
	}
	if p.UploadedAt != nil {
		return nil
	}

	f, err := u.stager.Open(p.LocalURI)
	if err != nil {
		return fmt.Errorf("open staged photo %s: %w", p.ID, err)
	}
	defer f.Close()

	url, err := u.store.Put(ctx, ObjectKey(*p), f, p.ContentType)
	if err != nil {
		return err
	}
	if err := u.photos.MarkPhotoUploaded(ctx, p.ID, url); err != nil {
		return fmt.Errorf("mark photo uploaded: %w", err)
	}

	u.logger.Info("photo uploaded", "job_id", p.JobID, "photo_id", p.ID, "url", url)
	return nil
}
