package realtime

import (
	"context"
	"log/slog"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// PublishingJobRepo publishes the stored job after every successful write.
// Failed writes publish nothing, so subscribers only ever see committed state.
type PublishingJobRepo struct {
	repository.JobRepo
	hub    *Hub
	logger *slog.Logger
}

func NewPublishingJobRepo(inner repository.JobRepo, hub *Hub, logger *slog.Logger) *PublishingJobRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingJobRepo{JobRepo: inner, hub: hub, logger: logger}
}

func (r *PublishingJobRepo) CreateJob(ctx context.Context, j *models.Job) (string, error) {
	id, err := r.JobRepo.CreateJob(ctx, j)
	if err != nil {
		return "", err
	}
	r.publish(ctx, id)
	return id, nil
}

func (r *PublishingJobRepo) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	if err := r.JobRepo.UpdateJob(ctx, id, u); err != nil {
		return err
	}
	r.publish(ctx, id)
	return nil
}

func (r *PublishingJobRepo) publish(ctx context.Context, id string) {
	j, err := r.JobRepo.GetJob(ctx, id)
	if err != nil {
		r.logger.Warn("reload job for publish", "job_id", id, "err", err)
		return
	}
	r.hub.Publish(j)
}
