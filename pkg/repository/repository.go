package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/fieldops/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

type StaffRepo interface {
	CreateStaff(ctx context.Context, s *models.Staff) (string, error)
	GetStaffByID(ctx context.Context, id string) (*models.Staff, error)
	GetStaffByCode(ctx context.Context, code string) (*models.Staff, error)
}

// JobFilter narrows ListJobsByAssignee. A zero value returns every status.
type JobFilter struct {
	Status models.JobStatus
}

type JobRepo interface {
	CreateJob(ctx context.Context, j *models.Job) (string, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// ListJobsByAssignee resolves the assignee under every historical field name.
	ListJobsByAssignee(ctx context.Context, staffID string, f JobFilter) ([]models.Job, error)
	// UpdateJob writes every non-nil field of u in a single statement.
	UpdateJob(ctx context.Context, id string, u models.JobUpdate) error
}

type AuditRepo interface {
	AppendAudit(ctx context.Context, e *models.AuditEntry) error
}

type PhotoRepo interface {
	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	ListPhotosByJob(ctx context.Context, jobID string) ([]models.Photo, error)
	MarkPhotoUploaded(ctx context.Context, id, remoteURL string) error
}

type ChatRepo interface {
	CreateMessage(ctx context.Context, m *models.ChatMessage) error
	ListMessages(ctx context.Context, jobID string, limit int) ([]models.ChatMessage, error)
}

// OfflineQueueRepo persists the pending-action list of a job as one document.
// Writers replace the whole list.
type OfflineQueueRepo interface {
	LoadQueue(ctx context.Context, jobID string) ([]models.OfflineAction, error)
	SaveQueue(ctx context.Context, jobID string, actions []models.OfflineAction) error
	ListQueuedJobIDs(ctx context.Context) ([]string, error)
}

type TaskRepo interface {
	Enqueue(ctx context.Context, t *models.BackgroundTask) (int64, error)
	FetchNext(ctx context.Context) (*models.BackgroundTask, error)
	UpdateTask(ctx context.Context, t *models.BackgroundTask) error
	MoveToDeadLetter(ctx context.Context, t *models.BackgroundTask) error
}

type SchemaRepo interface {
	CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error)
	GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error)
	ListSchemas(ctx context.Context) ([]models.Schema, error)
}

type TemplateRepo interface {
	CreateTemplate(ctx context.Context, name, version, templateText string, schemaVersion *string) (int64, error)
	GetTemplate(ctx context.Context, name, version string) (*models.Template, error)
}
