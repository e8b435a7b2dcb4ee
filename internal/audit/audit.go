// Package audit mirrors lifecycle and capture events into the audit log.
// The sink is write-only; nothing in the core reads entries back.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// Sink records audit entries. Record never fails the caller: a committed
// transition stays committed even when its audit entry cannot be written.
type Sink interface {
	Record(ctx context.Context, e models.AuditEntry)
}

type RepoSink struct {
	repo   repository.AuditRepo
	logger *slog.Logger
}

func NewRepoSink(repo repository.AuditRepo, logger *slog.Logger) *RepoSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoSink{repo: repo, logger: logger}
}

func (s *RepoSink) Record(ctx context.Context, e models.AuditEntry) {
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}
	if err := s.repo.AppendAudit(ctx, &e); err != nil {
		s.logger.Error("audit append failed", "job_id", e.JobID, "event", e.Event, "err", err)
	}
}

// StatusChange builds the entry for a status transition.
func StatusChange(jobID, sessionID, staffID string, from, to models.JobStatus, details any) models.AuditEntry {
	return models.AuditEntry{
		JobID:      jobID,
		SessionID:  sessionID,
		StaffID:    staffID,
		Event:      models.AuditStatusChange,
		FromStatus: from,
		ToStatus:   to,
		Details:    encode(details),
	}
}

// PhotoCaptured builds the entry for a photo capture.
func PhotoCaptured(sessionID string, p models.Photo) models.AuditEntry {
	return models.AuditEntry{
		JobID:     p.JobID,
		SessionID: sessionID,
		StaffID:   p.StaffID,
		Event:     models.AuditPhotoCaptured,
		Details:   encode(map[string]string{"photo_id": p.ID, "type": string(p.Type), "local_uri": p.LocalURI}),
	}
}

func encode(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Record(context.Context, models.AuditEntry) {}
