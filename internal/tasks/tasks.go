// Package tasks runs persisted background work with retries, exponential
// backoff and a dead-letter table for permanent failures.
package tasks

import (
	"context"
	"time"

	"github.com/garnizeh/fieldops/pkg/models"
)

// Handler processes one task. A returned error schedules a retry.
type Handler func(ctx context.Context, t *models.BackgroundTask) error

const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
