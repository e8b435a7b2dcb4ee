package geo

import (
	"context"
	"errors"
	"time"

	"github.com/garnizeh/fieldops/pkg/models"
)

// ReportedProvider serves a fix the device already took and sent with its
// request. Err, when set, is the failure the device reported instead.
type ReportedProvider struct {
	Fix *models.Fix
	Err error
}

func (p ReportedProvider) RequestPermission(ctx context.Context) error {
	if errors.Is(p.Err, ErrPermissionDenied) {
		return p.Err
	}
	return nil
}

func (p ReportedProvider) CurrentFix(ctx context.Context, _ Accuracy, _ time.Duration) (models.Fix, error) {
	if p.Err != nil {
		return models.Fix{}, p.Err
	}
	if p.Fix == nil {
		return models.Fix{}, ErrUnavailable
	}
	fix := *p.Fix
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = time.Now().UTC()
	}
	return fix, nil
}

// ParseError maps a device-reported failure code to a sentinel.
func ParseError(code string) error {
	switch code {
	case "":
		return nil
	case "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrTimeout
	case "stale":
		return ErrStale
	default:
		return ErrUnavailable
	}
}

// ErrorCode is the inverse of ParseError. Wrapped sentinels map to their
// code; any other failure is "unavailable".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStale):
		return "stale"
	default:
		return "unavailable"
	}
}
