// Package geo provides distance math and the location provider contract used
// to verify staff proximity to a job site.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/garnizeh/fieldops/pkg/models"
)

const earthRadiusMeters = 6371000.0

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrTimeout          = errors.New("location fix timed out")
	ErrUnavailable      = errors.New("location unavailable")
	ErrStale            = errors.New("location fix is too old")
)

// Accuracy is a hint passed to the provider.
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyHigh
)

// Provider is a single-shot location source. Implementations must honour ctx
// and return one of the package sentinels (possibly wrapped) on failure.
type Provider interface {
	RequestPermission(ctx context.Context) error
	CurrentFix(ctx context.Context, accuracy Accuracy, timeout time.Duration) (models.Fix, error)
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b models.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Fetch asks for permission and then a fix bounded by timeout.
func Fetch(ctx context.Context, p Provider, accuracy Accuracy, timeout time.Duration) (models.Fix, error) {
	if p == nil {
		return models.Fix{}, ErrUnavailable
	}
	if err := p.RequestPermission(ctx); err != nil {
		return models.Fix{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := p.CurrentFix(ctx, accuracy, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Fix{}, ErrTimeout
		}
		return models.Fix{}, err
	}

	return fix, nil
}

// CheckFresh reports ErrStale when fix was captured more than maxAge before
// now. A fix without a capture time is treated as taken now.
func CheckFresh(fix models.Fix, now time.Time, maxAge time.Duration) error {
	if fix.CapturedAt.IsZero() || maxAge <= 0 {
		return nil
	}
	if age := now.Sub(fix.CapturedAt); age > maxAge {
		return fmt.Errorf("%w: captured %s ago", ErrStale, age.Round(time.Second))
	}
	return nil
}

// TryFetch is Fetch for optional captures: any failure yields nil.
func TryFetch(ctx context.Context, p Provider, timeout time.Duration) *models.Fix {
	fix, err := Fetch(ctx, p, AccuracyBalanced, timeout)
	if err != nil {
		logger.Debug("optional location capture skipped", "err", err)
		return nil
	}
	return &fix
}
