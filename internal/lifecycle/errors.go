package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReasonRequired      = errors.New("rejection reason is required")
	ErrMissingRequirements = errors.New("required items are not complete")
	ErrStepIncomplete      = errors.New("step is incomplete")
	ErrNotAssignee         = errors.New("job is not assigned to this staff member")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// ValidationError is a blocking, human-readable precondition failure. It is
// raised before any remote write and is never retried automatically.
type ValidationError struct {
	Kind    error
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Missing, ", ")
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func validation(kind error, msg string, missing ...string) *ValidationError {
	return &ValidationError{Kind: kind, Message: msg, Missing: missing}
}

// ProximityError refuses a GPS-gated transition. The caller may move closer
// and retry.
type ProximityError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *ProximityError) Error() string {
	return fmt.Sprintf("you are %.0fm from the job location, must be within %.0fm", e.DistanceMeters, e.RadiusMeters)
}

// LocationError is a hard location failure on a transition that requires a fix.
type LocationError struct {
	Err error
}

func (e *LocationError) Error() string { return "location required: " + e.Err.Error() }

func (e *LocationError) Unwrap() error { return e.Err }

// RemoteWriteError wraps a job store failure. Local state is left unchanged
// and the user may re-trigger the action.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient infrastructure failure as
// opposed to a validation or location refusal.
func IsRetryable(err error) bool {
	var rw *RemoteWriteError
	return errors.As(err, &rw)
}
