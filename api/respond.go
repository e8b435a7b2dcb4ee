package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/garnizeh/fieldops/internal/assistant"
	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/pkg/ollama"
	"github.com/garnizeh/fieldops/pkg/repository"
)

type errorResponse struct {
	Error          string   `json:"error"`
	Missing        []string `json:"missing,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	RadiusMeters   *float64 `json:"radius_meters,omitempty"`
	LocationError  string   `json:"location_error,omitempty"`
	Retryable      bool     `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", slog.Any("err", err))
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *lifecycle.ValidationError
		perr *lifecycle.ProximityError
		lerr *lifecycle.LocationError
	)

	switch {
	case errors.As(err, &verr):
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(verr, lifecycle.ErrNotAssignee):
			status = http.StatusForbidden
		case errors.Is(verr, lifecycle.ErrInvalidTransition):
			status = http.StatusConflict
		}
		writeJSON(w, errorResponse{Error: verr.Message, Missing: verr.Missing}, status)
	case errors.As(err, &perr):
		d, r := perr.DistanceMeters, perr.RadiusMeters
		writeJSON(w, errorResponse{Error: perr.Error(), DistanceMeters: &d, RadiusMeters: &r, Retryable: true}, http.StatusConflict)
	case errors.As(err, &lerr):
		writeJSON(w, errorResponse{Error: lerr.Error(), LocationError: geo.ErrorCode(lerr.Err), Retryable: true}, http.StatusFailedDependency)
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, errorResponse{Error: "not found"}, http.StatusNotFound)
	case lifecycle.IsRetryable(err), errors.Is(err, ollama.ErrCircuitOpen):
		logger.Error("request failed", slog.Any("err", err))
		writeJSON(w, errorResponse{Error: "temporarily unavailable, try again", Retryable: true}, http.StatusServiceUnavailable)
	case errors.Is(err, assistant.ErrEmptyQuestion):
		writeJSON(w, errorResponse{Error: err.Error()}, http.StatusBadRequest)
	case errors.Is(err, assistant.ErrInvalidResponse):
		writeJSON(w, errorResponse{Error: "the assistant could not answer, try rephrasing", Retryable: true}, http.StatusBadGateway)
	default:
		logger.Error("request failed", slog.Any("err", err))
		writeJSON(w, errorResponse{Error: "internal error"}, http.StatusInternalServerError)
	}
}

// decodeJSON decodes the request body into v. An empty body is accepted
// when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
