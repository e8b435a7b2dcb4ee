package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/fieldops/internal/geo"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

type JobsHandler struct {
	jobs repository.JobRepo
	ctrl *lifecycle.Controller
}

func NewJobsHandler(jr repository.JobRepo, ctrl *lifecycle.Controller) *JobsHandler {
	return &JobsHandler{jobs: jr, ctrl: ctrl}
}

// locationBody is the device's answer to a location request: either a fix
// or the code of the failure it hit.
type locationBody struct {
	Fix           *models.Fix `json:"fix,omitempty"`
	LocationError string      `json:"location_error,omitempty"`
}

func (b locationBody) provider() geo.Provider {
	return geo.ReportedProvider{Fix: b.Fix, Err: geo.ParseError(b.LocationError)}
}

type acceptRequest struct {
	locationBody
	Acknowledged []string `json:"acknowledged,omitempty"`
	Override     bool     `json:"override,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type requirementRequest struct {
	IsCompleted bool    `json:"is_completed"`
	Notes       *string `json:"notes,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func session(w http.ResponseWriter, r *http.Request) (lifecycle.Session, bool) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return s, ok
}

// ListJobs returns the caller's jobs, optionally filtered by ?status=.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}

	var f repository.JobFilter
	if v := r.URL.Query().Get("status"); v != "" {
		f.Status = models.JobStatus(v)
		if !f.Status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}

	jobs, err := h.jobs.ListJobsByAssignee(r.Context(), s.StaffID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, listResponse[models.Job]{Items: jobs}, http.StatusOK)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if job.AssignedTo != s.StaffID {
		writeError(w, &lifecycle.ValidationError{Kind: lifecycle.ErrNotAssignee, Message: "this job is assigned to someone else"})
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) SetRequirement(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req requirementRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	job, err := h.ctrl.SetRequirement(r.Context(), s, vars["id"], vars["rid"], req.IsCompleted, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req acceptRequest
	if err := decodeJSON(r, &req, true); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	job, err := h.ctrl.Accept(r.Context(), s, mux.Vars(r)["id"], lifecycle.AcceptRequest{
		Location:     req.provider(),
		Acknowledged: req.Acknowledged,
		Override:     req.Override,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := decodeJSON(r, &req, true); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	job, err := h.ctrl.Reject(r.Context(), s, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	var req locationBody
	if err := decodeJSON(r, &req, true); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	job, err := h.ctrl.Start(r.Context(), s, mux.Vars(r)["id"], req.provider())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, job, http.StatusOK)
}
