package api

import (
	"net/http"

	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/internal/realtime"
	"github.com/garnizeh/fieldops/pkg/repository"
)

type RealtimeHandler struct {
	hub  *realtime.Hub
	jobs repository.JobRepo
}

func NewRealtimeHandler(hub *realtime.Hub, jr repository.JobRepo) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jobs: jr}
}

// Subscribe upgrades to a websocket streaming job snapshots. With ?job_id=
// it follows that job; otherwise every job of the caller.
func (h *RealtimeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}

	topic := realtime.Topic{StaffID: s.StaffID}
	if jobID := r.URL.Query().Get("job_id"); jobID != "" {
		job, err := h.jobs.GetJob(r.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		if job.AssignedTo != s.StaffID {
			writeError(w, &lifecycle.ValidationError{Kind: lifecycle.ErrNotAssignee, Message: "this job is assigned to someone else"})
			return
		}
		topic = realtime.Topic{JobID: jobID}
	}

	// the upgrader has already answered the request on failure
	if err := h.hub.ServeWS(w, r, topic); err != nil {
		logger.Debug("websocket upgrade failed", "staff_id", s.StaffID, "err", err)
	}
}
