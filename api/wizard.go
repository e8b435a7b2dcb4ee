package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/internal/media"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

const maxPhotoBytes = 20 << 20

// WizardHandler exposes the completion wizard. A wizard lives on the server
// per staff member and job; it is opened on first use.
type WizardHandler struct {
	ctrl   *lifecycle.Controller
	stager *media.Stager
}

func NewWizardHandler(ctrl *lifecycle.Controller, stager *media.Stager) *WizardHandler {
	return &WizardHandler{ctrl: ctrl, stager: stager}
}

type checkRequest struct {
	Checked bool `json:"checked"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// wizard resolves the open wizard for the request, or writes 404.
func (h *WizardHandler) wizard(w http.ResponseWriter, r *http.Request) (*lifecycle.Wizard, bool) {
	s, ok := session(w, r)
	if !ok {
		return nil, false
	}
	wz, found := h.ctrl.LookupWizard(s, mux.Vars(r)["id"])
	if !found {
		writeJSON(w, errorResponse{Error: "no completion in progress for this job"}, http.StatusNotFound)
		return nil, false
	}
	return wz, true
}

func (h *WizardHandler) Open(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	wz, err := h.ctrl.OpenWizard(r.Context(), s, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, wz.State(), http.StatusOK)
}

func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	if wz, ok := h.wizard(w, r); ok {
		writeJSON(w, wz.State(), http.StatusOK)
	}
}

func (h *WizardHandler) SetRequirement(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req requirementRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	h.respond(w, wz, wz.SetRequirement(mux.Vars(r)["rid"], req.IsCompleted, req.Notes))
}

func (h *WizardHandler) SetPhotoItem(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	h.respond(w, wz, wz.SetPhotoItem(mux.Vars(r)["item"], req.Checked))
}

func (h *WizardHandler) SetQuality(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	h.respond(w, wz, wz.SetQuality(mux.Vars(r)["item"], req.Checked))
}

func (h *WizardHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	h.respond(w, wz, wz.SetNotes(req.Notes))
}

func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	if wz, ok := h.wizard(w, r); ok {
		h.respond(w, wz, wz.Next())
	}
}

func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	if wz, ok := h.wizard(w, r); ok {
		wz.Back()
		h.respond(w, wz, nil)
	}
}

// AttachPhoto accepts a multipart upload with a "type" field and a "photo"
// file. The file is staged locally and recorded; it is uploaded only after
// the job completes.
func (h *WizardHandler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		http.Error(w, "invalid multipart upload", http.StatusBadRequest)
		return
	}
	typ := models.PhotoType(r.FormValue("type"))
	if !typ.Valid() {
		http.Error(w, "invalid photo type", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("photo")
	if err != nil {
		http.Error(w, "photo file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "image/jpeg"
	}

	id := uuid.NewString()
	jobID := mux.Vars(r)["id"]
	local, err := h.stager.Stage(jobID, id, contentType, file)
	if err != nil {
		writeError(w, err)
		return
	}

	photo, err := wz.AttachPhoto(r.Context(), models.Photo{
		ID:          id,
		Type:        typ,
		LocalURI:    local,
		ContentType: contentType,
		CapturedAt:  time.Now().UTC(),
	})
	if err != nil {
		if rmErr := h.stager.Remove(local); rmErr != nil {
			logger.Warn("remove staged photo", "job_id", jobID, "err", rmErr)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, photo, http.StatusCreated)
}

func (h *WizardHandler) Complete(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req locationBody
	if err := decodeJSON(r, &req, true); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	job, err := wz.Complete(r.Context(), req.provider())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, job, http.StatusOK)
}

func (h *WizardHandler) respond(w http.ResponseWriter, wz *lifecycle.Wizard, err error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, errorResponse{Error: "unknown item"}, http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, wz.State(), http.StatusOK)
}
