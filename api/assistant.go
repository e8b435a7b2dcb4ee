package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/fieldops/internal/assistant"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

type AssistantHandler struct {
	assistant  *assistant.Assistant
	schemaRepo repository.SchemaRepo
}

// NewAssistantHandler creates the handler. A nil assistant answers 503.
func NewAssistantHandler(a *assistant.Assistant, sr repository.SchemaRepo) *AssistantHandler {
	return &AssistantHandler{assistant: a, schemaRepo: sr}
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *AssistantHandler) available(w http.ResponseWriter) bool {
	if h.assistant == nil {
		writeJSON(w, errorResponse{Error: "assistant is not configured"}, http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok || !h.available(w) {
		return
	}
	var req askRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	reply, err := h.assistant.Ask(r.Context(), s, mux.Vars(r)["id"], req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, reply, http.StatusOK)
}

// History returns the job's conversation, oldest first (?limit=, default 50).
func (h *AssistantHandler) History(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok || !h.available(w) {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	msgs, err := h.assistant.History(r.Context(), s, mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	writeJSON(w, listResponse[models.ChatMessage]{Items: msgs}, http.StatusOK)
}

func (h *AssistantHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	rows, err := h.schemaRepo.ListSchemas(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.Schema{}
	}
	writeJSON(w, listResponse[models.Schema]{Items: rows}, http.StatusOK)
}

type schemaPayload struct {
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	SchemaJSON  json.RawMessage `json:"schema_json"`
}

// PutSchema compiles and stores an answer schema, then reloads the
// assistant's cache.
func (h *AssistantHandler) PutSchema(w http.ResponseWriter, r *http.Request) {
	var p schemaPayload
	if err := decodeJSON(r, &p, false); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Version == "" || len(p.SchemaJSON) == 0 {
		http.Error(w, "version and schema_json required", http.StatusBadRequest)
		return
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(p.SchemaJSON, rs); err != nil {
		http.Error(w, fmt.Sprintf("invalid schema json: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.schemaRepo.CreateSchema(ctx, p.Version, p.Description, string(p.SchemaJSON)); err != nil {
		writeError(w, err)
		return
	}
	if h.assistant != nil {
		if err := h.assistant.ReloadSchemas(ctx); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
