// Package realtime pushes job snapshots to websocket subscribers after every
// committed write. A subscription follows either one staff member's jobs or
// a single job.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/garnizeh/fieldops/pkg/models"
)

// Topic selects what a subscriber receives. Exactly one field is set.
type Topic struct {
	StaffID string
	JobID   string
}

func (t Topic) matches(j *models.Job) bool {
	if t.JobID != "" {
		return t.JobID == j.ID
	}
	return t.StaffID != "" && t.StaffID == j.AssignedTo
}

// Event is the message written to subscribers.
type Event struct {
	Type string      `json:"type"`
	Job  *models.Job `json:"job"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: map[*Client]struct{}{}, logger: logger}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", "staff_id", c.topic.StaffID, "job_id", c.topic.JobID)
}

// unregister is safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Publish fans a job snapshot out to matching subscribers. Subscribers whose
// buffer is full are dropped rather than blocking the writer.
func (h *Hub) Publish(j *models.Job) {
	if j == nil {
		return
	}
	ev := Event{Type: "job", Job: j}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.topic.matches(j) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow subscriber", "staff_id", c.topic.StaffID, "job_id", c.topic.JobID)
		h.unregister(c)
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[*Client]struct{}{}
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
