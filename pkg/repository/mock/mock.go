package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	Staff  *StaffRepo
	Jobs   *JobRepo
	Audit  *AuditRepo
	Photos *PhotoRepo
	Chat   *ChatRepo
	Queue  *QueueRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		Staff:  &StaffRepo{byID: map[string]*models.Staff{}},
		Jobs:   NewJobRepo(),
		Audit:  &AuditRepo{},
		Photos: &PhotoRepo{byID: map[string]*models.Photo{}},
		Chat:   &ChatRepo{},
		Queue:  &QueueRepo{queues: map[string][]models.OfflineAction{}},
	}
}

type StaffRepo struct {
	mu        sync.Mutex
	byID      map[string]*models.Staff
	CreateErr error
	GetErr    error
}

func (m *StaffRepo) CreateStaff(ctx context.Context, s *models.Staff) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	cp := *s
	m.byID[s.ID] = &cp
	return s.ID, nil
}

func (m *StaffRepo) GetStaffByID(ctx context.Context, id string) (*models.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *StaffRepo) GetStaffByCode(ctx context.Context, code string) (*models.Staff, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.StaffCode == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// JobRepo keeps jobs in memory. UpdateErr fails every UpdateJob call and
// leaves the stored job untouched.
type JobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*models.Job
	Updates   []models.JobUpdate
	UpdateErr error
	GetErr    error
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: map[string]*models.Job{}}
}

func (m *JobRepo) CreateJob(ctx context.Context, j *models.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = models.StatusAssigned
	}
	j.Created = time.Now().UTC()
	j.Updated = j.Created
	m.jobs[j.ID] = cloneJob(j)
	return j.ID, nil
}

func (m *JobRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *JobRepo) ListJobsByAssignee(ctx context.Context, staffID string, f repository.JobFilter) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Job
	for _, j := range m.jobs {
		if j.AssignedTo != staffID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, *cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// FailUpdates sets UpdateErr while other goroutines may be writing.
func (m *JobRepo) FailUpdates(err error) {
	m.mu.Lock()
	m.UpdateErr = err
	m.mu.Unlock()
}

func (m *JobRepo) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Updates = append(m.Updates, u)
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Requirements != nil {
		j.Requirements = slices.Clone(u.Requirements)
	}
	if u.AcceptedAt != nil {
		j.AcceptedAt = u.AcceptedAt
	}
	if u.StartedAt != nil {
		j.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		j.CompletedAt = u.CompletedAt
	}
	if u.RejectedAt != nil {
		j.RejectedAt = u.RejectedAt
	}
	if u.RejectionReason != nil {
		j.RejectionReason = *u.RejectionReason
	}
	if u.Acknowledged != nil {
		j.Acknowledged = slices.Clone(u.Acknowledged)
	}
	if u.StartLocation != nil {
		j.StartLocation = u.StartLocation
	}
	if u.Completion != nil {
		j.Completion = u.Completion
	}
	j.Updated = time.Now().UTC()
	return nil
}

func cloneJob(j *models.Job) *models.Job {
	cp := *j
	cp.Requirements = slices.Clone(j.Requirements)
	cp.Acknowledged = slices.Clone(j.Acknowledged)
	return &cp
}

type AuditRepo struct {
	mu        sync.Mutex
	Entries   []models.AuditEntry
	AppendErr error
}

func (m *AuditRepo) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, *e)
	return nil
}

// Snapshot returns a copy of the recorded entries.
func (m *AuditRepo) Snapshot() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Entries)
}

type PhotoRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.Photo
	order []string
}

func (m *PhotoRepo) CreatePhoto(ctx context.Context, p *models.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	m.byID[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *PhotoRepo) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *PhotoRepo) ListPhotosByJob(ctx context.Context, jobID string) ([]models.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Photo
	for _, id := range m.order {
		if p := m.byID[id]; p.JobID == jobID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *PhotoRepo) MarkPhotoUploaded(ctx context.Context, id, remoteURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	p.RemoteURL = remoteURL
	p.UploadedAt = &now
	return nil
}

type ChatRepo struct {
	mu       sync.Mutex
	Messages []models.ChatMessage
}

func (m *ChatRepo) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	m.Messages = append(m.Messages, *msg)
	return nil
}

func (m *ChatRepo) ListMessages(ctx context.Context, jobID string, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatMessage
	for _, msg := range m.Messages {
		if msg.JobID == jobID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type QueueRepo struct {
	mu      sync.Mutex
	queues  map[string][]models.OfflineAction
	order   []string
	SaveErr error
}

func (m *QueueRepo) LoadQueue(ctx context.Context, jobID string) ([]models.OfflineAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queues[jobID]), nil
}

func (m *QueueRepo) SaveQueue(ctx context.Context, jobID string, actions []models.OfflineAction) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[jobID]; !ok {
		m.order = append(m.order, jobID)
	}
	m.queues[jobID] = slices.Clone(actions)
	return nil
}

func (m *QueueRepo) ListQueuedJobIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order), nil
}

var (
	_ repository.StaffRepo        = (*StaffRepo)(nil)
	_ repository.JobRepo          = (*JobRepo)(nil)
	_ repository.AuditRepo        = (*AuditRepo)(nil)
	_ repository.PhotoRepo        = (*PhotoRepo)(nil)
	_ repository.ChatRepo         = (*ChatRepo)(nil)
	_ repository.OfflineQueueRepo = (*QueueRepo)(nil)
)
