package models

import (
	"encoding/json"
	"time"
)

// Domain models matching the database schema in db/migrations/0001_init.sql

type JobStatus string

const (
	StatusAssigned   JobStatus = "assigned"
	StatusAccepted   JobStatus = "accepted"
	StatusRejected   JobStatus = "rejected"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusRejected, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Location struct {
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Fix is a single GPS reading.
type Fix struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (f Fix) Coordinates() Coordinates {
	return Coordinates{Latitude: f.Latitude, Longitude: f.Longitude}
}

type Requirement struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	IsRequired  bool   `json:"is_required"`
	IsCompleted bool   `json:"is_completed"`
	Notes       string `json:"notes,omitempty"`
}

type BookingDetails struct {
	CustomerName       string `json:"customer_name,omitempty"`
	ContactPhone       string `json:"contact_phone,omitempty"`
	AccessInstructions string `json:"access_instructions,omitempty"`
	EstimatedMinutes   int    `json:"estimated_minutes,omitempty"`
}

type Job struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Status          JobStatus         `json:"status"`
	Priority        Priority          `json:"priority"`
	Location        Location          `json:"location"`
	Requirements    []Requirement     `json:"requirements"`
	BookingDetails  *BookingDetails   `json:"booking_details,omitempty"`
	AssignedTo      string            `json:"assigned_to"`
	ScheduledFor    *time.Time        `json:"scheduled_for,omitempty"`
	AcceptedAt      *time.Time        `json:"accepted_at,omitempty"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	RejectedAt      *time.Time        `json:"rejected_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Acknowledged    []string          `json:"acknowledged_requirements,omitempty"`
	StartLocation   *Fix              `json:"start_location,omitempty"`
	Completion      *CompletionRecord `json:"completion,omitempty"`
	Created         time.Time         `json:"created"`
	Updated         time.Time         `json:"updated"`
}

// Requirement returns the requirement with the given id.
func (j *Job) Requirement(id string) (*Requirement, bool) {
	for i := range j.Requirements {
		if j.Requirements[i].ID == id {
			return &j.Requirements[i], true
		}
	}
	return nil, false
}

// JobUpdate is the full set of fields a single transition writes. Nil fields
// are left untouched; the store applies all non-nil fields in one statement.
type JobUpdate struct {
	Status          *JobStatus
	Requirements    []Requirement
	AcceptedAt      *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	RejectedAt      *time.Time
	RejectionReason *string
	Acknowledged    []string
	StartLocation   *Fix
	Completion      *CompletionRecord
}

type PhotoType string

const (
	PhotoBefore PhotoType = "before"
	PhotoDuring PhotoType = "during"
	PhotoAfter  PhotoType = "after"
	PhotoIssue  PhotoType = "issue"
)

func (t PhotoType) Valid() bool {
	switch t {
	case PhotoBefore, PhotoDuring, PhotoAfter, PhotoIssue:
		return true
	}
	return false
}

type Photo struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	StaffID     string     `json:"staff_id"`
	Type        PhotoType  `json:"type"`
	LocalURI    string     `json:"local_uri"`
	RemoteURL   string     `json:"remote_url,omitempty"`
	ContentType string     `json:"content_type"`
	CapturedAt  time.Time  `json:"captured_at"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
}

type ChecklistItem struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Checked  bool   `json:"checked"`
}

type RequirementSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	IsRequired  bool   `json:"is_required"`
	IsCompleted bool   `json:"is_completed"`
	Notes       string `json:"notes,omitempty"`
}

// CompletionRecord is assembled once, at the confirm step of the completion wizard.
type CompletionRecord struct {
	RequirementsSummary []RequirementSummary `json:"requirements_summary"`
	PhotosSummary       []ChecklistItem      `json:"photos_summary"`
	UploadedPhotos      []Photo              `json:"uploaded_photos"`
	FinalQualityCheck   []ChecklistItem      `json:"final_quality_check"`
	CompletionNotes     string               `json:"completion_notes,omitempty"`
	EndLocation         *Fix                 `json:"end_location,omitempty"`
	CompletedBy         string               `json:"completed_by"`
}

type OfflineActionType string

const (
	ActionAccept OfflineActionType = "accept"
	ActionReject OfflineActionType = "reject"
)

type OfflineAction struct {
	ID        string            `json:"id"`
	Type      OfflineActionType `json:"type"`
	JobID     string            `json:"job_id"`
	StaffID   string            `json:"staff_id"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Synced    bool              `json:"synced"`
	SyncedAt  *time.Time        `json:"synced_at,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	Refused   bool              `json:"refused,omitempty"` // turned down for good, never replayed
}

type AuditEvent string

const (
	AuditStatusChange  AuditEvent = "status_change"
	AuditPhotoCaptured AuditEvent = "photo_captured"
)

type AuditEntry struct {
	ID         string          `json:"id"`
	JobID      string          `json:"job_id"`
	SessionID  string          `json:"session_id"`
	StaffID    string          `json:"staff_id"`
	Event      AuditEvent      `json:"event"`
	FromStatus JobStatus       `json:"from_status,omitempty"`
	ToStatus   JobStatus       `json:"to_status,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Created    time.Time       `json:"created"`
}

type Staff struct {
	ID        string `json:"id"`
	StaffCode string `json:"staff_code"`
	Name      string `json:"name"`
	PINHash   string `json:"-"`
	Active    bool   `json:"active"`
	Created   int64  `json:"created"`
	Updated   int64  `json:"updated"`
}

type ChatRole string

const (
	RoleStaff     ChatRole = "staff"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	ID      string    `json:"id"`
	JobID   string    `json:"job_id"`
	StaffID string    `json:"staff_id"`
	Role    ChatRole  `json:"role"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}

type Schema struct {
	ID          int64  `json:"id" db:"id"`
	Version     string `json:"version" db:"version"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

type Template struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Version     string  `json:"version" db:"version"`
	TemplateTxt string  `json:"template_text" db:"template_text"`
	SchemaVer   *string `json:"schema_version,omitempty" db:"schema_version"`
	Created     int64   `json:"created" db:"created"`
	Updated     int64   `json:"updated" db:"updated"`
}

// BackgroundTask is a persisted unit of deferred work processed by the task pool.
type BackgroundTask struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}
