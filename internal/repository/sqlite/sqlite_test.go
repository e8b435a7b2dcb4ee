package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	dbfs "github.com/garnizeh/fieldops/db"
	dbpkg "github.com/garnizeh/fieldops/internal/db"
	sqlite "github.com/garnizeh/fieldops/internal/repository/sqlite"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

func setupRepo(t *testing.T) (*sqlite.SQLiteRepo, *dbpkg.DB) {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return sqlite.New(d, nil), d
}

func TestStaffCRUD(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateStaff(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil staff")
	}

	got, err := repo.GetStaffByCode(ctx, "S-404")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for unknown code got %#v, %v", got, err)
	}

	s := &models.Staff{StaffCode: "S-001", Name: "Ana", PINHash: "hash", Active: true}
	id, err := repo.CreateStaff(ctx, s)
	if err != nil {
		t.Fatalf("CreateStaff error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	byCode, err := repo.GetStaffByCode(ctx, "S-001")
	if err != nil {
		t.Fatalf("GetStaffByCode error: %v", err)
	}
	if byCode == nil || byCode.ID != id || byCode.PINHash != "hash" || !byCode.Active {
		t.Fatalf("GetStaffByCode wrong result: %#v", byCode)
	}

	byID, err := repo.GetStaffByID(ctx, id)
	if err != nil {
		t.Fatalf("GetStaffByID error: %v", err)
	}
	if byID == nil || byID.StaffCode != "S-001" {
		t.Fatalf("GetStaffByID wrong result: %#v", byID)
	}

	if _, err := repo.CreateStaff(ctx, &models.Staff{StaffCode: "S-001", Name: "dup", PINHash: "h"}); err == nil {
		t.Fatalf("expected unique violation for duplicate staff code")
	}
}

func newJob(assignee string) *models.Job {
	scheduled := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &models.Job{
		Title:    "Deep clean",
		Priority: models.PriorityHigh,
		Location: models.Location{Address: "1 Main St", Coordinates: &models.Coordinates{Latitude: -23.5, Longitude: -46.6}},
		Requirements: []models.Requirement{
			{ID: "r1", Description: "Keys", IsRequired: true},
			{ID: "r2", Description: "Ladder", IsRequired: false},
		},
		BookingDetails: &models.BookingDetails{CustomerName: "Rui", EstimatedMinutes: 90},
		AssignedTo:     assignee,
		ScheduledFor:   &scheduled,
	}
}

func TestJobCreateGetUpdate(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateJob(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil job")
	}

	id, err := repo.CreateJob(ctx, newJob("staff-1"))
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	got, err := repo.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Status != models.StatusAssigned || got.AssignedTo != "staff-1" || len(got.Requirements) != 2 {
		t.Fatalf("unexpected job: %#v", got)
	}
	if got.Location.Coordinates == nil || got.Location.Coordinates.Latitude != -23.5 {
		t.Fatalf("coordinates not persisted: %#v", got.Location)
	}
	if got.BookingDetails == nil || got.BookingDetails.CustomerName != "Rui" {
		t.Fatalf("booking not persisted: %#v", got.BookingDetails)
	}
	if got.ScheduledFor == nil || !got.ScheduledFor.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("scheduled_for not persisted: %v", got.ScheduledFor)
	}

	status := models.StatusRejected
	reason := "wrong address"
	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.UpdateJob(ctx, id, models.JobUpdate{Status: &status, RejectedAt: &at, RejectionReason: &reason}); err != nil {
		t.Fatalf("UpdateJob error: %v", err)
	}

	got, err = repo.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob after update error: %v", err)
	}
	if got.Status != models.StatusRejected || got.RejectionReason != reason || got.RejectedAt == nil || !got.RejectedAt.Equal(at) {
		t.Fatalf("update not applied: %#v", got)
	}
	if got.AcceptedAt != nil || got.Completion != nil {
		t.Fatalf("untouched fields changed: %#v", got)
	}

	if _, err := repo.GetJob(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if err := repo.UpdateJob(ctx, "missing", models.JobUpdate{Status: &status}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update got %v", err)
	}
}

func TestUpdateJob_CompletionRecord(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	id, err := repo.CreateJob(ctx, newJob("staff-1"))
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	status := models.StatusCompleted
	at := time.Now().UTC()
	rec := &models.CompletionRecord{
		RequirementsSummary: []models.RequirementSummary{{ID: "r1", IsCompleted: true}, {ID: "r2"}},
		UploadedPhotos:      []models.Photo{{ID: "p1", Type: models.PhotoAfter, LocalURI: "/tmp/p1.jpg"}},
		CompletionNotes:     "done",
		CompletedBy:         "staff-1",
	}
	if err := repo.UpdateJob(ctx, id, models.JobUpdate{Status: &status, CompletedAt: &at, Completion: rec}); err != nil {
		t.Fatalf("UpdateJob error: %v", err)
	}

	got, err := repo.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.CompletedAt == nil || got.Completion == nil {
		t.Fatalf("completion not persisted: %#v", got)
	}
	if len(got.Completion.RequirementsSummary) != 2 || got.Completion.CompletionNotes != "done" {
		t.Fatalf("unexpected completion record: %#v", got.Completion)
	}
}

func TestListJobsByAssignee_LegacyFallback(t *testing.T) {
	repo, d := setupRepo(t)
	ctx := context.Background()

	// legacy rows only carry assigned_staff_id
	if _, err := d.Exec(ctx, `INSERT INTO jobs (id, title, assigned_staff_id, created, updated) VALUES ('legacy-1', 'Old job', 'staff-9', 1, 1)`); err != nil {
		t.Fatalf("insert legacy job: %v", err)
	}

	jobs, err := repo.ListJobsByAssignee(ctx, "staff-9", repository.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobsByAssignee error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "legacy-1" || jobs[0].AssignedTo != "staff-9" {
		t.Fatalf("expected legacy job normalized to AssignedTo got %#v", jobs)
	}

	// once a canonical row exists the legacy query is not consulted
	if _, err := repo.CreateJob(ctx, newJob("staff-9")); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	jobs, err = repo.ListJobsByAssignee(ctx, "staff-9", repository.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobsByAssignee error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID == "legacy-1" {
		t.Fatalf("expected only the canonical job got %#v", jobs)
	}

	none, err := repo.ListJobsByAssignee(ctx, "nobody", repository.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobsByAssignee error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no jobs got %d", len(none))
	}
}

func TestListJobsByAssignee_StatusFilter(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	a, _ := repo.CreateJob(ctx, newJob("staff-1"))
	if _, err := repo.CreateJob(ctx, newJob("staff-1")); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	accepted := models.StatusAccepted
	if err := repo.UpdateJob(ctx, a, models.JobUpdate{Status: &accepted}); err != nil {
		t.Fatalf("UpdateJob error: %v", err)
	}

	all, err := repo.ListJobsByAssignee(ctx, "staff-1", repository.JobFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 jobs got %d (%v)", len(all), err)
	}

	only, err := repo.ListJobsByAssignee(ctx, "staff-1", repository.JobFilter{Status: models.StatusAccepted})
	if err != nil {
		t.Fatalf("ListJobsByAssignee error: %v", err)
	}
	if len(only) != 1 || only[0].ID != a {
		t.Fatalf("expected only the accepted job got %#v", only)
	}
}

func TestAppendAudit(t *testing.T) {
	repo, d := setupRepo(t)
	ctx := context.Background()

	if err := repo.AppendAudit(ctx, nil); err == nil {
		t.Fatalf("expected error for nil entry")
	}

	e := &models.AuditEntry{JobID: "j1", SessionID: "sess", StaffID: "s1", Event: models.AuditStatusChange, FromStatus: models.StatusAssigned, ToStatus: models.StatusAccepted, Details: json.RawMessage(`{"distance_meters":12}`)}
	if err := repo.AppendAudit(ctx, e); err != nil {
		t.Fatalf("AppendAudit error: %v", err)
	}
	if e.ID == "" {
		t.Fatalf("expected generated audit id")
	}

	var event, to string
	if err := d.QueryRow(ctx, `SELECT event, to_status FROM audit_log WHERE job_id = 'j1'`).Scan(&event, &to); err != nil {
		t.Fatalf("scan audit: %v", err)
	}
	if event != "status_change" || to != "accepted" {
		t.Fatalf("unexpected audit row: %s %s", event, to)
	}
}

func TestPhotoCRUD(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	p := &models.Photo{JobID: "j1", StaffID: "s1", Type: models.PhotoBefore, LocalURI: "/staging/j1/a.jpg"}
	if err := repo.CreatePhoto(ctx, p); err != nil {
		t.Fatalf("CreatePhoto error: %v", err)
	}
	if err := repo.CreatePhoto(ctx, &models.Photo{JobID: "j1", StaffID: "s1", Type: models.PhotoAfter, LocalURI: "/staging/j1/b.jpg"}); err != nil {
		t.Fatalf("CreatePhoto error: %v", err)
	}

	list, err := repo.ListPhotosByJob(ctx, "j1")
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 photos got %d (%v)", len(list), err)
	}

	if err := repo.MarkPhotoUploaded(ctx, p.ID, "gs://bucket/j1/a.jpg"); err != nil {
		t.Fatalf("MarkPhotoUploaded error: %v", err)
	}
	got, err := repo.GetPhoto(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPhoto error: %v", err)
	}
	if got.RemoteURL != "gs://bucket/j1/a.jpg" || got.UploadedAt == nil {
		t.Fatalf("upload not recorded: %#v", got)
	}

	if _, err := repo.GetPhoto(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if err := repo.MarkPhotoUploaded(ctx, "missing", "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestChatMessages(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, c := range []string{"one", "two", "three"} {
		m := &models.ChatMessage{JobID: "j1", StaffID: "s1", Role: models.RoleStaff, Content: c, Created: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage error: %v", err)
		}
	}

	last, err := repo.ListMessages(ctx, "j1", 2)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(last) != 2 || last[0].Content != "two" || last[1].Content != "three" {
		t.Fatalf("expected the two most recent oldest first got %#v", last)
	}

	all, err := repo.ListMessages(ctx, "j1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected full history got %d (%v)", len(all), err)
	}
}

func TestOfflineQueue_SaveLoad(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	empty, err := repo.LoadQueue(ctx, "j1")
	if err != nil || empty != nil {
		t.Fatalf("expected empty queue got %#v (%v)", empty, err)
	}

	actions := []models.OfflineAction{
		{ID: "a1", Type: models.ActionAccept, JobID: "j1", StaffID: "s1", Timestamp: time.Now().UTC()},
		{ID: "a2", Type: models.ActionReject, JobID: "j1", StaffID: "s1", Data: json.RawMessage(`{"reason":"sick"}`), Timestamp: time.Now().UTC()},
	}
	if err := repo.SaveQueue(ctx, "j1", actions); err != nil {
		t.Fatalf("SaveQueue error: %v", err)
	}

	actions[0].Synced = true
	if err := repo.SaveQueue(ctx, "j1", actions); err != nil {
		t.Fatalf("SaveQueue overwrite error: %v", err)
	}

	got, err := repo.LoadQueue(ctx, "j1")
	if err != nil {
		t.Fatalf("LoadQueue error: %v", err)
	}
	if len(got) != 2 || !got[0].Synced || got[1].Synced || got[1].Type != models.ActionReject {
		t.Fatalf("unexpected queue: %#v", got)
	}

	ids, err := repo.ListQueuedJobIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "j1" {
		t.Fatalf("unexpected queued ids %v (%v)", ids, err)
	}
}

func TestTaskQueue(t *testing.T) {
	repo, d := setupRepo(t)
	ctx := context.Background()

	none, err := repo.FetchNext(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected no task got %#v (%v)", none, err)
	}

	id, err := repo.Enqueue(ctx, &models.BackgroundTask{Type: "photo.upload", Payload: json.RawMessage(`{"photo_id":"p1"}`)})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	task, err := repo.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if task == nil || task.ID != id || task.Status != "running" || task.MaxAttempts != 5 {
		t.Fatalf("unexpected task: %#v", task)
	}

	again, err := repo.FetchNext(ctx)
	if err != nil || again != nil {
		t.Fatalf("claimed task fetched twice: %#v (%v)", again, err)
	}

	task.Attempts = 5
	task.LastError = "bucket missing"
	if err := repo.MoveToDeadLetter(ctx, task); err != nil {
		t.Fatalf("MoveToDeadLetter error: %v", err)
	}

	var dead int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM dead_letter_tasks WHERE task_id = ?`, id).Scan(&dead); err != nil {
		t.Fatalf("count dead letters: %v", err)
	}
	if dead != 1 {
		t.Fatalf("expected 1 dead letter got %d", dead)
	}
}

func TestSchemaAndTemplate(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	schema := `{"type":"object","required":["answer"]}`
	if _, err := repo.CreateSchema(ctx, "v1", "answer", schema); err != nil {
		t.Fatalf("CreateSchema error: %v", err)
	}
	got, err := repo.GetSchemaByVersion(ctx, "v1")
	if err != nil || got == nil || got.SchemaJSON != schema {
		t.Fatalf("unexpected schema %#v (%v)", got, err)
	}
	list, err := repo.ListSchemas(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 schema got %d (%v)", len(list), err)
	}

	missing, err := repo.GetSchemaByVersion(ctx, "v9")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil got %#v (%v)", missing, err)
	}

	ver := "v1"
	if _, err := repo.CreateTemplate(ctx, "assistant", "v1", "Q: {{.Question}}", &ver); err != nil {
		t.Fatalf("CreateTemplate error: %v", err)
	}
	tpl, err := repo.GetTemplate(ctx, "assistant", "v1")
	if err != nil || tpl == nil || tpl.SchemaVer == nil || *tpl.SchemaVer != "v1" {
		t.Fatalf("unexpected template %#v (%v)", tpl, err)
	}
}
