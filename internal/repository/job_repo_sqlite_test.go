package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"noirvision-backend/internal/database"
	"noirvision-backend/internal/models"
)

func newTestSQLiteRepo(t *testing.T) *SQLiteJobRepo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := NewSQLiteJobRepo(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLiteJobRepo: %v", err)
	}
	return repo
}

func newJob(projectID string) *models.Job {
	return &models.Job{
		ProjectID:  projectID,
		Claim:      "The car ran the red light.",
		SourceType: models.SourceYouTube,
		SourceURL:  "https://youtu.be/abc",
	}
}

func strPtr(s string) *string { return &s }

func TestSQLiteJobRepo_CreateAndGet(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	job := newJob("p1")
	job.Status = models.JobStatusDone
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected generated job id")
	}
	if job.Status != models.JobStatusPending {
		t.Fatalf("expected new job to be pending, got %s", job.Status)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Claim != job.Claim || got.SourceURL != job.SourceURL || got.VideoID != nil {
		t.Fatalf("unexpected job %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Fatalf("expected created_at %s, got %s", job.CreatedAt, got.CreatedAt)
	}
}

func TestSQLiteJobRepo_GetByIDNotFound(t *testing.T) {
	repo := newTestSQLiteRepo(t)

	_, err := repo.GetByID(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteJobRepo_UpdateStatusIsPartial(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	job := newJob("p1")
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.UpdateStatus(ctx, job.ID, JobUpdate{Status: models.JobStatusProcessing, VideoID: strPtr("vid-1")}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.UpdateStatus(ctx, job.ID, JobUpdate{Status: models.JobStatusFailed, ErrorMessage: strPtr("boom")}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.VideoID == nil || *got.VideoID != "vid-1" {
		t.Fatalf("expected video id to survive a later update, got %v", got.VideoID)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Fatalf("expected error message boom, got %v", got.ErrorMessage)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("updated_at %s before created_at %s", got.UpdatedAt, got.CreatedAt)
	}
}

func TestSQLiteJobRepo_UpdateStatusUnknownJob(t *testing.T) {
	repo := newTestSQLiteRepo(t)

	err := repo.UpdateStatus(context.Background(), "missing", JobUpdate{Status: models.JobStatusDone})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteJobRepo_GetByVideoID(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	first := newJob("p1")
	second := newJob("p2")
	for _, j := range []*models.Job{first, second} {
		if err := repo.Create(ctx, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	repo.UpdateStatus(ctx, first.ID, JobUpdate{Status: models.JobStatusDone, VideoID: strPtr("vid-shared")})
	time.Sleep(2 * time.Millisecond)
	repo.UpdateStatus(ctx, second.ID, JobUpdate{Status: models.JobStatusDone, VideoID: strPtr("vid-shared")})

	got, err := repo.GetByVideoID(ctx, "vid-shared", "p1")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected project filter to select %s, got %s", first.ID, got.ID)
	}

	got, err = repo.GetByVideoID(ctx, "vid-shared", "")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected most recently updated job %s, got %s", second.ID, got.ID)
	}

	if _, err := repo.GetByVideoID(ctx, "vid-shared", "p3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other project, got %v", err)
	}
}
