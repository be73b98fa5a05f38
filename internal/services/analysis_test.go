package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"noirvision-backend/internal/models"
	"noirvision-backend/internal/repository"
	"noirvision-backend/internal/storage"
)

type memJobStore struct {
	jobs    map[string]*models.Job
	creates int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]*models.Job{}}
}

func (m *memJobStore) Create(ctx context.Context, j *models.Job) error {
	m.creates++
	if j.ID == "" {
		j.ID = "job-" + string(rune('a'+m.creates-1))
	}
	j.Status = models.JobStatusPending
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memJobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobStore) UpdateStatus(ctx context.Context, id string, upd repository.JobUpdate) error {
	j, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = upd.Status
	if upd.VideoID != nil {
		j.VideoID = upd.VideoID
	}
	if upd.ErrorMessage != nil {
		j.ErrorMessage = upd.ErrorMessage
	}
	return nil
}

func (m *memJobStore) GetByVideoID(ctx context.Context, videoID, projectID string) (*models.Job, error) {
	for _, j := range m.jobs {
		if j.VideoID != nil && *j.VideoID == videoID && (projectID == "" || j.ProjectID == projectID) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memBlobStore struct {
	docs map[string]interface{}
}

func (m *memBlobStore) PutJSON(ctx context.Context, key string, v interface{}) error {
	m.docs[key] = v
	return nil
}

func (m *memBlobStore) GetJSON(ctx context.Context, key string, v interface{}) error {
	doc, ok := m.docs[key]
	if !ok {
		return storage.ErrNotFound
	}
	*(v.(*models.EvidencePack)) = *(doc.(*models.EvidencePack))
	return nil
}

func (m *memBlobStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

type recordingQueue struct {
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(ctx context.Context, jobID string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

func TestSubmit_CreatesPendingJobAndEnqueues(t *testing.T) {
	jobs := newMemJobStore()
	queue := &recordingQueue{}
	svc := NewAnalysisService(jobs, &memBlobStore{}, queue, testLogger())

	resp, err := svc.Submit(context.Background(), models.AnalyzeVideoRequest{
		ProjectID:  "p1",
		Claim:      " The suspect left at noon. ",
		YouTubeURL: "https://youtu.be/abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.JobStatusPending {
		t.Fatalf("expected pending, got %s", resp.Status)
	}
	if len(queue.ids) != 1 || queue.ids[0] != resp.JobID {
		t.Fatalf("expected job %s to be enqueued, got %v", resp.JobID, queue.ids)
	}

	job := jobs.jobs[resp.JobID]
	if job.SourceType != models.SourceYouTube || job.SourceURL != "https://youtu.be/abc" {
		t.Fatalf("unexpected source on job %+v", job)
	}
	if job.Claim != "The suspect left at noon." {
		t.Fatalf("expected trimmed claim, got %q", job.Claim)
	}
}

func TestSubmit_S3Source(t *testing.T) {
	jobs := newMemJobStore()
	svc := NewAnalysisService(jobs, &memBlobStore{}, &recordingQueue{}, testLogger())

	resp, err := svc.Submit(context.Background(), models.AnalyzeVideoRequest{
		ProjectID: "p1",
		Claim:     "claim",
		S3Key:     "uploads/p1/clip.mp4",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job := jobs.jobs[resp.JobID]; job.SourceType != models.SourceS3 {
		t.Fatalf("expected s3 source, got %s", job.SourceType)
	}
}

func TestSubmit_ValidationRejectsBeforeCreate(t *testing.T) {
	tests := []struct {
		name  string
		req   models.AnalyzeVideoRequest
		field string
	}{
		{"no source", models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c"}, "source"},
		{"both sources", models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c", YouTubeURL: "https://youtu.be/x", S3Key: "k"}, "source"},
		{"blank source", models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c", YouTubeURL: "   "}, "source"},
		{"missing claim", models.AnalyzeVideoRequest{ProjectID: "p", S3Key: "k"}, "claim"},
		{"missing project", models.AnalyzeVideoRequest{Claim: "c", S3Key: "k"}, "project_id"},
		{"not a url", models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c", YouTubeURL: "youtube"}, "youtube_url"},
		{"ftp url", models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c", YouTubeURL: "ftp://host/video"}, "youtube_url"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs := newMemJobStore()
			queue := &recordingQueue{}
			svc := NewAnalysisService(jobs, &memBlobStore{}, queue, testLogger())

			_, err := svc.Submit(context.Background(), tc.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, verr.Fields)
			}
			if jobs.creates != 0 || len(queue.ids) != 0 {
				t.Fatalf("expected no job to be created")
			}
		})
	}
}

func TestSubmit_PreflightFailureIsConfigurationError(t *testing.T) {
	jobs := newMemJobStore()
	svc := NewAnalysisService(jobs, &memBlobStore{}, &recordingQueue{}, testLogger(),
		func() error { return errors.New("missing required env: S3_BUCKET") },
	)

	_, err := svc.Submit(context.Background(), models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c", S3Key: "k"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if jobs.creates != 0 {
		t.Fatalf("expected no job to be created")
	}
}

func TestSubmit_EnqueueFailureMarksJobFailed(t *testing.T) {
	jobs := newMemJobStore()
	svc := NewAnalysisService(jobs, &memBlobStore{}, &recordingQueue{err: errors.New("redis down")}, testLogger())

	_, err := svc.Submit(context.Background(), models.AnalyzeVideoRequest{ProjectID: "p", Claim: "c", S3Key: "k"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, j := range jobs.jobs {
		if j.Status != models.JobStatusFailed || j.ErrorMessage == nil {
			t.Fatalf("expected job to be failed with message, got %+v", j)
		}
	}
}

func TestGetJobStatus(t *testing.T) {
	jobs := newMemJobStore()
	svc := NewAnalysisService(jobs, &memBlobStore{}, &recordingQueue{}, testLogger())

	if _, err := svc.GetJobStatus(context.Background(), "missing"); !isNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	vid := "vid-1"
	jobs.jobs["j1"] = &models.Job{ID: "j1", Status: models.JobStatusDone, VideoID: &vid}
	resp, err := svc.GetJobStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.JobStatusDone || resp.VideoID == nil || *resp.VideoID != "vid-1" {
		t.Fatalf("unexpected status response %+v", resp)
	}
}

func TestGetEvidence(t *testing.T) {
	jobs := newMemJobStore()
	blobs := &memBlobStore{docs: map[string]interface{}{}}
	svc := NewAnalysisService(jobs, blobs, &recordingQueue{}, testLogger())
	ctx := context.Background()

	if _, err := svc.GetEvidence(ctx, "vid-1", ""); !isNotFound(err) {
		t.Fatalf("expected NotFoundError without a job, got %v", err)
	}

	vid := "vid-1"
	jobs.jobs["j1"] = &models.Job{ID: "j1", ProjectID: "p1", Status: models.JobStatusProcessing, VideoID: &vid}
	if _, err := svc.GetEvidence(ctx, "vid-1", "p1"); !isNotFound(err) {
		t.Fatalf("expected NotFoundError before the pack is persisted, got %v", err)
	}

	blobs.docs[models.EvidenceKey("p1", "vid-1")] = &models.EvidencePack{VideoID: "vid-1", Transcript: "t"}
	pack, err := svc.GetEvidence(ctx, "vid-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pack.Transcript != "t" {
		t.Fatalf("unexpected pack %+v", pack)
	}
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
