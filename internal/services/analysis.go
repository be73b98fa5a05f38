package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
	"noirvision-backend/internal/repository"
	"noirvision-backend/internal/storage"
)

const submitMessage = "Analysis started. Poll GET /api/videos/analyze/{job_id} for status."

// JobQueue hands a created job to the background runners.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// AnalysisService is the synchronous side of the pipeline: it validates and
// records submissions and serves job status and evidence reads.
type AnalysisService struct {
	jobs      repository.JobStore
	blobs     storage.BlobStore
	queue     JobQueue
	preflight []func() error
	log       logrus.FieldLogger
}

// NewAnalysisService builds the service. Each preflight check runs before a job
// is created; a failing check is reported as a ConfigurationError.
func NewAnalysisService(jobs repository.JobStore, blobs storage.BlobStore, queue JobQueue, log logrus.FieldLogger, preflight ...func() error) *AnalysisService {
	return &AnalysisService{
		jobs:      jobs,
		blobs:     blobs,
		queue:     queue,
		preflight: preflight,
		log:       log.WithField("component", "analysis"),
	}
}

// Submit creates a pending job and enqueues it. Invalid input is rejected before
// anything is written.
func (s *AnalysisService) Submit(ctx context.Context, req models.AnalyzeVideoRequest) (*models.AnalyzeVideoResponse, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.Claim = strings.TrimSpace(req.Claim)
	req.YouTubeURL = strings.TrimSpace(req.YouTubeURL)
	req.S3Key = strings.TrimSpace(req.S3Key)

	sourceType, sourceURL, err := validateAnalyzeRequest(req)
	if err != nil {
		return nil, err
	}

	for _, check := range s.preflight {
		if err := check(); err != nil {
			return nil, &ConfigurationError{Message: err.Error()}
		}
	}

	job := &models.Job{
		ProjectID:  req.ProjectID,
		Claim:      req.Claim,
		SourceType: sourceType,
		SourceURL:  sourceURL,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	log := s.log.WithFields(logrus.Fields{"job_id": job.ID, "project_id": job.ProjectID, "source_type": sourceType})
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		msg := "failed to schedule analysis: " + err.Error()
		if upErr := s.jobs.UpdateStatus(ctx, job.ID, repository.JobUpdate{Status: models.JobStatusFailed, ErrorMessage: &msg}); upErr != nil {
			log.WithError(upErr).Error("failed to mark unscheduled job as failed")
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	log.Info("analysis job submitted")
	return &models.AnalyzeVideoResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: submitMessage,
	}, nil
}

func (s *AnalysisService) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "Job not found"}
		}
		return nil, err
	}
	return &models.JobStatusResponse{
		JobID:   job.ID,
		Status:  job.Status,
		VideoID: job.VideoID,
		Error:   job.ErrorMessage,
	}, nil
}

// GetEvidence loads the persisted pack for videoID. projectID narrows the job
// lookup when the same video was analyzed for several projects.
func (s *AnalysisService) GetEvidence(ctx context.Context, videoID, projectID string) (*models.EvidencePack, error) {
	job, err := s.jobs.GetByVideoID(ctx, videoID, strings.TrimSpace(projectID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "No job found for this video_id (and project_id)"}
		}
		return nil, err
	}

	key := models.EvidenceKey(job.ProjectID, videoID)
	var pack models.EvidencePack
	if err := s.blobs.GetJSON(ctx, key, &pack); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Message: "Evidence not found (may still be processing)"}
		}
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	return &pack, nil
}

func validateAnalyzeRequest(req models.AnalyzeVideoRequest) (string, string, error) {
	fields := map[string]string{}
	if err := ValidateStruct(req); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return "", "", err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}

	hasYouTube := req.YouTubeURL != ""
	hasS3 := req.S3Key != ""
	switch {
	case hasYouTube && hasS3:
		fields["source"] = "Provide exactly one of youtube_url or s3_key, not both"
	case !hasYouTube && !hasS3:
		fields["source"] = "Provide exactly one of youtube_url or s3_key"
	}
	if hasYouTube && fields["youtube_url"] == "" {
		if u, err := url.Parse(req.YouTubeURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fields["youtube_url"] = "must be an http(s) URL"
		}
	}

	if len(fields) > 0 {
		return "", "", &ValidationError{Fields: fields}
	}
	if hasYouTube {
		return models.SourceYouTube, req.YouTubeURL, nil
	}
	return models.SourceS3, req.S3Key, nil
}
