package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
	"noirvision-backend/internal/repository"
	"noirvision-backend/internal/services"
	"noirvision-backend/internal/storage"
)

const s3SourceURLExpiry = 2 * time.Hour

// ReadinessPoller waits for an indexing task to become ready.
type ReadinessPoller interface {
	PollUntilReady(ctx context.Context, taskID string, timeout time.Duration) (string, error)
}

// Runner drives a single job from pending to done or failed.
type Runner struct {
	jobs        repository.JobStore
	blobs       storage.BlobStore
	provider    services.VideoProvider
	poller      ReadinessPoller
	notifier    Notifier
	pollTimeout time.Duration
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewRunner(
	jobs repository.JobStore,
	blobs storage.BlobStore,
	provider services.VideoProvider,
	poller ReadinessPoller,
	notifier Notifier,
	pollTimeout time.Duration,
	log logrus.FieldLogger,
) *Runner {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Runner{
		jobs:        jobs,
		blobs:       blobs,
		provider:    provider,
		poller:      poller,
		notifier:    notifier,
		pollTimeout: pollTimeout,
		log:         log.WithField("component", "runner"),
		now:         time.Now,
	}
}

// Run processes jobID. It never returns an error: every outcome is recorded on
// the job itself. Running a job that already finished does nothing.
func (r *Runner) Run(ctx context.Context, jobID string) {
	log := r.log.WithField("job_id", jobID)

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("job not found, skipping")
		} else {
			log.WithError(err).Error("failed to load job")
		}
		return
	}
	if job.IsTerminal() {
		log.WithField("status", job.Status).Info("job already finished, skipping")
		return
	}

	var videoID string
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("job panicked")
			r.fail(ctx, log, job.ID, videoID, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if err := r.transition(ctx, job.ID, repository.JobUpdate{Status: models.JobStatusProcessing}); err != nil {
		log.WithError(err).Error("failed to mark job processing")
		r.fail(ctx, log, job.ID, "", &services.StorageError{Op: "update", Key: job.ID, Err: err})
		return
	}

	if err := r.process(ctx, log, job, &videoID); err != nil {
		r.fail(ctx, log, job.ID, videoID, err)
		return
	}

	if err := r.transition(ctx, job.ID, repository.JobUpdate{Status: models.JobStatusDone, VideoID: &videoID}); err != nil {
		log.WithError(err).Error("failed to mark job done")
		r.fail(ctx, log, job.ID, videoID, &services.StorageError{Op: "update", Key: job.ID, Err: err})
		return
	}
	log.WithField("video_id", videoID).Info("job done")
}

func (r *Runner) process(ctx context.Context, log logrus.FieldLogger, job *models.Job, videoID *string) error {
	sourceURL, err := r.resolveSource(ctx, job)
	if err != nil {
		return err
	}

	taskID, knownVideoID, err := r.provider.CreateIndexingTask(ctx, sourceURL)
	if err != nil {
		return err
	}
	*videoID = knownVideoID
	log = log.WithField("task_id", taskID)
	log.Info("indexing task created")

	readyVideoID, err := r.poller.PollUntilReady(ctx, taskID, r.pollTimeout)
	if err != nil {
		return err
	}
	*videoID = readyVideoID

	arts, err := r.provider.FetchArtifacts(ctx, readyVideoID)
	if err != nil {
		return err
	}

	pack := services.BuildEvidencePack(readyVideoID, models.EvidenceSource{Type: job.SourceType, URL: job.SourceURL}, arts, r.now())
	key := models.EvidenceKey(job.ProjectID, readyVideoID)
	if err := r.blobs.PutJSON(ctx, key, pack); err != nil {
		return &services.StorageError{Op: "put", Key: key, Err: err}
	}

	log.WithFields(logrus.Fields{
		"video_id": readyVideoID,
		"chapters": len(pack.Chapters),
		"events":   len(pack.Events),
	}).Info("evidence pack stored")
	return nil
}

func (r *Runner) resolveSource(ctx context.Context, job *models.Job) (string, error) {
	switch job.SourceType {
	case models.SourceYouTube:
		return job.SourceURL, nil
	case models.SourceS3:
		u, err := r.blobs.PresignGet(ctx, job.SourceURL, s3SourceURLExpiry)
		if err != nil {
			return "", &services.StorageError{Op: "presign", Key: job.SourceURL, Err: err}
		}
		return u, nil
	default:
		return "", fmt.Errorf("unsupported source type %q", job.SourceType)
	}
}

func (r *Runner) fail(ctx context.Context, log logrus.FieldLogger, jobID, videoID string, cause error) {
	msg := cause.Error()
	upd := repository.JobUpdate{Status: models.JobStatusFailed, ErrorMessage: &msg}
	if videoID != "" {
		upd.VideoID = &videoID
	}

	// Record the failure even when the run was cancelled.
	if err := r.transition(context.WithoutCancel(ctx), jobID, upd); err != nil {
		log.WithError(err).Error("failed to mark job failed")
		return
	}
	log.WithError(cause).Warn("job failed")
}

func (r *Runner) transition(ctx context.Context, jobID string, upd repository.JobUpdate) error {
	if err := r.jobs.UpdateStatus(ctx, jobID, upd); err != nil {
		return err
	}
	r.notifier.Notify(ctx, models.JobUpdate{
		JobID:   jobID,
		Status:  upd.Status,
		VideoID: upd.VideoID,
		Error:   upd.ErrorMessage,
	})
	return nil
}
