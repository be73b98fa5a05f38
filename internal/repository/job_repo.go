package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"noirvision-backend/internal/models"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("repository: not found")

// JobStore is the durable record of analysis jobs.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	UpdateStatus(ctx context.Context, id string, upd JobUpdate) error
	GetByVideoID(ctx context.Context, videoID, projectID string) (*models.Job, error)
}

// JobUpdate changes status and, when non-nil, the video id and error message.
type JobUpdate struct {
	Status       string
	VideoID      *string
	ErrorMessage *string
}

const jobColumns = "id, project_id, claim, status, video_id, source_type, source_url, error_message, created_at, updated_at"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = models.JobStatusPending
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	query := `INSERT INTO jobs (id, project_id, claim, status, video_id, source_type, source_url, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		j.ID, j.ProjectID, j.Claim, j.Status, j.VideoID, j.SourceType, j.SourceURL, j.ErrorMessage, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanPgJob(r.pool.QueryRow(ctx, query, id))
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id string, upd JobUpdate) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	query, args, err := buildJobUpdate(psql, id, upd, sq.Expr("GREATEST(updated_at, ?)", time.Now().UTC()))
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JobRepo) GetByVideoID(ctx context.Context, videoID, projectID string) (*models.Job, error) {
	query, args, err := buildVideoLookup(psql, videoID, projectID)
	if err != nil {
		return nil, err
	}
	return scanPgJob(r.pool.QueryRow(ctx, query, args...))
}

func scanPgJob(row pgx.Row) (*models.Job, error) {
	j := &models.Job{}
	var id uuid.UUID
	err := row.Scan(
		&id, &j.ProjectID, &j.Claim, &j.Status, &j.VideoID,
		&j.SourceType, &j.SourceURL, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.ID = id.String()
	return j, nil
}

// buildJobUpdate renders the partial update shared by both backends.
func buildJobUpdate(b sq.StatementBuilderType, id string, upd JobUpdate, updatedAt interface{}) (string, []interface{}, error) {
	if !models.IsValidJobStatus(upd.Status) {
		return "", nil, fmt.Errorf("repository: invalid job status %q", upd.Status)
	}
	q := b.Update("jobs").
		Set("status", upd.Status).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": id})
	if upd.VideoID != nil {
		q = q.Set("video_id", *upd.VideoID)
	}
	if upd.ErrorMessage != nil {
		q = q.Set("error_message", *upd.ErrorMessage)
	}
	return q.ToSql()
}

func buildVideoLookup(b sq.StatementBuilderType, videoID, projectID string) (string, []interface{}, error) {
	where := sq.Eq{"video_id": videoID}
	if projectID != "" {
		where["project_id"] = projectID
	}
	return b.Select(jobColumns).
		From("jobs").
		Where(where).
		OrderBy("updated_at DESC").
		Limit(1).
		ToSql()
}
