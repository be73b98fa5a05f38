package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"noirvision-backend/internal/models"
)

// Fixed width so stored timestamps compare correctly as text.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

const sqliteJobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    project_id    TEXT NOT NULL,
    claim         TEXT NOT NULL,
    status        TEXT NOT NULL,
    video_id      TEXT,
    source_type   TEXT NOT NULL,
    source_url    TEXT NOT NULL,
    error_message TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON jobs (video_id, updated_at);
`

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteJobRepo is the single-node job store used when no DATABASE_URL is configured.
type SQLiteJobRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewSQLiteJobRepo applies the schema to db and returns the store.
func NewSQLiteJobRepo(ctx context.Context, db *sql.DB) (*SQLiteJobRepo, error) {
	if _, err := db.ExecContext(ctx, sqliteJobsSchema); err != nil {
		return nil, fmt.Errorf("apply jobs schema: %w", err)
	}
	return &SQLiteJobRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (r *SQLiteJobRepo) Create(ctx context.Context, j *models.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = models.JobStatusPending
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	query, args, err := r.sb.Insert("jobs").
		Columns("id", "project_id", "claim", "status", "video_id", "source_type", "source_url", "error_message", "created_at", "updated_at").
		Values(j.ID, j.ProjectID, j.Claim, j.Status, nullableString(j.VideoID), j.SourceType, j.SourceURL,
			nullableString(j.ErrorMessage), now.Format(sqliteTimeFormat), now.Format(sqliteTimeFormat)).
		ToSql()
	if err != nil {
		return err
	}

	return retryOnBusy(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (r *SQLiteJobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanSQLiteJob(row)
}

func (r *SQLiteJobRepo) UpdateStatus(ctx context.Context, id string, upd JobUpdate) error {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	query, args, err := buildJobUpdate(r.sb, id, upd, sq.Expr("MAX(updated_at, ?)", now))
	if err != nil {
		return err
	}

	var affected int64
	err = retryOnBusy(ctx, func() error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteJobRepo) GetByVideoID(ctx context.Context, videoID, projectID string) (*models.Job, error) {
	query, args, err := buildVideoLookup(r.sb, videoID, projectID)
	if err != nil {
		return nil, err
	}
	return scanSQLiteJob(r.db.QueryRowContext(ctx, query, args...))
}

func scanSQLiteJob(row *sql.Row) (*models.Job, error) {
	var (
		j                    models.Job
		videoID, errMsg      sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&j.ID, &j.ProjectID, &j.Claim, &j.Status, &videoID,
		&j.SourceType, &j.SourceURL, &errMsg, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if videoID.Valid {
		j.VideoID = &videoID.String
	}
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	if j.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &j, nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     busyRetryInitialBackoff,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         busyRetryMaxBackoff,
	}
	b.Reset()

	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			return lastErr
		}
		t := time.NewTimer(b.NextBackOff())
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
