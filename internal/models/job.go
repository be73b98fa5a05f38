package models

import (
	"time"
)

// Job statuses. pending and processing are in flight; done and failed are terminal.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// Source types.
const (
	SourceYouTube = "youtube"
	SourceS3      = "s3"
)

type Job struct {
	ID           string    `json:"job_id"`
	ProjectID    string    `json:"project_id"`
	Claim        string    `json:"claim"`
	Status       string    `json:"status"`
	VideoID      *string   `json:"video_id,omitempty"`
	SourceType   string    `json:"source_type"`
	SourceURL    string    `json:"source_url"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job has reached done or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// IsValidJobStatus reports whether s is one of the four job states.
func IsValidJobStatus(s string) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

type AnalyzeVideoRequest struct {
	ProjectID  string `json:"project_id" validate:"required,max=128"`
	Claim      string `json:"claim" validate:"required,max=10000"`
	YouTubeURL string `json:"youtube_url,omitempty" validate:"omitempty,url"`
	S3Key      string `json:"s3_key,omitempty" validate:"omitempty,max=1024"`
}

type AnalyzeVideoResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type JobStatusResponse struct {
	JobID   string  `json:"job_id"`
	Status  string  `json:"status"`
	VideoID *string `json:"video_id,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// JobUpdate is published on every job state transition.
type JobUpdate struct {
	JobID   string  `json:"job_id"`
	Status  string  `json:"status"`
	VideoID *string `json:"video_id,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
