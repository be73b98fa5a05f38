package models

import "time"

type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UpdateProfileRequest struct {
	Email *string `json:"email" validate:"omitempty,email"`
}

type Incident struct {
	IncidentID    string    `json:"incident_id"`
	UserID        string    `json:"user_id"`
	IncidentName  string    `json:"incident_name"`
	Description   string    `json:"description"`
	VideoLink     string    `json:"video_link"`
	GeneratedText string    `json:"generated_text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateIncidentRequest struct {
	IncidentID    string `json:"incident_id" validate:"required,max=128"`
	IncidentName  string `json:"incident_name" validate:"required,max=256"`
	Description   string `json:"description" validate:"max=10000"`
	VideoLink     string `json:"video_link" validate:"omitempty,max=2048"`
	GeneratedText string `json:"generated_text"`
}

// UpdateIncidentRequest patches only the non-nil fields.
type UpdateIncidentRequest struct {
	IncidentName  *string `json:"incident_name" validate:"omitempty,max=256"`
	Description   *string `json:"description" validate:"omitempty,max=10000"`
	VideoLink     *string `json:"video_link" validate:"omitempty,max=2048"`
	GeneratedText *string `json:"generated_text"`
}
