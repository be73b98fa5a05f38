package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
	"noirvision-backend/internal/repository"
)

// ProfileStore persists user profiles and their incidents.
type ProfileStore interface {
	PutProfile(ctx context.Context, userID, email string) (*models.Profile, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	PutIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, userID, incidentID string) (*models.Incident, error)
	ListIncidents(ctx context.Context, userID string) ([]*models.Incident, error)
	UpdateIncident(ctx context.Context, userID, incidentID string, req models.UpdateIncidentRequest) (*models.Incident, error)
}

type UserService struct {
	store ProfileStore
	log   logrus.FieldLogger
}

// NewUserService returns a service that answers ConfigurationError for every
// call when store is nil.
func NewUserService(store ProfileStore, log logrus.FieldLogger) *UserService {
	return &UserService{store: store, log: log.WithField("component", "users")}
}

func (s *UserService) ready() error {
	if s.store == nil {
		return &ConfigurationError{Message: "User storage is not configured (DYNAMODB_TABLE_NAME)"}
	}
	return nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Profile not found; create it first with PUT /api/users/me/profile"}
	}
	return p, err
}

// PutProfile creates or replaces the profile. tokenEmail is used when the
// request carries no email.
func (s *UserService) PutProfile(ctx context.Context, userID, tokenEmail string, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	email := tokenEmail
	if req.Email != nil {
		email = strings.TrimSpace(*req.Email)
	}
	return s.store.PutProfile(ctx, userID, email)
}

func (s *UserService) CreateIncident(ctx context.Context, userID string, req models.CreateIncidentRequest) (*models.Incident, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	req.IncidentID = strings.TrimSpace(req.IncidentID)
	req.IncidentName = strings.TrimSpace(req.IncidentName)
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}

	inc := &models.Incident{
		IncidentID:    req.IncidentID,
		UserID:        userID,
		IncidentName:  req.IncidentName,
		Description:   req.Description,
		VideoLink:     req.VideoLink,
		GeneratedText: req.GeneratedText,
	}
	if err := s.store.PutIncident(ctx, inc); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "incident_id": inc.IncidentID}).Info("incident saved")
	return inc, nil
}

func (s *UserService) ListIncidents(ctx context.Context, userID string) ([]*models.Incident, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListIncidents(ctx, userID)
}

func (s *UserService) GetIncident(ctx context.Context, userID, incidentID string) (*models.Incident, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	inc, err := s.store.GetIncident(ctx, userID, incidentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Incident not found"}
	}
	return inc, err
}

func (s *UserService) UpdateIncident(ctx context.Context, userID, incidentID string, req models.UpdateIncidentRequest) (*models.Incident, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	inc, err := s.store.UpdateIncident(ctx, userID, incidentID, req)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Incident not found"}
	}
	return inc, err
}
