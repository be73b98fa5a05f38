package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/middleware"
	"noirvision-backend/internal/models"
)

type UserService interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	PutProfile(ctx context.Context, userID, tokenEmail string, req models.UpdateProfileRequest) (*models.Profile, error)
	CreateIncident(ctx context.Context, userID string, req models.CreateIncidentRequest) (*models.Incident, error)
	ListIncidents(ctx context.Context, userID string) ([]*models.Incident, error)
	GetIncident(ctx context.Context, userID, incidentID string) (*models.Incident, error)
	UpdateIncident(ctx context.Context, userID, incidentID string, req models.UpdateIncidentRequest) (*models.Incident, error)
}

type UserHandler struct {
	users UserService
	log   logrus.FieldLogger
}

func NewUserHandler(users UserService, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// identity returns the authenticated caller or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Authentication required", r))
		return nil, false
	}
	return id, true
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(r.Context(), id.Subject)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.UpdateProfileRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.users.PutProfile(r.Context(), id.Subject, id.Email, req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.CreateIncidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inc, err := h.users.CreateIncident(r.Context(), id.Subject, req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *UserHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	incidents, err := h.users.ListIncidents(r.Context(), id.Subject)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if incidents == nil {
		incidents = []*models.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (h *UserHandler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	inc, err := h.users.GetIncident(r.Context(), id.Subject, chi.URLParam(r, "incident_id"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *UserHandler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.UpdateIncidentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inc, err := h.users.UpdateIncident(r.Context(), id.Subject, chi.URLParam(r, "incident_id"), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}
