package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/middleware"
	"noirvision-backend/internal/models"
	"noirvision-backend/internal/services"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.RequestIDFrom(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

// decodeJSON reads a size-limited JSON body into v. It writes the 400 itself
// and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		unauthErr     *services.UnauthorizedError
		configErr     *services.ConfigurationError
		providerErr   *services.ProviderRequestError
		processingErr *services.ProviderProcessingError
		timeoutErr    *services.TimeoutError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.As(err, &unauthErr):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthErr.Message, r))
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("CONFIGURATION_ERROR", configErr.Message, r))
	case errors.As(err, &providerErr), errors.As(err, &processingErr):
		log.WithError(err).Warn("upstream provider error")
		writeJSON(w, http.StatusBadGateway, errorResp("PROVIDER_ERROR", err.Error(), r))
	case errors.As(err, &timeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, errorResp("PROVIDER_TIMEOUT", err.Error(), r))
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
