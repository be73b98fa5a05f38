package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
)

type ClaimService interface {
	AnalyzeFromEvidence(ctx context.Context, req models.AnalyzeFromEvidenceRequest) (*models.AnalyzeFromEvidenceResponse, error)
}

type AnalyzeHandler struct {
	claims ClaimService
	log    logrus.FieldLogger
}

// NewAnalyzeHandler accepts a nil service; requests then answer 503.
func NewAnalyzeHandler(claims ClaimService, log logrus.FieldLogger) *AnalyzeHandler {
	return &AnalyzeHandler{claims: claims, log: log}
}

func (h *AnalyzeHandler) FromEvidence(w http.ResponseWriter, r *http.Request) {
	if h.claims == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("CONFIGURATION_ERROR", "GEMINI_API_KEY is required for claim analysis", r))
		return
	}

	var req models.AnalyzeFromEvidenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.claims.AnalyzeFromEvidence(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
