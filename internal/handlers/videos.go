package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
)

// AnalysisService is the video pipeline as seen by HTTP.
type AnalysisService interface {
	Submit(ctx context.Context, req models.AnalyzeVideoRequest) (*models.AnalyzeVideoResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error)
	GetEvidence(ctx context.Context, videoID, projectID string) (*models.EvidencePack, error)
}

type VideoHandler struct {
	analysis AnalysisService
	log      logrus.FieldLogger
}

func NewVideoHandler(analysis AnalysisService, log logrus.FieldLogger) *VideoHandler {
	return &VideoHandler{analysis: analysis, log: log}
}

// Analyze accepts a submission and answers 202 with the new job id.
func (h *VideoHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.analysis.Submit(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (h *VideoHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.analysis.GetJobStatus(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *VideoHandler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	pack, err := h.analysis.GetEvidence(r.Context(), chi.URLParam(r, "video_id"), r.URL.Query().Get("project_id"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, pack)
}
