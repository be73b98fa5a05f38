package handlers

import "net/http"

type HealthHandler struct {
	claimsConfigured     bool
	twelveLabsConfigured bool
	twelveLabsMock       bool
}

func NewHealthHandler(claimsConfigured, twelveLabsConfigured, twelveLabsMock bool) *HealthHandler {
	return &HealthHandler{
		claimsConfigured:     claimsConfigured,
		twelveLabsConfigured: twelveLabsConfigured,
		twelveLabsMock:       twelveLabsMock,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                "healthy",
		"noirvision_configured": h.claimsConfigured,
		"twelvelabs_configured": h.twelveLabsConfigured,
		"twelvelabs_mock":       h.twelveLabsMock,
	})
}
