package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"noirvision-backend/internal/handlers"
	"noirvision-backend/internal/logging"
	"noirvision-backend/internal/middleware"
	"noirvision-backend/internal/websocket"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logging.Discard()
	limiter := middleware.NewRateLimiter(30, time.Minute)
	t.Cleanup(limiter.Close)
	return New(
		log,
		middleware.NewHMACVerifier("secret"),
		handlers.NewHealthHandler(false, true, true),
		handlers.NewVideoHandler(nil, log),
		handlers.NewAnalyzeHandler(nil, log),
		handlers.NewUserHandler(nil, log),
		websocket.NewHub(nil, nil, log),
		limiter,
		"http://localhost:5173",
	)
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/users/me/profile", http.StatusUnauthorized},
		{http.MethodPatch, "/api/users/me/incidents/abc", http.StatusUnauthorized},
		{http.MethodPost, "/api/analyze/from_evidence", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodDelete, "/api/videos/analyze", http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
			if rr.Code != tc.status {
				t.Errorf("Expected %d, got %d", tc.status, rr.Code)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Error("Expected X-Request-ID on every response")
			}
		})
	}
}

func TestRouter_SubmitRoutesShareLimiter(t *testing.T) {
	r := newTestRouter(t)

	status := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 30; i++ {
		if code := status("/api/analyze/from_evidence"); code == http.StatusTooManyRequests {
			t.Fatalf("Request %d limited too early", i+1)
		}
	}
	if code := status("/api/videos/analyze"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the client used its window, got %d", code)
	}
}
