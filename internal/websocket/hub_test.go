package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
)

type stubStatus struct{}

func (stubStatus) GetJobStatus(_ context.Context, jobID string) (*models.JobStatusResponse, error) {
	if jobID != "job-1" {
		return nil, errors.New("not found")
	}
	return &models.JobStatusResponse{JobID: jobID, Status: models.JobStatusPending}, nil
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	return newTestServerWith(t, stubStatus{})
}

func newTestServerWith(t *testing.T, jobs StatusReader) (*Hub, *httptest.Server) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	hub := NewHub(nil, jobs, log)

	r := chi.NewRouter()
	r.Get("/jobs/{job_id}/ws", hub.HandleJobStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func readUpdate(t *testing.T, conn *websocket.Conn) models.JobUpdate {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string           `json:"type"`
		Payload models.JobUpdate `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "status_update" {
		t.Fatalf("Unexpected message type %q", msg.Type)
	}
	return msg.Payload
}

func TestHub_StreamsSnapshotThenUpdates(t *testing.T) {
	hub, srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/job-1/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if u := readUpdate(t, conn); u.Status != models.JobStatusPending {
		t.Errorf("Expected initial pending snapshot, got %+v", u)
	}

	videoID := "vid-1"
	hub.Notify(context.Background(), models.JobUpdate{JobID: "job-1", Status: models.JobStatusDone, VideoID: &videoID})
	hub.Notify(context.Background(), models.JobUpdate{JobID: "other", Status: models.JobStatusFailed})

	u := readUpdate(t, conn)
	if u.Status != models.JobStatusDone || u.VideoID == nil || *u.VideoID != "vid-1" {
		t.Errorf("Unexpected update %+v", u)
	}
}

// advancingStatus finishes the job while the stream's snapshot is being read.
type advancingStatus struct {
	hub   *Hub
	calls atomic.Int32
}

func (s *advancingStatus) GetJobStatus(_ context.Context, jobID string) (*models.JobStatusResponse, error) {
	if s.calls.Add(1) == 2 {
		go s.hub.Notify(context.Background(), models.JobUpdate{JobID: jobID, Status: models.JobStatusDone})
		time.Sleep(50 * time.Millisecond)
	}
	return &models.JobStatusResponse{JobID: jobID, Status: models.JobStatusProcessing}, nil
}

func TestHub_SnapshotPrecedesConcurrentUpdate(t *testing.T) {
	jobs := &advancingStatus{}
	hub, srv := newTestServerWith(t, jobs)
	jobs.hub = hub
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/job-1/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if u := readUpdate(t, conn); u.Status != models.JobStatusProcessing {
		t.Fatalf("Expected processing snapshot first, got %+v", u)
	}
	if u := readUpdate(t, conn); u.Status != models.JobStatusDone {
		t.Errorf("Expected done update after the snapshot, got %+v", u)
	}
}

func TestHub_UnknownJob(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/jobs/missing/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestHub_DisconnectCleansUp(t *testing.T) {
	hub, srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/jobs/job-1/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readUpdate(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount("job-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
