package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
)

const (
	writeWait     = 10 * time.Second
	subscribeWait = 5 * time.Second
)

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusReader returns the current state of a job.
type StatusReader interface {
	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error)
}

// Hub streams job status updates to WebSocket clients. With Redis, updates
// published by any process reach every client; without it, only updates passed
// to Notify in this process are delivered.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
	writeMu     map[*websocket.Conn]*sync.Mutex
	cancelFuncs map[string]context.CancelFunc
	subReady    map[string]chan struct{}
	redisClient *redis.Client
	jobs        StatusReader
	log         logrus.FieldLogger
}

func NewHub(redisClient *redis.Client, jobs StatusReader, log logrus.FieldLogger) *Hub {
	return &Hub{
		connections: make(map[string][]*websocket.Conn),
		writeMu:     make(map[*websocket.Conn]*sync.Mutex),
		cancelFuncs: make(map[string]context.CancelFunc),
		subReady:    make(map[string]chan struct{}),
		redisClient: redisClient,
		jobs:        jobs,
		log:         log.WithField("component", "ws_hub"),
	}
}

func (h *Hub) HandleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	if _, err := h.jobs.GetJobStatus(r.Context(), jobID); err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	// The connection is registered with its writer held, so updates that land
	// while the snapshot is read queue up behind it.
	writer, ready := h.registerConnection(jobID, conn)
	h.sendSnapshot(r.Context(), jobID, conn, writer, ready)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(jobID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) sendSnapshot(ctx context.Context, jobID string, conn *websocket.Conn, writer *sync.Mutex, ready <-chan struct{}) {
	defer writer.Unlock()

	select {
	case <-ready:
	case <-time.After(subscribeWait):
		h.log.WithField("job_id", jobID).Warn("job update subscription not confirmed")
	}

	status, err := h.jobs.GetJobStatus(ctx, jobID)
	if err != nil {
		h.log.WithError(err).WithField("job_id", jobID).Warn("job snapshot unavailable")
		return
	}
	data, err := json.Marshal(models.WSMessage{Type: "status_update", Payload: models.JobUpdate{
		JobID:   status.JobID,
		Status:  status.Status,
		VideoID: status.VideoID,
		Error:   status.Error,
	}})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.WithError(err).Debug("websocket write failed")
	}
}

// Notify delivers an update to local clients. It is a no-op with Redis, where
// updates arrive through the subscription instead.
func (h *Hub) Notify(_ context.Context, update models.JobUpdate) {
	if h.redisClient != nil {
		return
	}
	data, err := json.Marshal(models.WSMessage{Type: "status_update", Payload: update})
	if err != nil {
		return
	}
	h.broadcast(update.JobID, data)
}

// ConnectionCount reports open connections for a job.
func (h *Hub) ConnectionCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[jobID])
}

// registerConnection adds conn and returns its writer already locked, plus a
// channel closed once the job's update subscription is live.
func (h *Hub) registerConnection(jobID string, conn *websocket.Conn) (*sync.Mutex, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	writer := &sync.Mutex{}
	writer.Lock()
	h.connections[jobID] = append(h.connections[jobID], conn)
	h.writeMu[conn] = writer

	if h.redisClient == nil {
		return writer, closedChan
	}
	if len(h.connections[jobID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		ready := make(chan struct{})
		h.cancelFuncs[jobID] = cancel
		h.subReady[jobID] = ready
		go h.subscribe(ctx, jobID, ready)
	}

	h.log.WithFields(logrus.Fields{"job_id": jobID, "connections": len(h.connections[jobID])}).Debug("websocket connected")
	return writer, h.subReady[jobID]
}

func (h *Hub) unregisterConnection(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	delete(h.writeMu, conn)

	conns := h.connections[jobID]
	for i, c := range conns {
		if c == conn {
			h.connections[jobID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[jobID]) == 0 {
		delete(h.connections, jobID)
		if cancel, ok := h.cancelFuncs[jobID]; ok {
			cancel()
			delete(h.cancelFuncs, jobID)
			delete(h.subReady, jobID)
		}
	}
}

func (h *Hub) subscribe(ctx context.Context, jobID string, ready chan struct{}) {
	pubsub := h.redisClient.Subscribe(ctx, "job_updates:"+jobID)
	defer pubsub.Close()

	// Receive waits for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.WithError(err).WithField("job_id", jobID).Warn("job update subscription failed")
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(jobID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(jobID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[jobID] {
		h.write(conn, data)
	}
}

// write must be called with h.mu held for reading.
func (h *Hub) write(conn *websocket.Conn, data []byte) {
	mu, ok := h.writeMu[conn]
	if !ok {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.WithError(err).Debug("websocket write failed")
	}
}
