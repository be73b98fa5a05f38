package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Task statuses reported by TwelveLabs.
const (
	TaskStatusReady      = "ready"
	TaskStatusFailed     = "failed"
	TaskStatusValidating = "validating"
	TaskStatusPending    = "pending"
	TaskStatusQueued     = "queued"
	TaskStatusIndexing   = "indexing"
)

const (
	defaultTwelveLabsBaseURL   = "https://api.twelvelabs.io/v1.3"
	defaultTaskRequestTimeout  = 60 * time.Second
	defaultSummarizeTimeout    = 120 * time.Second
	transcriptPrompt           = "Provide a full transcript of all spoken words in this video, with minimal commentary."
	mockTaskPrefix             = "mock-task-"
	mockVideoPrefix            = "mock-video-"
	mockTranscript             = "Mock transcript for demo. This is a placeholder for the full transcript."
	maxProviderErrorBodyLength = 2048
)

// VideoProvider is the narrow surface the pipeline needs from a video-understanding backend.
type VideoProvider interface {
	CreateIndexingTask(ctx context.Context, sourceURL string) (taskID, videoID string, err error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	FetchArtifacts(ctx context.Context, videoID string) (*ProviderArtifacts, error)
}

type TaskStatus struct {
	Status  string
	VideoID string
	Message string
}

// ProviderArtifacts holds the raw per-artifact replies. Empty fields mean the
// sub-fetch failed or returned nothing.
type ProviderArtifacts struct {
	Transcript string
	Summary    string
	Chapters   []map[string]interface{}
	Highlights []map[string]interface{}
	Raw        map[string]json.RawMessage
}

type TwelveLabsConfig struct {
	APIKey           string
	IndexID          string
	BaseURL          string
	Mock             bool
	RequestTimeout   time.Duration
	SummarizeTimeout time.Duration
}

type TwelveLabsClient struct {
	cfg        TwelveLabsConfig
	httpClient *http.Client
	log        logrus.FieldLogger
}

type TwelveLabsOption func(*TwelveLabsClient)

// WithTwelveLabsHTTPClient overrides the default HTTP client.
func WithTwelveLabsHTTPClient(client *http.Client) TwelveLabsOption {
	return func(c *TwelveLabsClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewTwelveLabsClient(cfg TwelveLabsConfig, log logrus.FieldLogger, opts ...TwelveLabsOption) *TwelveLabsClient {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.IndexID = strings.TrimSpace(cfg.IndexID)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwelveLabsBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTaskRequestTimeout
	}
	if cfg.SummarizeTimeout <= 0 {
		cfg.SummarizeTimeout = defaultSummarizeTimeout
	}

	c := &TwelveLabsClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        log.WithField("component", "twelvelabs"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mock reports whether the client serves fixtures instead of calling the API.
func (c *TwelveLabsClient) Mock() bool {
	return c.cfg.Mock
}

// CreateIndexingTask submits a video URL for indexing. The returned video id is
// empty when the provider only assigns it later.
func (c *TwelveLabsClient) CreateIndexingTask(ctx context.Context, sourceURL string) (string, string, error) {
	if c.cfg.Mock {
		suffix := mockSuffix(sourceURL)
		return mockTaskPrefix + suffix, mockVideoPrefix + suffix, nil
	}
	if err := c.requireCredentials(true); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(sourceURL) == "" {
		return "", "", &ValidationError{Fields: map[string]string{"video_url": "is required"}}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("index_id", c.cfg.IndexID); err != nil {
		return "", "", fmt.Errorf("build task form: %w", err)
	}
	if err := mw.WriteField("video_url", sourceURL); err != nil {
		return "", "", fmt.Errorf("build task form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", "", fmt.Errorf("build task form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/tasks", &body)
	if err != nil {
		return "", "", fmt.Errorf("build task request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		UnderscoreID string `json:"_id"`
		ID           string `json:"id"`
		VideoID      string `json:"video_id"`
	}
	if _, err := c.do(req, "create task", &resp); err != nil {
		return "", "", err
	}

	taskID := resp.UnderscoreID
	if taskID == "" {
		taskID = resp.ID
	}
	if taskID == "" {
		return "", "", &ProviderProcessingError{Message: "TwelveLabs create task response missing task id"}
	}

	c.log.WithFields(logrus.Fields{"task_id": taskID, "video_id": resp.VideoID}).Info("created indexing task")
	return taskID, resp.VideoID, nil
}

// GetTaskStatus reads the current state of an indexing task.
func (c *TwelveLabsClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	if c.cfg.Mock {
		return &TaskStatus{Status: TaskStatusReady, VideoID: mockVideoPrefix + strings.TrimPrefix(taskID, mockTaskPrefix)}, nil
	}
	if err := c.requireCredentials(false); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	var resp struct {
		Status  string `json:"status"`
		VideoID string `json:"video_id"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if _, err := c.do(req, "get task", &resp); err != nil {
		return nil, err
	}

	msg := resp.Message
	if msg == "" {
		msg = resp.Error
	}
	return &TaskStatus{
		Status:  strings.ToLower(strings.TrimSpace(resp.Status)),
		VideoID: resp.VideoID,
		Message: msg,
	}, nil
}

// FetchArtifacts runs the transcript, chapter, highlight and summary fetches.
// Each one is best effort: a failure is logged and leaves that artifact empty.
func (c *TwelveLabsClient) FetchArtifacts(ctx context.Context, videoID string) (*ProviderArtifacts, error) {
	if c.cfg.Mock {
		return mockArtifacts(), nil
	}
	if err := c.requireCredentials(false); err != nil {
		return nil, err
	}

	arts := &ProviderArtifacts{Raw: map[string]json.RawMessage{}}
	log := c.log.WithField("video_id", videoID)

	if text, raw, err := c.fetchTranscript(ctx, videoID); err != nil {
		log.WithError(err).Warn("transcript fetch failed")
	} else {
		arts.Transcript = text
		arts.Raw["transcript"] = raw
	}

	var chapters struct {
		Chapters []json.RawMessage `json:"chapters"`
	}
	if raw, err := c.summarize(ctx, videoID, "chapter", &chapters); err != nil {
		log.WithError(err).Warn("chapter fetch failed")
	} else {
		arts.Chapters = objectsOnly(chapters.Chapters)
		arts.Raw["chapters"] = raw
	}

	var highlights struct {
		Highlights []json.RawMessage `json:"highlights"`
	}
	if raw, err := c.summarize(ctx, videoID, "highlight", &highlights); err != nil {
		log.WithError(err).Warn("highlight fetch failed")
	} else {
		arts.Highlights = objectsOnly(highlights.Highlights)
		arts.Raw["highlights"] = raw
	}

	var summary struct {
		Summary string `json:"summary"`
	}
	if raw, err := c.summarize(ctx, videoID, "summary", &summary); err != nil {
		log.WithError(err).Warn("summary fetch failed")
	} else {
		arts.Summary = summary.Summary
		arts.Raw["summary"] = raw
	}

	return arts, nil
}

func (c *TwelveLabsClient) fetchTranscript(ctx context.Context, videoID string) (string, json.RawMessage, error) {
	payload := map[string]string{"video_id": videoID, "prompt": transcriptPrompt}
	raw, err := c.postJSON(ctx, "/generate", "generate", payload)
	if err != nil {
		return "", nil, err
	}

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, raw, nil
	}
	var resp struct {
		Text          string `json:"text"`
		GeneratedText string `json:"generated_text"`
		Output        string `json:"output"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", nil, fmt.Errorf("decode generate response: %w", err)
	}
	switch {
	case resp.Text != "":
		return resp.Text, raw, nil
	case resp.GeneratedText != "":
		return resp.GeneratedText, raw, nil
	default:
		return resp.Output, raw, nil
	}
}

func (c *TwelveLabsClient) summarize(ctx context.Context, videoID, kind string, out interface{}) (json.RawMessage, error) {
	payload := map[string]string{"video_id": videoID, "type": kind}
	raw, err := c.postJSON(ctx, "/summarize", "summarize "+kind, payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode summarize %s response: %w", kind, err)
	}
	return raw, nil
}

func (c *TwelveLabsClient) postJSON(ctx context.Context, path, op string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SummarizeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, op, nil)
}

// do sends req with the API key and decodes a 2xx body into out when out is non-nil.
func (c *TwelveLabsClient) do(req *http.Request, op string, out interface{}) (json.RawMessage, error) {
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderRequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderRequestError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(data)
		if len(body) > maxProviderErrorBodyLength {
			body = body[:maxProviderErrorBodyLength]
		}
		return nil, &ProviderRequestError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(body)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, &ProviderRequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return json.RawMessage(data), nil
}

func (c *TwelveLabsClient) requireCredentials(needIndex bool) error {
	if c.cfg.APIKey == "" {
		return &ConfigurationError{Message: "TWELVELABS_API_KEY is required when TWELVELABS_MOCK is off"}
	}
	if needIndex && c.cfg.IndexID == "" {
		return &ConfigurationError{Message: "TWELVELABS_INDEX_ID is required when TWELVELABS_MOCK is off"}
	}
	return nil
}

func objectsOnly(items []json.RawMessage) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		var m map[string]interface{}
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// mockSuffix derives a stable id from the source so repeated mock runs agree.
func mockSuffix(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}

func mockArtifacts() *ProviderArtifacts {
	return &ProviderArtifacts{
		Transcript: mockTranscript,
		Summary:    "Mock summary of the video.",
		Chapters: []map[string]interface{}{
			{"start_sec": 0.0, "end_sec": 30.0, "chapter_title": "Introduction"},
			{"start_sec": 30.0, "end_sec": 90.0, "chapter_title": "Main content"},
			{"start_sec": 90.0, "end_sec": 120.0, "chapter_title": "Conclusion"},
		},
		Highlights: []map[string]interface{}{
			{"start_sec": 15.0, "end_sec": 20.0, "highlight": "Key point", "highlight_summary": "This is a key quote from the video."},
			{"start_sec": 75.0, "end_sec": 80.0, "highlight": "Demo scene", "highlight_summary": "Another notable quote."},
		},
		Raw: map[string]json.RawMessage{"mock": json.RawMessage("true")},
	}
}
