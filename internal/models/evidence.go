package models

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	EventAction = "action"
	EventObject = "object"
	EventSpeech = "speech"
	EventScene  = "scene"
)

const ModelProviderTwelveLabs = "twelvelabs"

type EvidenceSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Chapter struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Summary string  `json:"summary"`
}

type Event struct {
	T        float64 `json:"t"`
	Type     string  `json:"type"`
	Label    string  `json:"label"`
	Evidence string  `json:"evidence"`
}

type KeyQuote struct {
	T    float64 `json:"t"`
	Text string  `json:"text"`
}

// EvidencePack is the normalized, provider-independent view of one analyzed video.
type EvidencePack struct {
	VideoID             string          `json:"video_id"`
	Source              EvidenceSource  `json:"source"`
	Transcript          string          `json:"transcript"`
	Chapters            []Chapter       `json:"chapters"`
	Events              []Event         `json:"events"`
	KeyQuotes           []KeyQuote      `json:"key_quotes"`
	CreatedAt           time.Time       `json:"created_at"`
	ModelProvider       string          `json:"model_provider"`
	RawProviderResponse json.RawMessage `json:"raw_provider_response,omitempty"`
}

// EvidenceKey is the blob key a pack is persisted under.
func EvidenceKey(projectID, videoID string) string {
	return "projects/" + projectID + "/videos/" + videoID + "/evidence.json"
}
