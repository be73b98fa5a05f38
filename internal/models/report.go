package models

// Comparison categories the claim is checked against.
var ComparisonCategories = []string{
	"Time Match",
	"Location Match",
	"Suspect Description",
	"Weapon Match",
	"Event Sequence",
}

type Detection struct {
	Timestamp   string   `json:"timestamp"`
	Description string   `json:"description"`
	Objects     []string `json:"objects"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

type SpeechLine struct {
	Timestamp string `json:"timestamp"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

// VideoAnalysis is the evidence pack flattened for claim comparison.
type VideoAnalysis struct {
	Source              string       `json:"source"`
	Duration            string       `json:"duration"`
	Detections          []Detection  `json:"detections"`
	OnScreenText        string       `json:"on_screen_text,omitempty"`
	SpeechTranscription []SpeechLine `json:"speech_transcription,omitempty"`
}

// ClaimFacts is the structured reading of a witness statement.
type ClaimFacts struct {
	Time               string   `json:"time"`
	Location           string   `json:"location"`
	SuspectDescription string   `json:"suspect_description"`
	Weapon             string   `json:"weapon"`
	Events             []string `json:"events"`
}

type Comparison struct {
	Category    string `json:"category"`
	Match       bool   `json:"match"`
	Explanation string `json:"explanation"`
}

type EvidencePoint struct {
	Match  bool   `json:"match"`
	Detail string `json:"detail"`
}

type CredibilityReport struct {
	CaseID           string                   `json:"case_id"`
	CaseTitle        string                   `json:"case_title"`
	WitnessClaim     string                   `json:"witness_claim"`
	VideoAnalysis    VideoAnalysis            `json:"video_analysis"`
	Comparisons      []Comparison             `json:"comparisons"`
	CredibilityScore int                      `json:"credibility_score"`
	Verdict          string                   `json:"verdict"`
	Recommendation   string                   `json:"recommendation"`
	EvidenceSummary  map[string]EvidencePoint `json:"evidence_summary"`
	DetectiveNote    string                   `json:"detective_note"`
	Timestamp        string                   `json:"timestamp"`
}

type AnalyzeFromEvidenceRequest struct {
	Claim     string `json:"claim" validate:"required,max=10000"`
	VideoID   string `json:"video_id" validate:"required,max=256"`
	ProjectID string `json:"project_id,omitempty"`
	CaseID    string `json:"case_id,omitempty" validate:"omitempty,max=64"`
}

type AnalyzeFromEvidenceResponse struct {
	Report          *CredibilityReport `json:"report"`
	FormattedReport string             `json:"formatted_report"`
}
