package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"noirvision-backend/internal/models"
)

// Verdicts, strongest support first.
const (
	VerdictSupported        = "CLAIM SUPPORTED"
	VerdictSupportedMinor   = "CLAIM SUPPORTED (with minor discrepancy)"
	VerdictInconclusive     = "INCONCLUSIVE"
	VerdictContradicted     = "CLAIM CONTRADICTED – LIKELY FALSE REPORT"
	defaultCredibilityScore = 50
	caseTitleClaimPrefixLen = 150
)

// EvidenceReader loads a persisted evidence pack.
type EvidenceReader interface {
	GetEvidence(ctx context.Context, videoID, projectID string) (*models.EvidencePack, error)
}

// ClaimAnalyzer compares a witness claim with an evidence pack and produces a
// credibility report.
type ClaimAnalyzer struct {
	llm      TextGenerator
	evidence EvidenceReader
	log      logrus.FieldLogger

	now func() time.Time
}

func NewClaimAnalyzer(llm TextGenerator, evidence EvidenceReader, log logrus.FieldLogger) *ClaimAnalyzer {
	return &ClaimAnalyzer{
		llm:      llm,
		evidence: evidence,
		log:      log.WithField("component", "claims"),
		now:      time.Now,
	}
}

// AnalyzeFromEvidence loads the pack for req.VideoID and runs the full comparison.
func (a *ClaimAnalyzer) AnalyzeFromEvidence(ctx context.Context, req models.AnalyzeFromEvidenceRequest) (*models.AnalyzeFromEvidenceResponse, error) {
	req.Claim = strings.TrimSpace(req.Claim)
	req.VideoID = strings.TrimSpace(req.VideoID)
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	if a.llm == nil {
		return nil, &ConfigurationError{Message: "GEMINI_API_KEY is required for claim analysis"}
	}

	pack, err := a.evidence.GetEvidence(ctx, req.VideoID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	report, err := a.Analyze(ctx, pack, req.Claim, req.CaseID)
	if err != nil {
		return nil, err
	}
	return &models.AnalyzeFromEvidenceResponse{
		Report:          report,
		FormattedReport: FormatReport(report),
	}, nil
}

// Analyze runs the comparison for an already loaded pack.
func (a *ClaimAnalyzer) Analyze(ctx context.Context, pack *models.EvidencePack, claim, caseID string) (*models.CredibilityReport, error) {
	log := a.log.WithField("video_id", pack.VideoID)
	video := VideoAnalysisFromEvidence(pack)

	facts, err := a.parseClaim(ctx, claim)
	if err != nil {
		return nil, err
	}

	comparisons, err := a.compare(ctx, claim, facts, video)
	if err != nil {
		return nil, err
	}

	score := CredibilityScore(comparisons)
	verdict := Verdict(score)

	recommendation, err := a.llm.Generate(ctx, recommendationPrompt(verdict, score, comparisons))
	if err != nil {
		return nil, err
	}
	note, err := a.llm.Generate(ctx, detectiveNotePrompt(verdict, comparisons))
	if err != nil {
		return nil, err
	}
	title, err := a.llm.Generate(ctx, caseTitlePrompt(claim, verdict))
	if err != nil {
		return nil, err
	}

	if caseID == "" {
		caseID = a.newCaseID()
	}

	log.WithFields(logrus.Fields{"case_id": caseID, "score": score}).Info("claim analyzed")
	return &models.CredibilityReport{
		CaseID:           caseID,
		CaseTitle:        cleanCaseTitle(title),
		WitnessClaim:     claim,
		VideoAnalysis:    video,
		Comparisons:      comparisons,
		CredibilityScore: score,
		Verdict:          verdict,
		Recommendation:   strings.TrimSpace(recommendation),
		EvidenceSummary:  evidenceSummary(comparisons),
		DetectiveNote:    strings.Trim(strings.TrimSpace(note), `"`),
		Timestamp:        a.now().UTC().Format(time.RFC3339),
	}, nil
}

func (a *ClaimAnalyzer) parseClaim(ctx context.Context, claim string) (models.ClaimFacts, error) {
	facts := models.ClaimFacts{Time: "unknown", Location: "unknown", SuspectDescription: "unknown", Weapon: "none"}

	resp, err := a.llm.Generate(ctx, claimFactsPrompt(claim))
	if err != nil {
		return facts, err
	}
	if obj := extractJSON(resp, '{', '}'); obj != "" {
		var parsed models.ClaimFacts
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			return parsed, nil
		}
	}
	a.log.Warn("claim facts response was not JSON, using defaults")
	return facts, nil
}

func (a *ClaimAnalyzer) compare(ctx context.Context, claim string, facts models.ClaimFacts, video models.VideoAnalysis) ([]models.Comparison, error) {
	resp, err := a.llm.Generate(ctx, comparisonPrompt(claim, facts, video))
	if err != nil {
		return nil, err
	}
	if arr := extractJSON(resp, '[', ']'); arr != "" {
		var parsed []models.Comparison
		if err := json.Unmarshal([]byte(arr), &parsed); err == nil && len(parsed) > 0 {
			return parsed, nil
		}
	}

	a.log.Warn("comparison response was not JSON, marking every category unmatched")
	fallback := make([]models.Comparison, 0, len(models.ComparisonCategories))
	for _, c := range models.ComparisonCategories {
		fallback = append(fallback, models.Comparison{Category: c, Match: false, Explanation: "Unable to compare"})
	}
	return fallback, nil
}

// newCaseID returns an id of the form YYYY-MM-DD-NNN.
func (a *ClaimAnalyzer) newCaseID() string {
	return fmt.Sprintf("%s-%03d", a.now().Format("2006-01-02"), rand.IntN(999)+1)
}

// CredibilityScore is the percentage of matching comparisons, 50 when there are none.
func CredibilityScore(comparisons []models.Comparison) int {
	if len(comparisons) == 0 {
		return defaultCredibilityScore
	}
	matches := 0
	for _, c := range comparisons {
		if c.Match {
			matches++
		}
	}
	return matches * 100 / len(comparisons)
}

func Verdict(score int) string {
	switch {
	case score >= 80:
		return VerdictSupported
	case score >= 60:
		return VerdictSupportedMinor
	case score >= 40:
		return VerdictInconclusive
	default:
		return VerdictContradicted
	}
}

// VideoAnalysisFromEvidence flattens a pack into timestamped detections.
func VideoAnalysisFromEvidence(pack *models.EvidencePack) models.VideoAnalysis {
	type timed struct {
		t float64
		d models.Detection
	}
	var items []timed
	for _, e := range pack.Events {
		items = append(items, timed{e.T, models.Detection{
			Timestamp:   formatTimestamp(e.T),
			Description: e.Label + ": " + e.Evidence,
			Objects:     []string{e.Label},
		}})
	}
	for _, c := range pack.Chapters {
		items = append(items, timed{c.Start, models.Detection{
			Timestamp:   formatTimestamp(c.Start),
			Description: "Scene: " + c.Summary,
			Objects:     []string{"scene_change"},
		}})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].t < items[j].t })

	detections := make([]models.Detection, 0, len(items))
	for _, it := range items {
		detections = append(detections, it.d)
	}

	var speech []models.SpeechLine
	for _, q := range pack.KeyQuotes {
		speech = append(speech, models.SpeechLine{Timestamp: formatTimestamp(q.T), Speaker: "Person", Text: q.Text})
	}

	return models.VideoAnalysis{
		Source:              pack.Source.URL,
		Duration:            formatDuration(pack),
		Detections:          detections,
		OnScreenText:        onScreenText(pack.Events),
		SpeechTranscription: speech,
	}
}

func formatTimestamp(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func formatDuration(pack *models.EvidencePack) string {
	var end float64
	for _, c := range pack.Chapters {
		if c.End > end {
			end = c.End
		}
	}
	if len(pack.Chapters) == 0 {
		for _, e := range pack.Events {
			if e.T > end {
				end = e.T
			}
		}
	}
	if end == 0 {
		return "unknown"
	}
	total := int(end)
	if total >= 60 {
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	}
	return fmt.Sprintf("%ds", total)
}

func onScreenText(events []models.Event) string {
	var texts []string
	for _, e := range events {
		label := strings.ToLower(e.Label)
		for _, kw := range []string{"text", "sign", "title", "caption"} {
			if strings.Contains(label, kw) {
				texts = append(texts, e.Evidence)
				break
			}
		}
		if len(texts) == 3 {
			break
		}
	}
	return strings.Join(texts, " | ")
}

func evidenceSummary(comparisons []models.Comparison) map[string]models.EvidencePoint {
	summary := make(map[string]models.EvidencePoint, len(comparisons))
	for _, c := range comparisons {
		summary[c.Category] = models.EvidencePoint{Match: c.Match, Detail: c.Explanation}
	}
	return summary
}

func cleanCaseTitle(raw string) string {
	title := strings.Trim(strings.TrimSpace(raw), `"'`)
	if title == "" {
		return "The Untitled Case"
	}
	if !strings.HasPrefix(title, "The ") {
		title = "The " + title
	}
	return title
}

// extractJSON returns the outermost open..close span of s, or "".
func extractJSON(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func claimFactsPrompt(claim string) string {
	return fmt.Sprintf(`Analyze this witness statement and extract structured facts.
Return ONLY a valid JSON object with these exact keys: time, location, suspect_description, weapon, events.

For "events", provide a list of key actions in sequence.

Statement: %q

Return format:
{
  "time": "extracted time",
  "location": "extracted location",
  "suspect_description": "physical description",
  "weapon": "weapon type or none",
  "events": ["event1", "event2"]
}`, claim)
}

func comparisonPrompt(claim string, facts models.ClaimFacts, video models.VideoAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Video Source: %s\nDuration: %s\n\nDetections:\n", video.Source, video.Duration)
	for _, d := range video.Detections {
		fmt.Fprintf(&b, "- %s: %s\n", d.Timestamp, d.Description)
		if len(d.Objects) > 0 {
			fmt.Fprintf(&b, "  Objects: %s\n", strings.Join(d.Objects, ", "))
		}
	}
	if video.OnScreenText != "" {
		fmt.Fprintf(&b, "\nOn-screen text: %s\n", video.OnScreenText)
	}
	if len(video.SpeechTranscription) > 0 {
		b.WriteString("\nSpeech transcription:\n")
		for _, s := range video.SpeechTranscription {
			fmt.Fprintf(&b, "- %s: %s\n", s.Speaker, s.Text)
		}
	}

	var cats strings.Builder
	for i, c := range models.ComparisonCategories {
		if i > 0 {
			cats.WriteString(",\n")
		}
		fmt.Fprintf(&cats, `  {"category": %q, "match": true/false, "explanation": "brief explanation"}`, c)
	}

	return fmt.Sprintf(`You are a forensic analyst comparing a witness claim with video evidence.

WITNESS CLAIM:
%s

STRUCTURED CLAIM FACTS:
- Time: %s
- Location: %s
- Suspect: %s
- Weapon: %s
- Events: %s

VIDEO EVIDENCE:
%s
Analyze each aspect and return ONLY a JSON array with this exact format:
[
%s
]

Be strict. Mark as true ONLY if video clearly supports the claim.`,
		claim, facts.Time, facts.Location, facts.SuspectDescription, facts.Weapon,
		strings.Join(facts.Events, ", "), b.String(), cats.String())
}

func recommendationPrompt(verdict string, score int, comparisons []models.Comparison) string {
	return fmt.Sprintf(`You are a detective making an investigation recommendation.

Verdict: %s
Credibility Score: %d/100

Comparison Results:
%s

Write a brief recommendation (1-3 lines) for investigators on whether to proceed.
Start with "→" and be direct. Mention any key discrepancies if relevant.
Use professional law enforcement language.`, verdict, score, comparisonLines(comparisons))
}

func detectiveNotePrompt(verdict string, comparisons []models.Comparison) string {
	var matches int
	var mismatches []string
	for _, c := range comparisons {
		if c.Match {
			matches++
		} else {
			mismatches = append(mismatches, c.Category)
		}
	}
	mismatchText := "None"
	if len(mismatches) > 0 {
		mismatchText = strings.Join(mismatches, ", ")
	}
	return fmt.Sprintf(`Write a single short noir-style detective comment about this case.

Verdict: %s
Matches: %d/%d
Mismatches: %s

Write 1-2 sentences in classic noir detective voice (think 1940s private eye).
Reference "the video/tape/footage" and "the witness/dame/story".
Be cynical and world-weary but professional.
No quotes around it.`, verdict, matches, len(comparisons), mismatchText)
}

func caseTitlePrompt(claim, verdict string) string {
	if r := []rune(claim); len(r) > caseTitleClaimPrefixLen {
		claim = string(r[:caseTitleClaimPrefixLen]) + "..."
	}
	return fmt.Sprintf(`Create a noir-style case title (3-5 words) for this investigation.

Claim summary: %s
Verdict: %s

Format: "The [Adjective] [Noun]" (example: "The Midnight Frame", "The Shadow's Truth")
Be creative and match the noir detective theme. Just return the title, nothing else.`, claim, verdict)
}

func comparisonLines(comparisons []models.Comparison) string {
	lines := make([]string, 0, len(comparisons))
	for _, c := range comparisons {
		status := "Mismatch"
		if c.Match {
			status = "Match"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", c.Category, status, c.Explanation))
	}
	return strings.Join(lines, "\n")
}
