package services

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"noirvision-backend/internal/models"
)

// BuildEvidencePack normalizes provider artifacts into an EvidencePack. The result
// depends only on its arguments: entries with unusable times are dropped and every
// sequence is ordered by time, ties keeping provider order.
func BuildEvidencePack(videoID string, source models.EvidenceSource, arts *ProviderArtifacts, createdAt time.Time) *models.EvidencePack {
	if arts == nil {
		arts = &ProviderArtifacts{}
	}

	transcript := strings.TrimSpace(arts.Transcript)
	if transcript == "" {
		transcript = strings.TrimSpace(arts.Summary)
	}

	pack := &models.EvidencePack{
		VideoID:       videoID,
		Source:        source,
		Transcript:    transcript,
		Chapters:      normalizeChapters(arts.Chapters),
		Events:        []models.Event{},
		KeyQuotes:     []models.KeyQuote{},
		CreatedAt:     createdAt.UTC(),
		ModelProvider: models.ModelProviderTwelveLabs,
	}

	for _, h := range arts.Highlights {
		t, ok := timeField(h, "start_sec", "start")
		if !ok {
			continue
		}
		title := stringField(h, "highlight", "title")
		desc := stringField(h, "highlight_summary", "summary")

		label := title
		if label == "" {
			label = "Highlight"
		}
		evidence := desc
		if evidence == "" {
			evidence = label
		}
		pack.Events = append(pack.Events, models.Event{T: t, Type: models.EventScene, Label: label, Evidence: evidence})
		if desc != "" {
			pack.KeyQuotes = append(pack.KeyQuotes, models.KeyQuote{T: t, Text: desc})
		}
	}

	sort.SliceStable(pack.Events, func(i, j int) bool { return pack.Events[i].T < pack.Events[j].T })
	sort.SliceStable(pack.KeyQuotes, func(i, j int) bool { return pack.KeyQuotes[i].T < pack.KeyQuotes[j].T })

	if len(arts.Raw) > 0 {
		if raw, err := json.Marshal(arts.Raw); err == nil {
			pack.RawProviderResponse = raw
		}
	}

	return pack
}

func normalizeChapters(items []map[string]interface{}) []models.Chapter {
	chapters := make([]models.Chapter, 0, len(items))
	for _, c := range items {
		start, ok := timeField(c, "start_sec", "start")
		if !ok {
			continue
		}
		end, ok := timeField(c, "end_sec", "end")
		if !ok || end <= start {
			continue
		}
		summary := stringField(c, "chapter_summary", "chapter_title", "summary", "title")
		if summary == "" {
			summary = "Chapter"
		}
		chapters = append(chapters, models.Chapter{Start: start, End: end, Summary: summary})
	}
	sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].Start < chapters[j].Start })
	return chapters
}

// timeField reads the first present key as seconds. A missing time counts as 0;
// a present but unusable one (negative, NaN, Inf, not numeric) rejects the entry.
func timeField(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, present := m[k]
		if !present || v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return 0, false
		}
		return f, true
	}
	return 0, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
