package services

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"noirvision-backend/internal/models"
)

var testSource = models.EvidenceSource{Type: models.SourceYouTube, URL: "https://youtu.be/abc"}

func TestBuildEvidencePack_MockFixture(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pack := BuildEvidencePack("mock-video-1", testSource, mockArtifacts(), created)

	if len(pack.Chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(pack.Chapters))
	}
	if len(pack.Events) != 2 || len(pack.KeyQuotes) != 2 {
		t.Fatalf("expected 2 events and 2 quotes, got %d and %d", len(pack.Events), len(pack.KeyQuotes))
	}
	if pack.KeyQuotes[0].T != 15 || pack.KeyQuotes[1].T != 75 {
		t.Fatalf("unexpected quote times %+v", pack.KeyQuotes)
	}
	if pack.Chapters[1].Summary != "Main content" {
		t.Fatalf("expected chapter title as summary, got %q", pack.Chapters[1].Summary)
	}
	if pack.ModelProvider != "twelvelabs" {
		t.Fatalf("unexpected model provider %q", pack.ModelProvider)
	}
	if pack.Transcript == "" {
		t.Fatalf("expected non-empty transcript")
	}
}

func TestBuildEvidencePack_Deterministic(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := BuildEvidencePack("v", testSource, mockArtifacts(), created)
	b := BuildEvidencePack("v", testSource, mockArtifacts(), created)

	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Fatalf("expected identical packs:\n%s\n%s", aj, bj)
	}
}

func TestBuildEvidencePack_ChapterSummaryPrecedence(t *testing.T) {
	arts := &ProviderArtifacts{Chapters: []map[string]interface{}{
		{"start_sec": 0.0, "end_sec": 5.0, "chapter_summary": "summary wins", "chapter_title": "title"},
		{"start_sec": 5.0, "end_sec": 10.0, "chapter_title": "  title only  "},
		{"start": 10.0, "end": 15.0, "summary": "alias summary"},
		{"start_sec": 15.0, "end_sec": 20.0, "chapter_summary": "   "},
	}}

	pack := BuildEvidencePack("v", testSource, arts, time.Now())
	want := []string{"summary wins", "title only", "alias summary", "Chapter"}
	if len(pack.Chapters) != len(want) {
		t.Fatalf("expected %d chapters, got %d", len(want), len(pack.Chapters))
	}
	for i, w := range want {
		if pack.Chapters[i].Summary != w {
			t.Errorf("chapter %d: expected %q, got %q", i, w, pack.Chapters[i].Summary)
		}
	}
}

func TestBuildEvidencePack_DropsInvalidTimes(t *testing.T) {
	arts := &ProviderArtifacts{
		Chapters: []map[string]interface{}{
			{"start_sec": -1.0, "end_sec": 5.0},
			{"start_sec": 5.0, "end_sec": 5.0},
			{"start_sec": 9.0, "end_sec": 3.0},
			{"start_sec": math.NaN(), "end_sec": 3.0},
			{"start_sec": "2.5", "end_sec": "7"},
			{"start_sec": "abc", "end_sec": 7.0},
		},
		Highlights: []map[string]interface{}{
			{"start_sec": -3.0, "highlight": "negative"},
			{"start_sec": math.Inf(1), "highlight": "infinite"},
			{"start_sec": 4.0, "highlight": "kept"},
		},
	}

	pack := BuildEvidencePack("v", testSource, arts, time.Now())
	if len(pack.Chapters) != 1 {
		t.Fatalf("expected 1 valid chapter, got %+v", pack.Chapters)
	}
	if pack.Chapters[0].Start != 2.5 || pack.Chapters[0].End != 7 {
		t.Fatalf("expected numeric strings to parse, got %+v", pack.Chapters[0])
	}
	if len(pack.Events) != 1 || pack.Events[0].Label != "kept" {
		t.Fatalf("expected only the valid highlight, got %+v", pack.Events)
	}
	for _, c := range pack.Chapters {
		if c.Start < 0 || c.Start >= c.End {
			t.Fatalf("chapter invariant violated: %+v", c)
		}
	}
}

func TestBuildEvidencePack_HighlightMapping(t *testing.T) {
	arts := &ProviderArtifacts{Highlights: []map[string]interface{}{
		{"start_sec": 30.0, "highlight": "Door opens", "highlight_summary": "A man enters."},
		{"start": 10.0, "highlight": "", "highlight_summary": ""},
		{"start_sec": 20.0, "title": "Alias title"},
	}}

	pack := BuildEvidencePack("v", testSource, arts, time.Now())

	wantEvents := []models.Event{
		{T: 10, Type: models.EventScene, Label: "Highlight", Evidence: "Highlight"},
		{T: 20, Type: models.EventScene, Label: "Alias title", Evidence: "Alias title"},
		{T: 30, Type: models.EventScene, Label: "Door opens", Evidence: "A man enters."},
	}
	if !reflect.DeepEqual(pack.Events, wantEvents) {
		t.Fatalf("unexpected events:\n got %+v\nwant %+v", pack.Events, wantEvents)
	}

	wantQuotes := []models.KeyQuote{{T: 30, Text: "A man enters."}}
	if !reflect.DeepEqual(pack.KeyQuotes, wantQuotes) {
		t.Fatalf("unexpected quotes %+v", pack.KeyQuotes)
	}
}

func TestBuildEvidencePack_StableOrderOnTies(t *testing.T) {
	arts := &ProviderArtifacts{Highlights: []map[string]interface{}{
		{"start_sec": 5.0, "highlight": "first"},
		{"start_sec": 1.0, "highlight": "earliest"},
		{"start_sec": 5.0, "highlight": "second"},
	}}

	pack := BuildEvidencePack("v", testSource, arts, time.Now())
	got := []string{pack.Events[0].Label, pack.Events[1].Label, pack.Events[2].Label}
	want := []string{"earliest", "first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildEvidencePack_TranscriptFallsBackToSummary(t *testing.T) {
	pack := BuildEvidencePack("v", testSource, &ProviderArtifacts{Summary: "Summary text"}, time.Now())
	if pack.Transcript != "Summary text" {
		t.Fatalf("expected summary fallback, got %q", pack.Transcript)
	}

	pack = BuildEvidencePack("v", testSource, &ProviderArtifacts{Transcript: "Spoken", Summary: "Summary"}, time.Now())
	if pack.Transcript != "Spoken" {
		t.Fatalf("expected transcript to win, got %q", pack.Transcript)
	}
}

func TestBuildEvidencePack_EmptyArtifactsProduceEmptyLists(t *testing.T) {
	pack := BuildEvidencePack("v", testSource, nil, time.Now())
	data, _ := json.Marshal(pack)

	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	for _, key := range []string{"chapters", "events", "key_quotes"} {
		if _, ok := decoded[key].([]interface{}); !ok {
			t.Errorf("expected %s to encode as an empty list, got %v", key, decoded[key])
		}
	}
}
