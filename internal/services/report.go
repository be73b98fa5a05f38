package services

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"noirvision-backend/internal/models"
)

const reportWidth = 62

// FormatReport renders a report as boxed plain-text sections.
func FormatReport(r *models.CredibilityReport) string {
	var sections []string

	sections = append(sections, renderSection("VERITAS CREDIBILITY REPORT", []string{
		fmt.Sprintf("Case #%s", r.CaseID),
		r.CaseTitle,
	}, text.AlignCenter))

	sections = append(sections, renderSection("WITNESS CLAIM", []string{r.WitnessClaim}, text.AlignLeft))

	video := []string{
		"Source: " + orUnknown(r.VideoAnalysis.Source),
		"Duration: " + orUnknown(r.VideoAnalysis.Duration),
		"",
		"Detections:",
	}
	if len(r.VideoAnalysis.Detections) == 0 {
		video = append(video, "  (none)")
	}
	for _, d := range r.VideoAnalysis.Detections {
		video = append(video, fmt.Sprintf("  [%s] %s", d.Timestamp, d.Description))
	}
	if r.VideoAnalysis.OnScreenText != "" {
		video = append(video, "", "On-screen text: "+r.VideoAnalysis.OnScreenText)
	}
	if len(r.VideoAnalysis.SpeechTranscription) > 0 {
		video = append(video, "", "Speech:")
		for _, s := range r.VideoAnalysis.SpeechTranscription {
			video = append(video, fmt.Sprintf("  [%s] %s: %q", s.Timestamp, s.Speaker, s.Text))
		}
	}
	sections = append(sections, renderSection("VIDEO EVIDENCE ANALYSIS", video, text.AlignLeft))

	sections = append(sections, renderComparisons(r.Comparisons))

	sections = append(sections, renderSection("VERDICT", []string{
		fmt.Sprintf("Credibility Score: %d/100", r.CredibilityScore),
		"Status: " + r.Verdict,
		"",
		r.Recommendation,
	}, text.AlignLeft))

	var summary []string
	for _, c := range r.Comparisons {
		p, ok := r.EvidenceSummary[c.Category]
		if !ok {
			continue
		}
		summary = append(summary, fmt.Sprintf("%s %s: %s", checkMark(p.Match), c.Category, p.Detail))
	}
	if r.DetectiveNote != "" {
		summary = append(summary, "", fmt.Sprintf("Detective's note: %q", r.DetectiveNote))
	}
	sections = append(sections, renderSection("EVIDENCE SUMMARY", summary, text.AlignLeft))

	sections = append(sections, renderSection("", []string{
		"Case filed by: Detective Veritas",
		"In the city of lies, trust the footage.",
	}, text.AlignCenter))

	return strings.Join(sections, "\n") + "\n"
}

func renderSection(title string, lines []string, align text.Align) string {
	tw := newReportTable(align)
	if title != "" {
		tw.AppendHeader(table.Row{title})
	}
	for _, l := range lines {
		tw.AppendRow(table.Row{l})
	}
	return tw.Render()
}

func renderComparisons(comparisons []models.Comparison) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleDouble)
	tw.Style().Format.Header = text.FormatDefault
	tw.SetTitle("COMPARISON ENGINE ANALYSIS")
	tw.AppendHeader(table.Row{"", "Category", "Finding"})
	for _, c := range comparisons {
		tw.AppendRow(table.Row{checkMark(c.Match), c.Category, c.Explanation})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignCenter},
		{Number: 2, WidthMax: 20},
		{Number: 3, WidthMax: reportWidth - 30},
	})
	return tw.Render()
}

func newReportTable(align text.Align) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleDouble)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Options.SeparateRows = false
	tw.SetColumnConfigs([]table.ColumnConfig{{
		Number:      1,
		Align:       align,
		AlignHeader: text.AlignCenter,
		WidthMin:    reportWidth,
		WidthMax:    reportWidth,
	}})
	return tw
}

func checkMark(match bool) string {
	if match {
		return "✓"
	}
	return "✗"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
