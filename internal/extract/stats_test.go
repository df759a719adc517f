package extract

import (
	"strings"
	"testing"
)

func TestAnalyzeStructureEmptyText(t *testing.T) {
	t.Parallel()

	got := AnalyzeStructure("   \n\t ")

	if got.EstimatedSections != 0 || got.EstimatedTables != 0 || got.BulletPoints != 0 {
		t.Errorf("empty text should yield zero counts: %+v", got)
	}
	if got.EstimatedReadingTimeMinutes != 1 {
		t.Errorf("reading time = %d, want minimum of 1", got.EstimatedReadingTimeMinutes)
	}
}

func TestAnalyzeStructureSections(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"1. Introduction",
		"Some prose about the business.",
		"2. Financial Review",
		"IV. Risk Factors",
		"EXECUTIVE SUMMARY",
		"lowercase line that is not a heading",
	}, "\n")

	got := AnalyzeStructure(text)

	// Two numbered, one roman, one all-caps heading.
	if got.EstimatedSections != 4 {
		t.Errorf("EstimatedSections = %d, want 4", got.EstimatedSections)
	}
}

func TestAnalyzeStructureBulletsAndTables(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"• first point",
		"- second point",
		"* third point",
		"  1. nested numbered item",
		strings.Repeat("see table | col ", 10),
	}, "\n")

	got := AnalyzeStructure(text)

	if got.BulletPoints != 4 {
		t.Errorf("BulletPoints = %d, want 4", got.BulletPoints)
	}
	if got.EstimatedTables == 0 {
		t.Error("table markers should register as estimated tables")
	}
}

func TestAnalyzeStructureTableCap(t *testing.T) {
	t.Parallel()

	got := AnalyzeStructure(strings.Repeat("table ", 10000))

	if got.EstimatedTables != maxEstimatedTables {
		t.Errorf("EstimatedTables = %d, want cap %d", got.EstimatedTables, maxEstimatedTables)
	}
}

func TestAnalyzeStructureReadingTime(t *testing.T) {
	t.Parallel()

	// 600 words at 200 words per minute.
	got := AnalyzeStructure(strings.Repeat("word ", 600))

	if got.EstimatedReadingTimeMinutes != 3 {
		t.Errorf("reading time = %d, want 3", got.EstimatedReadingTimeMinutes)
	}
}

func TestAnalyzeStructureComplexityCap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("1. Section Heading\n")
		b.WriteString(strings.Repeat("content ", 200))
		b.WriteString("\n")
	}

	got := AnalyzeStructure(b.String())

	if got.ComplexityScore != 10 {
		t.Errorf("ComplexityScore = %.1f, want cap of 10", got.ComplexityScore)
	}
}
