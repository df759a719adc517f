package extract

import (
	"math"
	"regexp"
	"strings"
)

var (
	numberedSectionRe = regexp.MustCompile(`(?m)^[0-9]+\.\s+[A-Z]`)
	romanSectionRe    = regexp.MustCompile(`(?m)^[IVX]+\.\s+[A-Z]`)
	capsHeadingRe     = regexp.MustCompile(`(?m)^[A-Z][A-Z\s]+$`)
	bulletRe          = regexp.MustCompile(`(?m)^\s*[•\-\*]\s+`)
	numberedListRe    = regexp.MustCompile(`(?m)^\s*[0-9]+\.\s+`)
)

// tableMarkers are cheap signals that the text came from tabular layout.
var tableMarkers = []string{"table", "figure", "|", "\t"}

const maxEstimatedTables = 50

// AnalyzeStructure derives structural statistics from plain document text
// without calling a model. Deterministic and safe on empty input.
func AnalyzeStructure(text string) Structure {
	if strings.TrimSpace(text) == "" {
		return Structure{EstimatedReadingTimeMinutes: 1}
	}

	sections := len(numberedSectionRe.FindAllString(text, -1)) +
		len(romanSectionRe.FindAllString(text, -1)) +
		len(capsHeadingRe.FindAllString(text, -1))

	lower := strings.ToLower(text)
	markerCount := 0
	for _, m := range tableMarkers {
		markerCount += strings.Count(lower, m)
	}
	tables := markerCount / 10
	if tables > maxEstimatedTables {
		tables = maxEstimatedTables
	}

	bullets := len(bulletRe.FindAllString(text, -1)) +
		len(numberedListRe.FindAllString(text, -1))

	words := len(strings.Fields(text))
	readingTime := words / 200
	if readingTime < 1 {
		readingTime = 1
	}

	complexity := float64(sections)*0.5 + float64(tables)*0.3 +
		float64(bullets)*0.1 + float64(words)/1000
	if complexity > 10 {
		complexity = 10
	}
	complexity = math.Round(complexity*10) / 10

	return Structure{
		EstimatedSections:           sections,
		EstimatedTables:             tables,
		BulletPoints:                bullets,
		EstimatedReadingTimeMinutes: readingTime,
		ComplexityScore:             complexity,
	}
}
