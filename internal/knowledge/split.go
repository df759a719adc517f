package knowledge

import (
	"strings"
	"unicode/utf8"
)

// Ingestion chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// splitBoundaries in preference order: paragraph, line, sentence, word.
var splitBoundaries = []string{"\n\n", "\n", ". ", " "}

// SplitText splits text into chunks of at most chunkSize bytes, carrying
// roughly overlap bytes between adjacent chunks so context survives the
// cut. Cuts land on the best available boundary; a hard cut mid-word only
// happens when the window has no boundary at all.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		if pos+chunkSize >= len(text) {
			if c := strings.TrimSpace(text[pos:]); c != "" {
				chunks = append(chunks, c)
			}
			break
		}
		cut := boundaryCut(text[pos : pos+chunkSize])
		if c := strings.TrimSpace(text[pos : pos+cut]); c != "" {
			chunks = append(chunks, c)
		}
		next := pos + cut - overlap
		if next <= pos {
			next = pos + cut
		}
		pos = next
	}
	return chunks
}

// boundaryCut returns the cut offset within window, never zero. The hard
// cut fallback backs up to a rune start so a multi-byte rune is never
// split.
func boundaryCut(window string) int {
	for _, sep := range splitBoundaries {
		if i := strings.LastIndex(window, sep); i > 0 {
			return i + len(sep)
		}
	}
	cut := len(window)
	for cut > 1 && !utf8.RuneStart(window[cut-1]) {
		cut--
	}
	return cut
}
