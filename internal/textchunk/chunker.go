// Package textchunk splits long text into bounded pieces along sentence
// boundaries.
package textchunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the per-request input cap of the speech backends.
const DefaultLimit = 4096

// A segment runs up to and including terminal punctuation, an optional
// closing quote and trailing whitespace. Text after the last terminator is
// its own segment. The two alternatives together cover every byte of the
// input, so segments concatenate back to the input.
var segmentPattern = regexp.MustCompile(`[^.!?]*[.!?]+["'”’]?\s*|[^.!?]+$`)

// Split returns text as an ordered list of chunks of at most limit
// characters. Text shorter than limit is returned unchanged as the only
// element. Otherwise sentences are packed greedily; a single sentence longer
// than limit is kept whole rather than cut.
func Split(text string, limit int) []string {
	if utf8.RuneCountInString(text) < limit {
		return []string{text}
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if chunk := strings.TrimSpace(buf.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, segment := range Segments(text) {
		segLen := utf8.RuneCountInString(segment)
		if bufLen > 0 && bufLen+segLen > limit {
			flush()
		}
		buf.WriteString(segment)
		bufLen += segLen
	}
	flush()

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// Segments breaks text into sentence-like segments without dropping any
// characters.
func Segments(text string) []string {
	return segmentPattern.FindAllString(text, -1)
}
