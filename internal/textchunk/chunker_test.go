package textchunk_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/arunika-relay/internal/textchunk"
)

func TestSplit_ShortTextReturnedUnchanged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"single sentence", "Hello there."},
		{"surrounding whitespace kept", "  two sentences. Here!  "},
		{"no terminator", "just words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, []string{tt.text}, textchunk.Split(tt.text, 100))
		})
	}
}

func TestSplit_ExactlyLimitSingleSegment(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("A", 4096)

	got := textchunk.Split(text, 4096)

	require.Len(t, got, 1)
	assert.Len(t, got[0], 4096)
}

func TestSplit_RepeatedSentences(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("First sentence. ", 500) + "Last sentence."

	got := textchunk.Split(text, textchunk.DefaultLimit)

	require.Greater(t, len(got), 1)
	for i, chunk := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), textchunk.DefaultLimit, "chunk %d", i)
		assert.True(t, strings.HasSuffix(strings.TrimSpace(chunk), "."), "chunk %d must end in a period", i)
	}
	assert.True(t, strings.HasSuffix(got[len(got)-1], "Last sentence."))
}

func TestSplit_PreservesContent(t *testing.T) {
	t.Parallel()
	text := "One fish. Two fish! Red fish? \"Blue fish.\" And a tail without end"

	got := textchunk.Split(text, 20)

	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(strings.Fields(strings.Join(got, " ")), " "))
	for _, chunk := range got {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestSplit_MergedChunksRespectLimit(t *testing.T) {
	t.Parallel()
	text := "Aa. Bbb. Cc. Dddd. Ee. Fff. Gg. Hhhhh. Ii."

	got := textchunk.Split(text, 10)

	for _, chunk := range got {
		if len(textchunk.Segments(chunk)) > 1 {
			assert.LessOrEqual(t, len(chunk), 10, "merged chunk %q", chunk)
		}
	}
}

func TestSplit_OversizedSentenceKeptWhole(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("word ", 10) + "end."
	text := "Short. " + long + " Tail."

	got := textchunk.Split(text, 12)

	assert.Equal(t, []string{"Short.", long, "Tail."}, got)
}

func TestSplit_UsesCharacterCount(t *testing.T) {
	t.Parallel()
	// 5 characters, 10 bytes.
	text := "héllö"

	assert.Equal(t, []string{text}, textchunk.Split(text, 6))
}

func TestSplit_WhitespaceOnly(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{""}, textchunk.Split("     ", 3))
}

func TestSegments_CoverInput(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"",
		"...",
		"Hi! How are you? Fine.",
		"Quote: \"done.\" Next",
		"line one.\nline two",
	}
	for _, in := range inputs {
		assert.Equal(t, in, strings.Join(textchunk.Segments(in), ""), "input %q", in)
	}
}
