package resources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLongTextPacksSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine ten eleven twelve. Thirteen fourteen."

	chunks, err := SplitLongText(text, 10, 200)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		// Chunks never cut a sentence: each ends on an ender.
		last := chunk[len(chunk)-1:]
		assert.Contains(t, []string{".", "?", "!", ";"}, last, "chunk %q", chunk)
	}
	// First two sentences fit the budget together; the third starts a
	// new chunk.
	assert.Equal(t, "One two three. Four five six.", chunks[0])
}

func TestSplitLongTextKeepsQuestionAndExclamation(t *testing.T) {
	chunks, err := SplitLongText("Who goes there? Halt! Proceed;", 3, 200)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who goes there?", "Halt! Proceed;"}, chunks)
}

func TestSplitLongTextHardBreak(t *testing.T) {
	chunks, err := SplitLongText("Part one. *** Part two.", 50, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Part one.", chunks[0])
	assert.Equal(t, "Part two.", chunks[1])
}

func TestSplitLongTextNewlinesActAsSentenceBreaks(t *testing.T) {
	chunks, err := SplitLongText("First line\nSecond line", 3, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0], "First line"))
	assert.True(t, strings.HasPrefix(chunks[1], "Second line"))
}

func TestSplitLongTextOversizedSentenceFails(t *testing.T) {
	long := strings.Repeat("word ", 201) + "."
	_, err := SplitLongText(long, 20, 200)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 200 words")
}

func TestSplitLongTextLongSentenceOverBudgetIsKept(t *testing.T) {
	// A 25-word sentence exceeds the 20-word target but stays whole.
	sentence := strings.TrimSpace(strings.Repeat("word ", 25)) + "."
	chunks, err := SplitLongText(sentence, 20, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, sentence, chunks[0])
}

func TestSplitLongTextEmptyFails(t *testing.T) {
	_, err := SplitLongText("   \n  ", 20, 200)
	require.Error(t, err)
}
