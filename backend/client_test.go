package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-video-pipeline/types"
)

func makeSegments(durations ...float64) []types.Segment {
	var segments []types.Segment
	start := 0.0
	for i, d := range durations {
		segments = append(segments, types.Segment{
			Start: start,
			End:   start + d,
			Text:  string(rune('a' + i)),
			Words: []types.Word{{Word: string(rune('a' + i)), Start: start, End: start + d}},
		})
		start += d
	}
	return segments
}

func TestMergeSegmentsCoalescesShortWindows(t *testing.T) {
	segments := makeSegments(3, 3, 3)

	merged := MergeSegments(segments, 10)
	require.Len(t, merged, 1)
	assert.InDelta(t, 0, merged[0].Start, 1e-9)
	assert.InDelta(t, 9, merged[0].End, 1e-9)
	assert.Len(t, merged[0].Words, 3)
	assert.Equal(t, "abc", merged[0].Text)
}

func TestMergeSegmentsSplitsLongInput(t *testing.T) {
	segments := makeSegments(6, 6, 6, 6)

	merged := MergeSegments(segments, 10)
	require.Len(t, merged, 2)
	assert.InDelta(t, 12, merged[0].End, 1e-9)
	assert.InDelta(t, 12, merged[1].Start, 1e-9)
	assert.InDelta(t, 24, merged[1].End, 1e-9)
}

func TestMergeSegmentsPreservesWordTiming(t *testing.T) {
	segments := makeSegments(6, 6, 6)
	merged := MergeSegments(segments, 10)

	var words []types.Word
	for _, seg := range merged {
		words = append(words, seg.Words...)
	}
	require.Len(t, words, 3)
	assert.InDelta(t, 6, words[1].Start, 1e-9)
	assert.InDelta(t, 12, words[1].End, 1e-9)
}

func TestMergeSegmentsEmpty(t *testing.T) {
	assert.Empty(t, MergeSegments(nil, 10))
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON(` {"a":1} `))
	assert.Equal(t, `[1,2]`, cleanJSON("[1,2]"))
}

func TestDecodePayload(t *testing.T) {
	_, err := decodePayload("")
	assert.Error(t, err)

	_, err = decodePayload("not-base64!!!")
	assert.Error(t, err)

	// A tiny decoded blob is an error body in disguise, not media.
	_, err = decodePayload("aGVsbG8=")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "0123456789...", truncate("0123456789abcdef", 10))
}
