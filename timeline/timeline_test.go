package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

func testBuilder(durations map[string]float64) *Builder {
	b := NewBuilder(config.Default())
	b.probeAudio = func(file string) (float64, error) {
		dur, ok := durations[file]
		if !ok {
			return 0, fmt.Errorf("probe duration: no such file %s", file)
		}
		return dur, nil
	}
	return b
}

func testStory() *types.Story {
	return &types.Story{
		Title:          "The Lighthouse",
		TitleAudio:     "title.wav",
		CoverImageFile: "cover.png",
		ContentChunks: []*types.ContentChunk{
			{Content: "first scene", AudioFile: "chunk_1.wav", SceneImageFile: "scene_1.png"},
			{Content: "second scene", AudioFile: "chunk_2.wav", SceneImageFile: "scene_2.png"},
		},
	}
}

func TestBuildClipDurations(t *testing.T) {
	b := testBuilder(map[string]float64{
		"title.wav":   3.0,
		"chunk_1.wav": 4.0,
		"chunk_2.wav": 5.0,
	})

	clips, err := b.Build(testStory())
	require.NoError(t, err)
	require.Len(t, clips, 3)

	// Title: narration plus two seconds of visual headroom.
	assert.InDelta(t, 5.0, clips[0].Duration, 1e-9)
	// Middle scene: narration plus leading gap plus trailing gap.
	assert.InDelta(t, 4.6, clips[1].Duration, 1e-9)
	// Terminal scene: narration plus leading gap plus fade-out.
	assert.InDelta(t, 6.3, clips[2].Duration, 1e-9)

	assert.InDelta(t, 15.9, TotalDuration(clips), 1e-9)
}

func TestBuildTitleClip(t *testing.T) {
	b := testBuilder(map[string]float64{
		"title.wav":   3.0,
		"chunk_1.wav": 4.0,
		"chunk_2.wav": 5.0,
	})

	clips, err := b.Build(testStory())
	require.NoError(t, err)

	title := clips[0]
	assert.InDelta(t, 0.6, title.Audio.StartTime, 1e-9)
	assert.InDelta(t, 0.3, title.Audio.PaddingTime, 1e-9)
	assert.Equal(t, EffectZoomIn, title.Effect)
	assert.Equal(t, "The Lighthouse", title.Title)
	assert.Equal(t, "cover.png", title.Image.FilePath)
	assert.False(t, title.Image.EnableVideo)
}

func TestBuildTerminalClipFadeOut(t *testing.T) {
	b := testBuilder(map[string]float64{
		"title.wav":   3.0,
		"chunk_1.wav": 4.0,
		"chunk_2.wav": 5.0,
	})

	st := testStory()
	st.TransitionSound = "whoosh.wav"
	// Transition sounds apply everywhere but the terminal clip.
	b.probeAudio = withFile(b.probeAudio, "whoosh.wav", 0.8)

	clips, err := b.Build(st)
	require.NoError(t, err)

	last := clips[len(clips)-1]
	assert.InDelta(t, 1.0, last.Audio.PaddingTime, 1e-9)
	assert.Empty(t, last.TransitionSound)
	assert.InDelta(t, last.Duration, last.Image.Duration, 1e-9)
	assert.InDelta(t, 6.3, last.Duration, 1e-9)
}

func TestBuildWithTransitionSound(t *testing.T) {
	b := testBuilder(map[string]float64{
		"title.wav":   3.0,
		"chunk_1.wav": 4.0,
		"chunk_2.wav": 5.0,
		"whoosh.wav":  0.8,
	})

	st := testStory()
	st.TransitionSound = "whoosh.wav"

	clips, err := b.Build(st)
	require.NoError(t, err)

	// Title keeps the minimal pad; the cue itself fills the boundary.
	assert.InDelta(t, 0.001, clips[0].Audio.PaddingTime, 1e-9)
	assert.Equal(t, "whoosh.wav", clips[0].TransitionSound)

	// Scene: narration 4.0 + gap 0.3 + pad 0.001 + cue 0.8.
	assert.InDelta(t, 5.101, clips[1].Duration, 1e-9)
}

func TestBuildSkipTitle(t *testing.T) {
	b := testBuilder(map[string]float64{
		"chunk_1.wav": 4.0,
		"chunk_2.wav": 5.0,
	})

	st := testStory()
	st.SkipTitle = true

	clips, err := b.Build(st)
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Empty(t, clips[0].Title)
	assert.Equal(t, EffectMovingCrop, clips[0].Effect)
}

func TestBuildChunkOverlayOverride(t *testing.T) {
	b := testBuilder(map[string]float64{
		"title.wav":   3.0,
		"chunk_1.wav": 4.0,
		"chunk_2.wav": 5.0,
	})

	st := testStory()
	st.OverlayFile = "rain.mp4"
	disabled := ""
	st.ContentChunks[1].OverlayFile = &disabled

	clips, err := b.Build(st)
	require.NoError(t, err)
	assert.Equal(t, "rain.mp4", clips[1].OverlayFile)
	assert.Empty(t, clips[2].OverlayFile)
}

func TestBuildMissingAudioFails(t *testing.T) {
	b := testBuilder(map[string]float64{"title.wav": 3.0})

	_, err := b.Build(testStory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")
}

func TestBuildReusesRecordedDurations(t *testing.T) {
	b := testBuilder(nil) // probing anything would fail

	st := testStory()
	st.TitleAudioDuration = 3.0
	st.ContentChunks[0].AudioDuration = 4.0
	st.ContentChunks[1].AudioDuration = 5.0

	clips, err := b.Build(st)
	require.NoError(t, err)
	assert.InDelta(t, 15.9, TotalDuration(clips), 1e-9)
}

func withFile(probe func(string) (float64, error), file string, dur float64) func(string) (float64, error) {
	return func(f string) (float64, error) {
		if f == file {
			return dur, nil
		}
		return probe(f)
	}
}
