// Package timeline converts a story's logical chunks into the concrete
// list of renderable clips, with gap padding and fade-out accounting.
package timeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"story-video-pipeline/config"
	"story-video-pipeline/media"
	"story-video-pipeline/types"
)

// Effect tags the visual motion applied to a clip.
type Effect string

const (
	EffectNone       Effect = ""
	EffectMovingCrop Effect = "movingCropFilter"
	EffectZoomIn     Effect = "zoomInFilter"
)

// AudioConfig describes a clip's narration track with the silence
// inserted before (StartTime) and after (PaddingTime) it.
type AudioConfig struct {
	StartTime   float64
	PaddingTime float64
	FilePath    string
	Duration    float64
}

// ClipImage is the visual source of a clip: a still image or an already
// generated scene video.
type ClipImage struct {
	FilePath    string
	Duration    float64
	EnableVideo bool
}

// ClipConfig fully describes one renderable timeline unit.
type ClipConfig struct {
	Audio    AudioConfig
	Image    ClipImage
	Duration float64
	Effect   Effect

	// Title clip only.
	Title     string
	Font      string
	FontSize  int
	FontColor string

	OverlayFile     string
	TransitionSound string
	ImageSize       *types.Size

	// VideoFilePath is set once the clip has been rendered.
	VideoFilePath string
}

// Builder derives clip configs from a story.
type Builder struct {
	cfg *config.Config

	// probe hooks, replaced in tests
	probeAudio func(string) (float64, error)
}

func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg, probeAudio: media.AudioDuration}
}

// Build returns the ordered clip list: a title clip first (unless the
// story skips it) and one scene clip per content chunk. A missing audio
// or visual asset fails the whole story; upstream generation stages
// must have completed first.
func (b *Builder) Build(story *types.Story) ([]*ClipConfig, error) {
	gap := b.cfg.Video.ClipGappingTime
	profile := b.cfg.Profile(story.VideoType)

	var clips []*ClipConfig
	if !story.SkipTitle {
		clip, err := b.buildTitleClip(story, gap, profile)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}

	for i, chunk := range story.ContentChunks {
		clip, err := b.buildSceneClip(story, chunk, gap)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i+1, err)
		}
		clips = append(clips, clip)
	}

	if len(clips) > 0 {
		b.applyFadeOut(clips[len(clips)-1])
	}
	return clips, nil
}

func (b *Builder) buildTitleClip(story *types.Story, gap float64, profile config.VideoProfile) (*ClipConfig, error) {
	titleAudioDuration := story.TitleAudioDuration
	if titleAudioDuration == 0 {
		dur, err := b.probeAudio(story.TitleAudio)
		if err != nil {
			return nil, fmt.Errorf("title audio: %w", err)
		}
		titleAudioDuration = dur
	}

	coverVideo := story.CoverVideoFile != "" && fileExists(story.CoverVideoFile)
	coverFile := story.CoverImageFile
	effect := EffectZoomIn
	if coverVideo {
		// A generated cover video brings its own motion.
		coverFile = story.CoverVideoFile
		effect = EffectNone
	}

	padding := gap
	if story.TransitionSound != "" {
		// The transition cue itself marks the boundary; keep the pad
		// just long enough for the concat filter.
		padding = 0.001
	}

	// Two extra seconds of visual headroom so the motion effect settles
	// before narration starts.
	visualDuration := titleAudioDuration + 2

	return &ClipConfig{
		Audio: AudioConfig{
			StartTime:   2 * gap,
			PaddingTime: padding,
			FilePath:    story.TitleAudio,
			Duration:    titleAudioDuration,
		},
		Image: ClipImage{
			FilePath:    coverFile,
			Duration:    visualDuration,
			EnableVideo: coverVideo,
		},
		Duration:        visualDuration,
		Effect:          effect,
		Title:           story.Title,
		Font:            b.cfg.TitleFont(story.Genre),
		FontSize:        profile.TitleFontSize,
		FontColor:       b.cfg.TitleColor(story.Genre),
		OverlayFile:     story.OverlayFile,
		TransitionSound: story.TransitionSound,
	}, nil
}

func (b *Builder) buildSceneClip(story *types.Story, chunk *types.ContentChunk, gap float64) (*ClipConfig, error) {
	audioDuration := chunk.AudioDuration
	if audioDuration == 0 {
		dur, err := b.probeAudio(chunk.AudioFile)
		if err != nil {
			return nil, fmt.Errorf("narration audio: %w", err)
		}
		audioDuration = dur
		chunk.AudioDuration = dur
	}

	transitionSound := chunk.TransitionSound
	if transitionSound == "" {
		transitionSound = story.TransitionSound
	}

	padding := gap
	if transitionSound != "" {
		padding = 0.001
	}

	transitionSoundDuration := 0.0
	if transitionSound != "" {
		dur, err := b.probeAudio(transitionSound)
		if err != nil {
			return nil, fmt.Errorf("transition sound: %w", err)
		}
		transitionSoundDuration = dur
	}

	videoFile := chunk.SceneVideoFile != "" && fileExists(chunk.SceneVideoFile)
	visual := chunk.SceneImageFile
	effect := EffectMovingCrop
	if videoFile {
		visual = chunk.SceneVideoFile
		effect = EffectNone
	}

	duration := audioDuration + gap + padding + transitionSoundDuration

	overlay := story.OverlayFile
	if chunk.OverlayFile != nil {
		overlay = *chunk.OverlayFile
	}

	return &ClipConfig{
		Audio: AudioConfig{
			StartTime:   gap,
			PaddingTime: padding,
			FilePath:    chunk.AudioFile,
			Duration:    audioDuration,
		},
		Image: ClipImage{
			FilePath:    visual,
			Duration:    duration,
			EnableVideo: videoFile,
		},
		Duration:        duration,
		Effect:          effect,
		OverlayFile:     overlay,
		TransitionSound: transitionSound,
		ImageSize:       chunk.ImageSize,
	}, nil
}

// applyFadeOut gives the terminal clip the audio fade-out instead of a
// trailing gap or transition cue, so the mix fades rather than stopping
// abruptly.
func (b *Builder) applyFadeOut(clip *ClipConfig) {
	fade := b.cfg.Video.AudioFadeOut
	clip.Audio.PaddingTime = fade
	clip.Duration = clip.Audio.Duration + clip.Audio.StartTime + fade
	clip.Image.Duration = clip.Duration
	clip.TransitionSound = ""
}

// TotalDuration sums the clip durations; this equals the final program
// duration.
func TotalDuration(clips []*ClipConfig) float64 {
	total := 0.0
	for _, c := range clips {
		total += c.Duration
	}
	return total
}

// Preprocess bakes each clip's padding (and transition sound, when set)
// into a real audio file under tempDir, then re-probes the padded track
// so clip durations match the encoded audio exactly.
func (b *Builder) Preprocess(ctx context.Context, clips []*ClipConfig, tempDir string) error {
	withSoundDir := filepath.Join(tempDir, "audios_with_transition_sound")
	paddedDir := filepath.Join(tempDir, "audios_with_padding")
	for _, dir := range []string{withSoundDir, paddedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	for i, clip := range clips {
		if clip.TransitionSound != "" {
			out := filepath.Join(withSoundDir, filepath.Base(clip.Audio.FilePath))
			err := media.FFmpeg(ctx,
				"-i", clip.Audio.FilePath,
				"-i", clip.TransitionSound,
				"-filter_complex", "[0:a][1:a]concat=n=2:v=0:a=1[outa]",
				"-map", "[outa]",
				"-y", out,
			)
			if err != nil {
				return fmt.Errorf("clip %d: append transition sound: %w", i+1, err)
			}
			clip.Audio.FilePath = out
		}

		padded := filepath.Join(paddedDir, filepath.Base(clip.Audio.FilePath))
		err := media.FFmpeg(ctx,
			"-i", clip.Audio.FilePath,
			"-f", "lavfi", "-t", fmt.Sprintf("%g", clip.Audio.StartTime),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
			"-f", "lavfi", "-t", fmt.Sprintf("%g", clip.Audio.PaddingTime),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
			"-filter_complex", "[1:a][0:a][2:a]concat=n=3:v=0:a=1[outa]",
			"-map", "[outa]",
			"-y", padded,
		)
		if err != nil {
			return fmt.Errorf("clip %d: pad audio: %w", i+1, err)
		}
		clip.Audio.FilePath = padded

		dur, err := b.probeAudio(padded)
		if err != nil {
			return fmt.Errorf("clip %d: %w", i+1, err)
		}
		clip.Duration = dur
		clip.Image.Duration = dur
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
