// Package resources generates the assets a story needs before rendering:
// content chunks, image prompts, narration audio, scene images, scene
// videos and transcripts. Every stage is idempotent; completion markers
// in the story record and existing files on disk short-circuit reruns.
package resources

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"story-video-pipeline/backend"
	"story-video-pipeline/config"
	"story-video-pipeline/media"
	"story-video-pipeline/story"
	"story-video-pipeline/timeline"
	"story-video-pipeline/types"
)

type Manager struct {
	cfg     *config.Config
	store   *story.Store
	media   *backend.Client
	chat    *backend.ChatClient
	comfy   *backend.ComfyClient
	builder *timeline.Builder
}

func NewManager(cfg *config.Config, store *story.Store, media *backend.Client, chat *backend.ChatClient, comfy *backend.ComfyClient) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		media:   media,
		chat:    chat,
		comfy:   comfy,
		builder: timeline.NewBuilder(cfg),
	}
}

// SplitStoryIntoChunks turns the raw story text into narration chunks.
// With roles enabled the text is first separated into narrative and
// dialog lines so each chunk carries its speaker.
func (m *Manager) SplitStoryIntoChunks(ctx context.Context, st *types.Story) error {
	if len(st.ContentChunks) > 0 {
		return nil
	}
	if st.Content == "" {
		return fmt.Errorf("story %q has no content", st.Title)
	}

	if st.EnableRoles {
		if len(st.Characters) == 0 {
			characters, err := m.chat.ExtractCharacters(ctx, st.Content)
			if err != nil {
				return err
			}
			st.Characters = characters
		}
		lines, err := m.chat.SplitByCharacter(ctx, st.Content, st.Characters)
		if err != nil {
			return err
		}
		for _, line := range lines {
			pieces, err := SplitLongText(line.Content, chunkTokenLimit, chunkMaxTokens)
			if err != nil {
				return err
			}
			for _, piece := range pieces {
				chunk := &types.ContentChunk{Content: piece}
				if line.Type == "dialog" {
					chunk.Character = line.Character
				}
				st.ContentChunks = append(st.ContentChunks, chunk)
			}
		}
	} else {
		pieces, err := SplitLongText(st.Content, chunkTokenLimit, chunkMaxTokens)
		if err != nil {
			return err
		}
		for _, piece := range pieces {
			st.ContentChunks = append(st.ContentChunks, &types.ContentChunk{Content: piece})
		}
	}

	log.Printf("[resources] %s: split into %d chunks", st.Title, len(st.ContentChunks))
	return nil
}

// GenerateScenePrompts writes one image prompt per chunk plus the cover
// prompt.
func (m *Manager) GenerateScenePrompts(ctx context.Context, st *types.Story) error {
	if st.HasImagePrompts {
		return nil
	}

	if st.CoverImagePrompt == "" {
		prompt, err := m.chat.CoverPrompt(ctx, st.Title, st.Content, st.Genre, st.Style)
		if err != nil {
			return err
		}
		st.CoverImagePrompt = prompt
	}

	descriptions := make([]string, len(st.ContentChunks))
	for i, chunk := range st.ContentChunks {
		descriptions[i] = chunk.Content
	}
	prompts, err := m.chat.ScenePrompts(ctx, st.Title, descriptions, st.Genre, st.Style)
	if err != nil {
		return err
	}
	for i, chunk := range st.ContentChunks {
		chunk.SceneImagePrompt = prompts[i]
	}

	st.HasImagePrompts = true
	log.Printf("[resources] %s: generated %d scene prompts", st.Title, len(prompts))
	return nil
}

// GenerateAudios narrates the title and every chunk, then derives the
// estimated duration and video type from the resulting audio.
func (m *Manager) GenerateAudios(ctx context.Context, st *types.Story) error {
	if st.HasAudios {
		return nil
	}

	assigned, err := AssignVoices(st.Characters, m.cfg.Voices)
	if err != nil {
		return err
	}
	audioDir, err := m.store.Folder(st.Title, "audios")
	if err != nil {
		return err
	}

	if !st.SkipTitle && st.TitleAudio == "" {
		file := filepath.Join(audioDir, "title.wav")
		if err := m.synthesize(ctx, st.Title, m.cfg.Voices.Narrator, st.SpeedFactor, file); err != nil {
			return fmt.Errorf("title audio: %w", err)
		}
		st.TitleAudio = file
	}
	if st.TitleAudio != "" && st.TitleAudioDuration == 0 {
		dur, err := media.AudioDuration(st.TitleAudio)
		if err != nil {
			return err
		}
		st.TitleAudioDuration = dur
	}

	for i, chunk := range st.ContentChunks {
		file := filepath.Join(audioDir, fmt.Sprintf("chunk_%d.wav", i+1))
		if chunk.AudioFile == "" || !fileExists(chunk.AudioFile) {
			voice := voiceFor(chunk, assigned, m.cfg.Voices)
			if err := m.synthesize(ctx, chunk.Content, voice, st.SpeedFactor, file); err != nil {
				return fmt.Errorf("chunk %d audio: %w", i+1, err)
			}
			chunk.AudioFile = file
		}
		dur, err := media.AudioDuration(chunk.AudioFile)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i+1, err)
		}
		chunk.AudioDuration = dur
	}

	clips, err := m.builder.Build(st)
	if err != nil {
		return fmt.Errorf("estimate duration: %w", err)
	}
	st.EstimatedDuration = timeline.TotalDuration(clips)
	if st.VideoType == "" {
		if st.EstimatedDuration > m.cfg.Video.ShortMaxDuration {
			st.VideoType = "standard"
		} else {
			st.VideoType = "short"
		}
	}

	st.HasAudios = true
	log.Printf("[resources] %s: audios ready, estimated %.1fs (%s)",
		st.Title, st.EstimatedDuration, st.VideoType)
	return nil
}

// synthesize renders one narration file, applying the optional tempo
// adjustment.
func (m *Manager) synthesize(ctx context.Context, text, voice string, speedFactor float64, outFile string) error {
	blob, err := m.media.GenerateSpeech(ctx, text, voice)
	if err != nil {
		return err
	}
	if speedFactor == 0 || speedFactor == 1 {
		return os.WriteFile(outFile, blob, 0644)
	}

	raw := outFile + ".raw.wav"
	if err := os.WriteFile(raw, blob, 0644); err != nil {
		return err
	}
	defer os.Remove(raw)
	return media.FFmpeg(ctx,
		"-i", raw,
		"-filter:a", fmt.Sprintf("atempo=%.4f", speedFactor),
		"-y", outFile,
	)
}

// GenerateSceneImages renders the cover plus one image per chunk.
func (m *Manager) GenerateSceneImages(ctx context.Context, st *types.Story) error {
	if st.HasImage {
		return nil
	}

	imageDir, err := m.store.Folder(st.Title, "images")
	if err != nil {
		return err
	}
	profile := m.cfg.Profile(st.VideoType)

	if st.CoverImageFile == "" || !fileExists(st.CoverImageFile) {
		size := profile.ScreenSize
		blob, err := m.media.GenerateImage(ctx, st.CoverImagePrompt, size.Width, size.Height)
		if err != nil {
			return fmt.Errorf("cover image: %w", err)
		}
		file := filepath.Join(imageDir, "cover.png")
		if err := os.WriteFile(file, blob, 0644); err != nil {
			return err
		}
		st.CoverImageFile = file
	}

	for i, chunk := range st.ContentChunks {
		if chunk.SceneImageFile != "" && fileExists(chunk.SceneImageFile) {
			continue
		}
		size := profile.ImageSize
		if chunk.ImageSize != nil {
			size = *chunk.ImageSize
		}
		blob, err := m.media.GenerateImage(ctx, chunk.SceneImagePrompt, size.Width, size.Height)
		if err != nil {
			return fmt.Errorf("scene image %d: %w", i+1, err)
		}
		file := filepath.Join(imageDir, fmt.Sprintf("scene_%d.png", i+1))
		if err := os.WriteFile(file, blob, 0644); err != nil {
			return err
		}
		chunk.SceneImageFile = file
	}

	st.HasImage = true
	log.Printf("[resources] %s: scene images ready", st.Title)
	return nil
}

// GenerateSceneVideos animates the cover and scene images through the
// image-to-video workflow. Disabled stories keep their still images.
func (m *Manager) GenerateSceneVideos(ctx context.Context, st *types.Story) error {
	if !st.EnableVideo || st.HasSceneVideos {
		return nil
	}

	videoDir, err := m.store.Folder(st.Title, "scene_videos")
	if err != nil {
		return err
	}

	if st.CoverVideoFile == "" || !fileExists(st.CoverVideoFile) {
		file := filepath.Join(videoDir, "cover.mp4")
		prompt := st.CoverImagePrompt
		if err := m.generateVideo(ctx, st, prompt, st.Title, st.CoverImageFile, file); err != nil {
			return fmt.Errorf("cover video: %w", err)
		}
		st.CoverVideoFile = file
	}

	for i, chunk := range st.ContentChunks {
		if chunk.SceneVideoFile != "" && fileExists(chunk.SceneVideoFile) {
			continue
		}
		prompt := chunk.VideoPrompt
		if prompt == "" {
			prompt = chunk.SceneImagePrompt
		}
		if st.EnableVideoPromptRefinement {
			if chunk.RefinedVideoPrompt == "" {
				refined, err := m.chat.RefineVideoPrompt(ctx, prompt, chunk.Content)
				if err != nil {
					return fmt.Errorf("scene %d: %w", i+1, err)
				}
				chunk.RefinedVideoPrompt = refined
			}
			prompt = chunk.RefinedVideoPrompt
		}

		file := filepath.Join(videoDir, fmt.Sprintf("scene_%d.mp4", i+1))
		if err := m.generateVideo(ctx, st, prompt, chunk.Content, chunk.SceneImageFile, file); err != nil {
			return fmt.Errorf("scene video %d: %w", i+1, err)
		}
		chunk.SceneVideoFile = file
	}

	st.HasSceneVideos = true
	log.Printf("[resources] %s: scene videos ready", st.Title)
	return nil
}

func (m *Manager) generateVideo(ctx context.Context, st *types.Story, prompt, scene, imageFile, outFile string) error {
	if imageFile == "" || !fileExists(imageFile) {
		return fmt.Errorf("no source image for %q", scene)
	}
	blob, err := m.comfy.GenerateVideo(ctx, backend.VideoJob{
		Prompt:    prompt,
		ImageFile: imageFile,
		Seed:      rand.Int63(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(outFile, blob, 0644)
}

// GenerateTranscripts produces word-level transcripts for every chunk's
// narration.
func (m *Manager) GenerateTranscripts(ctx context.Context, st *types.Story) error {
	if st.HasTranscripts {
		return nil
	}

	files := make([]string, len(st.ContentChunks))
	for i, chunk := range st.ContentChunks {
		if chunk.AudioFile == "" {
			return fmt.Errorf("chunk %d has no narration audio", i+1)
		}
		files[i] = chunk.AudioFile
	}

	transcripts, err := m.media.BatchTranscripts(ctx, files, m.cfg.Voices.SegmentLength)
	if err != nil {
		return err
	}
	for i, chunk := range st.ContentChunks {
		chunk.Transcript = transcripts[i]
	}

	st.HasTranscripts = true
	log.Printf("[resources] %s: transcripts ready", st.Title)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
