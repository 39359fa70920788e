// Package render turns a story with generated assets into its final
// video file. Rendering runs in two scheduled phases: clips are encoded
// individually under the clip pool, then merged with crossfade
// transitions in batches under the chunk pool, subtitled, concatenated
// and mixed with background music.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"story-video-pipeline/backend"
	"story-video-pipeline/config"
	"story-video-pipeline/gpupool"
	"story-video-pipeline/media"
	"story-video-pipeline/motion"
	"story-video-pipeline/story"
	"story-video-pipeline/subtitle"
	"story-video-pipeline/timeline"
	"story-video-pipeline/types"
)

type Renderer struct {
	cfg     *config.Config
	store   *story.Store
	backend *backend.Client
	builder *timeline.Builder
	motion  *motion.Generator

	clipPool  *gpupool.Pool
	chunkPool *gpupool.Pool

	// guards rand, which chunk jobs share across goroutines
	mu   sync.Mutex
	rand *rand.Rand
}

func New(cfg *config.Config, store *story.Store, client *backend.Client) *Renderer {
	return &Renderer{
		cfg:       cfg,
		store:     store,
		backend:   client,
		builder:   timeline.NewBuilder(cfg),
		motion:    motion.NewGenerator(cfg),
		clipPool:  gpupool.New(cfg.Render.ClipPoolLimits...),
		chunkPool: gpupool.New(cfg.Render.ChunkPoolLimits...),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run renders the story's final video. Idempotent: when the recorded
// output file still exists the stage is skipped.
func (r *Renderer) Run(ctx context.Context, st *types.Story) error {
	if st.VideoFilePath != "" {
		if _, err := os.Stat(st.VideoFilePath); err == nil {
			log.Printf("[render] %s: video already rendered, skipping", st.Title)
			return nil
		}
	}

	folder, err := r.store.Folder(st.Title)
	if err != nil {
		return err
	}
	tempDir := filepath.Join(folder, "temp")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return err
	}

	if st.CoverOnly {
		return r.renderCoverOnly(ctx, st, folder, tempDir)
	}

	clips, err := r.builder.Build(st)
	if err != nil {
		return fmt.Errorf("build timeline: %w", err)
	}
	if len(clips) == 0 {
		return fmt.Errorf("story %q has no clips", st.Title)
	}

	if st.VideoType == "" {
		st.VideoType = VideoType(r.cfg, timeline.TotalDuration(clips))
	}
	profile := r.cfg.Profile(st.VideoType)

	if err := r.builder.Preprocess(ctx, clips, tempDir); err != nil {
		return fmt.Errorf("preprocess audio: %w", err)
	}

	if err := r.renderClips(ctx, clips, profile.ScreenSize, tempDir); err != nil {
		return err
	}

	chunkFiles, err := r.renderChunks(ctx, clips, tempDir)
	if err != nil {
		return err
	}

	subtitled, err := r.subtitleChunks(ctx, st, chunkFiles, profile, tempDir)
	if err != nil {
		return err
	}

	combined := filepath.Join(tempDir, "combined.mkv")
	if err := concatFiles(ctx, subtitled, combined, tempDir); err != nil {
		return err
	}

	out := filepath.Join(folder, "video.mkv")
	program := programLength(len(clips), len(chunkFiles), timeline.TotalDuration(clips), r.cfg.Video.TransitionDuration)
	if err := r.mixBackgroundMusic(ctx, st, combined, out, program, clips[0].Duration, profile.ScreenSize); err != nil {
		return err
	}

	st.VideoFilePath = out
	st.HasVideo = true
	log.Printf("[render] %s: video rendered to %s (%.1fs)", st.Title, out, program)
	return nil
}

// programLength is the concatenated output's length. Crossfades overlap
// adjacent clips, so every junction inside a batch removes one
// transition from the sum of clip durations; batch boundaries are hard
// cuts and remove nothing.
func programLength(clipCount, batchCount int, clipSum, transition float64) float64 {
	junctions := clipCount - batchCount
	if junctions < 0 {
		junctions = 0
	}
	return clipSum - float64(junctions)*transition
}

// VideoType classifies a program by duration: anything over the short
// cutoff is a standard landscape video, the rest a vertical short.
func VideoType(cfg *config.Config, totalDuration float64) string {
	if totalDuration > cfg.Video.ShortMaxDuration {
		return "standard"
	}
	return "short"
}

// renderClips encodes every clip concurrently under the clip pool. Jobs
// are dispatched in order; each waits for an encoder slot.
func (r *Renderer) renderClips(ctx context.Context, clips []*timeline.ClipConfig, screen types.Size, tempDir string) error {
	videoDir := filepath.Join(tempDir, "videos")
	if err := os.MkdirAll(videoDir, 0755); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, len(clips))
	for i, clip := range clips {
		slot, err := r.clipPool.Acquire(ctx)
		if err != nil {
			break
		}
		wg.Add(1)
		go func(i int, clip *timeline.ClipConfig, slot int) {
			defer wg.Done()
			defer r.clipPool.Release(slot)
			out := filepath.Join(videoDir, fmt.Sprintf("clip_%d.mkv", i+1))
			if err := r.renderClip(ctx, clip, screen, out, slot); err != nil {
				errs[i] = fmt.Errorf("clip %d: %w", i+1, err)
			}
		}(i, clip, slot)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return ctx.Err()
}

// renderChunks merges the rendered clips into chunk videos with
// crossfade transitions, one batch per job under the chunk pool.
func (r *Renderer) renderChunks(ctx context.Context, clips []*timeline.ClipConfig, tempDir string) ([]string, error) {
	batches := SplitIntoBatches(clips, r.cfg.Render.ChunkSplitLimit)

	files := make([]string, len(batches))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		slot, err := r.chunkPool.Acquire(ctx)
		if err != nil {
			break
		}
		wg.Add(1)
		go func(i int, batch []*timeline.ClipConfig, slot int) {
			defer wg.Done()
			defer r.chunkPool.Release(slot)
			out := filepath.Join(tempDir, fmt.Sprintf("video_audio_%d.mkv", i+1))
			if err := r.renderChunk(ctx, batch, out, slot); err != nil {
				errs[i] = fmt.Errorf("chunk %d: %w", i+1, err)
				return
			}
			files[i] = out
		}(i, batch, slot)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Renderer) renderChunk(ctx context.Context, batch []*timeline.ClipConfig, outFile string, slot int) error {
	log.Printf("[render] slot %d: merging %d clips into %s", slot, len(batch), filepath.Base(outFile))

	// A single-clip batch has no junctions; the transition graph needs
	// at least two inputs, so the clip is remuxed as-is.
	if len(batch) == 1 {
		return media.FFmpeg(ctx, "-i", batch[0].VideoFilePath, "-c", "copy", "-y", outFile)
	}

	args := []string{}
	durations := make([]float64, len(batch))
	for i, clip := range batch {
		args = append(args, "-i", clip.VideoFilePath)
		durations[i] = clip.Duration
	}

	r.mu.Lock()
	graph := TransitionGraph(durations, r.cfg.Video.TransitionDuration, func(int) string {
		return xfadeStyles[r.rand.Intn(len(xfadeStyles))]
	})
	r.mu.Unlock()

	args = append(args,
		"-filter_complex", graph,
		"-map", "[video]", "-map", "[audio]",
		"-c:v", "libx264",
		"-c:a", "libopus", "-b:a", "128k",
		"-y", outFile,
	)
	return media.FFmpeg(ctx, args...)
}

// subtitleChunks transcribes each chunk's mixed narration and burns
// word-highlight captions into it.
func (r *Renderer) subtitleChunks(ctx context.Context, st *types.Story, chunkFiles []string, profile config.VideoProfile, tempDir string) ([]string, error) {
	subtitled := make([]string, len(chunkFiles))
	for i, chunk := range chunkFiles {
		// Whisper wants a clean audio track, not a matroska container.
		audioFile := filepath.Join(tempDir, fmt.Sprintf("chunk_audio_%d.ogg", i+1))
		err := media.FFmpeg(ctx, "-i", chunk, "-vn", "-c:a", "libopus", "-y", audioFile)
		if err != nil {
			return nil, fmt.Errorf("extract chunk %d audio: %w", i+1, err)
		}

		segments, err := r.backend.Transcribe(ctx, audioFile)
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %d: %w", i+1, err)
		}

		var words []types.Word
		for _, seg := range segments {
			words = append(words, seg.Words...)
		}
		if i == 0 && !st.SkipTitle {
			words = dropTitleWords(words, st.TitleAudioDuration)
		}

		assFile := filepath.Join(tempDir, fmt.Sprintf("subtitle_%d.ass", i+1))
		err = subtitle.WriteASS(words, assFile, subtitle.Profile{
			FontSize:  profile.SubtitleFontSize,
			MarginV:   profile.SubtitleMarginV,
			WordLimit: profile.LineWordLimit,
			Screen:    profile.ScreenSize,
		})
		if err != nil {
			return nil, fmt.Errorf("write subtitles for chunk %d: %w", i+1, err)
		}

		out := filepath.Join(tempDir, fmt.Sprintf("video_audio_subtitled_%d.mkv", i+1))
		err = media.FFmpeg(ctx,
			"-i", chunk,
			"-vf", "ass="+escapeFilterPath(assFile),
			"-c:v", "libx264",
			"-c:a", "copy",
			"-y", out,
		)
		if err != nil {
			return nil, fmt.Errorf("burn subtitles into chunk %d: %w", i+1, err)
		}
		subtitled[i] = out
	}
	return subtitled, nil
}

// dropTitleWords removes the words belonging to the title narration so
// the title reading isn't captioned twice (the animated title already
// shows it). A small tolerance absorbs recognizer timing drift.
func dropTitleWords(words []types.Word, titleAudioDuration float64) []types.Word {
	var kept []types.Word
	for _, w := range words {
		if w.End > titleAudioDuration+0.2 {
			kept = append(kept, w)
		}
	}
	return kept
}

// concatFiles joins the subtitled chunks without re-encoding.
func concatFiles(ctx context.Context, files []string, outFile, tempDir string) error {
	var sb strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	listFile := filepath.Join(tempDir, "concat.txt")
	if err := os.WriteFile(listFile, []byte(sb.String()), 0644); err != nil {
		return err
	}
	return media.FFmpeg(ctx,
		"-f", "concat", "-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-y", outFile,
	)
}

// mixBackgroundMusic lays the genre's music bed under the program. The
// music is delayed by the first clip's duration so the title card plays
// clean, looped for the rest of the program, mixed under the narration
// and faded out together with it. A story without any resolvable music
// track still gets the final mux, narration and fade only.
func (r *Renderer) mixBackgroundMusic(ctx context.Context, st *types.Story, inFile, outFile string, programDuration, leadIn float64, screen types.Size) error {
	bgm := st.BGMFile
	if bgm == "" {
		bgm = r.cfg.BGM(st.Genre)
	}
	fade := r.cfg.Video.AudioFadeOut

	args := []string{"-i", inFile}
	if bgm != "" {
		args = append(args,
			"-stream_loop", "-1", "-i", bgm,
			"-f", "lavfi", "-t", fmt.Sprintf("%.4f", leadIn),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		)
	}

	args = append(args,
		"-filter_complex", musicMixGraph(bgm != "", fade, programDuration-fade, motion.PaddingFilter(screen)),
		"-map", "[video]", "-map", "[audio]",
		"-t", fmt.Sprintf("%.4f", programDuration),
		"-c:v", "libx264",
		"-c:a", "libopus", "-b:a", "128k",
		"-y", outFile,
	)
	return media.FFmpeg(ctx, args...)
}

// musicMixGraph builds the final-mux filter graph. Input 0 is the
// program; with music, input 1 is the looped track and input 2 the
// silent lead-in.
func musicMixGraph(withMusic bool, fade, fadeStart float64, videoFilter string) string {
	if !withMusic {
		return fmt.Sprintf(
			"[0:a]afade=type=out:duration=%g:start_time=%.4f[audio];[0:v]%s[video]",
			fade, fadeStart, videoFilter)
	}
	return fmt.Sprintf(
		"[2:a][1:a]concat=n=2:v=0:a=1[bgm];"+
			"[0:a][bgm]amix=inputs=2:duration=first[mix];"+
			"[mix]afade=type=out:duration=%g:start_time=%.4f[audio];"+
			"[0:v]%s[video]",
		fade, fadeStart, videoFilter)
}

// escapeFilterPath escapes a path for use inside a filter argument,
// where colons and quotes are syntax.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, ":", `\:`)
	path = strings.ReplaceAll(path, "'", `\'`)
	return path
}
