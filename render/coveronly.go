package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"story-video-pipeline/media"
	"story-video-pipeline/motion"
	"story-video-pipeline/subtitle"
	"story-video-pipeline/timeline"
	"story-video-pipeline/types"
)

// renderCoverOnly produces the whole program from the cover visual
// alone: the narration tracks are concatenated into one audio bed and
// the cover loops (or zooms, for a still image) underneath it. Used for
// audiobook-style stories where per-scene visuals add nothing.
func (r *Renderer) renderCoverOnly(ctx context.Context, st *types.Story, folder, tempDir string) error {
	var audioFiles []string
	if !st.SkipTitle {
		audioFiles = append(audioFiles, st.TitleAudio)
	}
	for _, chunk := range st.ContentChunks {
		audioFiles = append(audioFiles, chunk.AudioFile)
	}
	if len(audioFiles) == 0 {
		return fmt.Errorf("story %q has no narration audio", st.Title)
	}

	narration := filepath.Join(tempDir, "narration.ogg")
	if err := concatAudios(ctx, audioFiles, narration); err != nil {
		return fmt.Errorf("concat narration: %w", err)
	}

	total, err := media.AudioDuration(narration)
	if err != nil {
		return err
	}
	if st.VideoType == "" {
		st.VideoType = VideoType(r.cfg, total)
	}
	profile := r.cfg.Profile(st.VideoType)

	segments, err := r.backend.Transcribe(ctx, narration)
	if err != nil {
		return fmt.Errorf("transcribe narration: %w", err)
	}
	var words []types.Word
	for _, seg := range segments {
		words = append(words, seg.Words...)
	}
	if !st.SkipTitle {
		words = dropTitleWords(words, st.TitleAudioDuration)
	}

	assFile := filepath.Join(tempDir, "subtitle.ass")
	err = subtitle.WriteASS(words, assFile, subtitle.Profile{
		FontSize:  profile.SubtitleFontSize,
		MarginV:   profile.SubtitleMarginV,
		WordLimit: profile.LineWordLimit,
		Screen:    profile.ScreenSize,
	})
	if err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}

	out := filepath.Join(folder, "video.mkv")
	if err := r.renderCoverProgram(ctx, st, narration, assFile, out, total, profile.ScreenSize); err != nil {
		return err
	}

	if !st.SkipTitle && st.Title != "" {
		clip := &timeline.ClipConfig{
			Title:     st.Title,
			Font:      r.cfg.TitleFont(st.Genre),
			FontSize:  profile.TitleFontSize,
			FontColor: r.cfg.TitleColor(st.Genre),
			Duration:  st.TitleAudioDuration + 2,
		}
		if err := r.drawTitle(ctx, clip, out); err != nil {
			return fmt.Errorf("title animation: %w", err)
		}
	}

	st.VideoFilePath = out
	st.HasVideo = true
	log.Printf("[render] %s: cover-only video rendered to %s (%.1fs)", st.Title, out, total)
	return nil
}

// concatAudios joins narration tracks into one normalized opus bed.
func concatAudios(ctx context.Context, files []string, outFile string) error {
	args := []string{}
	graph := ""
	for i, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("narration audio: %w", err)
		}
		args = append(args, "-i", f)
		graph += fmt.Sprintf("[%d:a]", i)
	}
	graph += fmt.Sprintf("concat=n=%d:v=0:a=1[outa]", len(files))

	args = append(args,
		"-filter_complex", graph,
		"-map", "[outa]",
		"-c:a", "libopus", "-ar", "48000", "-ac", "2",
		"-y", outFile,
	)
	return media.FFmpeg(ctx, args...)
}

// renderCoverProgram encodes the looping cover visual with captions,
// narration and the music bed in one pass.
func (r *Renderer) renderCoverProgram(ctx context.Context, st *types.Story, narration, assFile, outFile string, total float64, screen types.Size) error {
	bgm := st.BGMFile
	if bgm == "" {
		bgm = r.cfg.BGM(st.Genre)
	}
	fade := r.cfg.Video.AudioFadeOut

	args := []string{}
	var visualFilter string
	if st.CoverVideoFile != "" && fileExists(st.CoverVideoFile) {
		args = append(args, "-stream_loop", "-1", "-i", st.CoverVideoFile)
		visualFilter = motion.PaddingFilter(screen)
	} else {
		args = append(args,
			"-loop", "1",
			"-framerate", fmt.Sprintf("%d", r.cfg.Video.Framerate),
			"-t", fmt.Sprintf("%.4f", total),
			"-i", st.CoverImageFile,
		)
		visualFilter = r.motion.ZoomInFilter(total, screen)
	}

	args = append(args, "-i", narration)
	nextInput := 2
	bgmInput := -1
	if bgm != "" {
		args = append(args, "-stream_loop", "-1", "-i", bgm)
		bgmInput = nextInput
		nextInput++
	}

	graph := fmt.Sprintf("[0:v]%s[v]", visualFilter)
	if st.OverlayFile != "" {
		args = append(args, "-stream_loop", "-1", "-i", st.OverlayFile)
		graph += fmt.Sprintf(";[%d:v]format=yuva444p,colorchannelmixer=aa=0.1[overlay]", nextInput) +
			";[overlay][v]scale2ref[overlay][main]" +
			";[main][overlay]overlay[v]"
	}
	graph += fmt.Sprintf(";[v]ass=%s[video]", escapeFilterPath(assFile))
	if bgmInput >= 0 {
		graph += fmt.Sprintf(
			";[1:a][%d:a]amix=inputs=2:duration=first[mix];[mix]afade=type=out:duration=%g:start_time=%.4f[audio]",
			bgmInput, fade, total-fade)
	} else {
		graph += fmt.Sprintf(
			";[1:a]afade=type=out:duration=%g:start_time=%.4f[audio]",
			fade, total-fade)
	}

	args = append(args,
		"-filter_complex", graph,
		"-map", "[video]", "-map", "[audio]",
		"-t", fmt.Sprintf("%.4f", total),
		"-r", fmt.Sprintf("%d", r.cfg.Video.Framerate),
		"-c:v", "libx264",
		"-c:a", "libopus", "-b:a", "128k",
		"-y", outFile,
	)
	return media.FFmpeg(ctx, args...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
