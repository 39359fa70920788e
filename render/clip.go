package render

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"story-video-pipeline/media"
	"story-video-pipeline/motion"
	"story-video-pipeline/timeline"
	"story-video-pipeline/types"
)

// titleJob is the payload handed to the moving-text helper script, which
// draws the animated title over an already rendered clip.
type titleJob struct {
	VideoFile string  `json:"videoFile"`
	Title     string  `json:"title"`
	Font      string  `json:"font"`
	FontSize  int     `json:"fontSize"`
	FontColor string  `json:"fontColor"`
	Duration  float64 `json:"duration"`
	Framerate int     `json:"framerate"`
	OutFile   string  `json:"outFile"`
}

// renderClip encodes one timeline clip into a standalone video file with
// its narration track. slot is the encoder slot the scheduler granted;
// it only affects scheduling and logging since the x264 encode runs on
// CPU either way.
func (r *Renderer) renderClip(ctx context.Context, clip *timeline.ClipConfig, screen types.Size, outFile string, slot int) error {
	imageSize := screen
	if clip.ImageSize != nil {
		imageSize = *clip.ImageSize
	}

	args := []string{}
	var visualFilter string

	if clip.Image.EnableVideo {
		origDuration, err := media.VideoDuration(clip.Image.FilePath)
		if err != nil {
			return fmt.Errorf("scene video: %w", err)
		}
		args = append(args, "-i", clip.Image.FilePath)

		// A generated scene video rarely matches the narration length.
		// A longer source is trimmed; a shorter one is slowed down to
		// cover the clip instead of freezing on the last frame.
		if origDuration >= clip.Duration {
			visualFilter = fmt.Sprintf("trim=duration=%.4f,setpts=PTS-STARTPTS,", clip.Duration)
		} else {
			visualFilter = fmt.Sprintf("setpts=PTS*%.4f,", clip.Duration/origDuration)
		}
		visualFilter += motion.PaddingFilter(screen)
	} else {
		args = append(args,
			"-loop", "1",
			"-framerate", fmt.Sprintf("%d", r.cfg.Video.Framerate),
			"-t", fmt.Sprintf("%.4f", clip.Duration),
			"-i", clip.Image.FilePath,
		)
		switch clip.Effect {
		case timeline.EffectMovingCrop:
			visualFilter = r.motion.MovingCropFilter(clip.Duration, screen, imageSize)
		case timeline.EffectZoomIn:
			visualFilter = r.motion.ZoomInFilter(clip.Duration, screen)
		default:
			visualFilter = motion.PaddingFilter(screen)
		}
	}

	args = append(args, "-i", clip.Audio.FilePath)

	graph := fmt.Sprintf("[0:v]%s[v]", visualFilter)
	if clip.OverlayFile != "" {
		args = append(args, "-stream_loop", "-1", "-i", clip.OverlayFile)
		graph += ";[2:v]format=yuva444p,colorchannelmixer=aa=0.1[overlay]" +
			";[overlay][v]scale2ref[overlay][main]" +
			";[main][overlay]overlay[v]"
	}

	args = append(args,
		"-filter_complex", graph,
		"-map", "[v]", "-map", "1:a",
		"-t", fmt.Sprintf("%.4f", clip.Duration),
		"-r", fmt.Sprintf("%d", r.cfg.Video.Framerate),
		"-c:v", "libx264",
		"-c:a", "libopus", "-b:a", "128k",
		"-y", outFile,
	)

	log.Printf("[render] slot %d: encoding clip %s", slot, filepath.Base(outFile))
	if err := media.FFmpeg(ctx, args...); err != nil {
		return err
	}

	if clip.Title != "" {
		if err := r.drawTitle(ctx, clip, outFile); err != nil {
			return fmt.Errorf("title animation: %w", err)
		}
	}

	clip.VideoFilePath = outFile
	return nil
}

// drawTitle runs the moving-text helper over the rendered clip and
// replaces the clip file with the titled result.
func (r *Renderer) drawTitle(ctx context.Context, clip *timeline.ClipConfig, clipFile string) error {
	titled := clipFile + ".titled.mkv"
	job := titleJob{
		VideoFile: clipFile,
		Title:     clip.Title,
		Font:      clip.Font,
		FontSize:  clip.FontSize,
		FontColor: clip.FontColor,
		Duration:  clip.Duration,
		Framerate: r.cfg.Video.Framerate,
		OutFile:   titled,
	}
	if err := media.RunHelper(ctx, []string{"python", filepath.Join("scripts", "moving_text.py")}, job, nil); err != nil {
		return err
	}
	return media.CopyFile(titled, clipFile)
}
