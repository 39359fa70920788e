// Package media wraps the external command-line tools the pipeline
// shells out to: ffmpeg/ffprobe for encoding and metadata, plus the
// temp-JSON protocol used by helper scripts.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FFmpeg runs one ffmpeg invocation. stderr is captured so a failed
// render reports the tool's own diagnostics.
func FFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", append([]string{"-hide_banner"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", strings.Join(args, " "), err, tail(stderr.String(), 800))
	}
	return nil
}

// AudioDuration probes an audio file's duration in seconds. A missing
// file is reported as such rather than as an opaque probe failure.
func AudioDuration(file string) (float64, error) {
	return probeDuration(file)
}

// VideoDuration probes a video file's duration in seconds.
func VideoDuration(file string) (float64, error) {
	return probeDuration(file)
}

func probeDuration(file string) (float64, error) {
	if _, err := os.Stat(file); err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", file, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration of %s: %w", file, err)
	}
	return dur, nil
}

// RunHelper invokes an external helper script with the temp-JSON
// protocol: the input payload is written to a temp file whose path is
// passed as the first argument, and the helper may write a result JSON
// to the path passed as the second. The decoded result is stored into
// out when out is non-nil and the helper produced one.
func RunHelper(ctx context.Context, command []string, input any, out any) error {
	if err := os.MkdirAll("temp", 0755); err != nil {
		return err
	}
	inPath := filepath.Join("temp", fmt.Sprintf("helper_%s_in.json", uuid.NewString()[:8]))
	outPath := filepath.Join("temp", fmt.Sprintf("helper_%s_out.json", uuid.NewString()[:8]))
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal helper input: %w", err)
	}
	if err := os.WriteFile(inPath, data, 0644); err != nil {
		return err
	}

	args := append(append([]string{}, command[1:]...), inPath, outPath)
	cmd := exec.CommandContext(ctx, command[0], args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("helper %s: %w: %s", command[0], err, tail(stderr.String(), 400))
	}

	if out != nil {
		data, err := os.ReadFile(outPath)
		if err != nil {
			return fmt.Errorf("helper %s produced no output: %w", command[0], err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode helper output: %w", err)
		}
	}
	return nil
}

// CopyFile replaces dst with a copy of src.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
