// Package backend talks to the generative services the pipeline depends
// on: a local media server for speech/image/transcript synthesis, an
// OpenAI-compatible chat endpoint for text work, and a ComfyUI job
// server for scene videos. Every response is shape-validated before use
// and flaky calls are retried a bounded number of times.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

// Client is the media-server client. The server exposes text2image,
// text2speech and speech2text endpoints with base64 payloads.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:     cfg.Backend.MediaServerURL,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.Backend.TimeoutSec) * time.Second},
		maxAttempts: cfg.Backend.MaxAttempts,
	}
}

type dataResponse struct {
	Data string `json:"data"`
}

type transcriptResponse struct {
	Data struct {
		Segments []types.Segment `json:"segments"`
	} `json:"data"`
}

// GenerateImage renders one still image and returns its raw bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	params := url.Values{}
	params.Set("prompt", prompt)
	params.Set("width", strconv.Itoa(width))
	params.Set("height", strconv.Itoa(height))
	params.Set("num_inference_steps", "30")

	var blob []byte
	err := c.withRetry(ctx, "text2image", func() error {
		var resp dataResponse
		if err := c.get(ctx, "/text2image?"+params.Encode(), &resp); err != nil {
			return err
		}
		data, err := decodePayload(resp.Data)
		if err != nil {
			return err
		}
		blob = data
		return nil
	})
	return blob, err
}

// GenerateSpeech synthesizes narration for text in the voice of the
// given speaker sample and returns the audio bytes.
func (c *Client) GenerateSpeech(ctx context.Context, text, speakerVoiceFile string) ([]byte, error) {
	speaker, err := os.ReadFile(speakerVoiceFile)
	if err != nil {
		return nil, fmt.Errorf("read speaker voice: %w", err)
	}
	body := map[string]string{
		"text":               text,
		"speaker_wav_base64": base64.StdEncoding.EncodeToString(speaker),
	}

	var blob []byte
	err = c.withRetry(ctx, "text2speech", func() error {
		var resp dataResponse
		if err := c.post(ctx, "/text2speech", body, &resp); err != nil {
			return err
		}
		data, err := decodePayload(resp.Data)
		if err != nil {
			return err
		}
		blob = data
		return nil
	})
	return blob, err
}

// Transcribe produces word-level transcript segments for an audio file.
func (c *Client) Transcribe(ctx context.Context, audioFile string) ([]types.Segment, error) {
	audio, err := os.ReadFile(audioFile)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	body := map[string]string{
		"speech_audio_base64": base64.StdEncoding.EncodeToString(audio),
	}

	var segments []types.Segment
	err = c.withRetry(ctx, "speech2text", func() error {
		var resp transcriptResponse
		if err := c.post(ctx, "/speech2text", body, &resp); err != nil {
			return err
		}
		if len(resp.Data.Segments) == 0 {
			return fmt.Errorf("transcript has no segments")
		}
		segments = resp.Data.Segments
		return nil
	})
	return segments, err
}

// BatchTranscripts transcribes each file and merges segments into
// windows of at least segmentLength seconds (0 keeps word-per-segment
// granularity intact but still flattens trivial segments).
func (c *Client) BatchTranscripts(ctx context.Context, audioFiles []string, segmentLength float64) ([][]types.Segment, error) {
	transcripts := make([][]types.Segment, len(audioFiles))
	for i, file := range audioFiles {
		segments, err := c.Transcribe(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("transcribe %s: %w", file, err)
		}
		transcripts[i] = MergeSegments(segments, segmentLength)
	}
	return transcripts, nil
}

// FreeResources asks the media server to release accelerator memory.
// Called on shutdown, best-effort.
func (c *Client) FreeResources(ctx context.Context) {
	if err := c.post(ctx, "/free", map[string]string{}, nil); err != nil {
		log.Printf("[backend] free resources: %v", err)
	}
}

// MergeSegments coalesces consecutive transcript segments until each
// merged window spans at least segmentLength seconds, preserving word
// timing.
func MergeSegments(segments []types.Segment, segmentLength float64) []types.Segment {
	var merged []types.Segment
	index := 0
	for index < len(segments) {
		start := index
		index++
		for index < len(segments)-1 && segments[index].End-segments[start].Start < segmentLength {
			index++
		}
		last := index
		if last > len(segments)-1 {
			last = len(segments) - 1
		}

		window := segments[start : last+1]
		out := types.Segment{
			Start: segments[start].Start,
			End:   segments[last].End,
		}
		for _, seg := range window {
			out.Text += seg.Text
			out.Words = append(out.Words, seg.Words...)
		}
		merged = append(merged, out)
		index++
	}
	return merged
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[backend] %s attempt %d failed: %v — retrying...", op, attempt, err)
		select {
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.maxAttempts, err)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodePayload(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, fmt.Errorf("empty data payload")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	if len(data) < 100 {
		return nil, fmt.Errorf("payload too small (%d bytes) — likely an error", len(data))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
