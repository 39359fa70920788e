package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"story-video-pipeline/types"
)

type Config struct {
	Video    VideoConfig              `yaml:"video"`
	Profiles map[string]VideoProfile  `yaml:"profiles"`
	Render   RenderConfig             `yaml:"render"`
	Backend  BackendConfig            `yaml:"backend"`
	Voices   VoicesConfig             `yaml:"voices"`
	Genres   GenresConfig             `yaml:"genres"`
	Upload   UploadConfig             `yaml:"upload"`
	Paths    PathsConfig              `yaml:"paths"`
}

// VideoConfig holds the timing and motion constants shared by every clip.
type VideoConfig struct {
	Framerate          int     `yaml:"framerate"`
	ClipGappingTime    float64 `yaml:"clip_gapping_time"`
	TransitionDuration float64 `yaml:"transition_duration"`
	AudioFadeOut       float64 `yaml:"audio_fade_out"`
	PixelPerSecond     float64 `yaml:"pixel_per_second"`
	ScaleFactor        float64 `yaml:"scale_factor"`
	ZoomInRate         float64 `yaml:"zoom_in_rate"`
	MaxZoom            float64 `yaml:"max_zoom"`
	ShortMaxDuration   float64 `yaml:"short_max_duration"`
}

// VideoProfile describes one video type (standard or short): output
// geometry plus subtitle layout.
type VideoProfile struct {
	ScreenSize       types.Size `yaml:"screen_size"`
	ImageSize        types.Size `yaml:"image_size"`
	SubtitleFontSize int        `yaml:"subtitle_font_size"`
	SubtitleMarginV  int        `yaml:"subtitle_margin_v"`
	LineWordLimit    int        `yaml:"line_word_limit"`
	TitleFontSize    int        `yaml:"title_font_size"`
}

type RenderConfig struct {
	// Encoder slot limits, one entry per hardware device. Clip rendering
	// and chunk rendering have different per-job cost, so each phase gets
	// its own capacity profile.
	ClipPoolLimits  []int `yaml:"clip_pool_limits"`
	ChunkPoolLimits []int `yaml:"chunk_pool_limits"`
	ChunkSplitLimit int   `yaml:"chunk_split_limit"`
}

type BackendConfig struct {
	MediaServerURL     string         `yaml:"media_server_url"`
	ChatURL            string         `yaml:"chat_url"`
	ChatModel          string         `yaml:"chat_model"`
	ComfyServerAddress string         `yaml:"comfy_server_address"`
	VideoWorkflow      WorkflowConfig `yaml:"video_workflow"`
	MaxAttempts        int            `yaml:"max_attempts"`
	TimeoutSec         int            `yaml:"timeout_sec"`
}

// WorkflowConfig points at an external workflow template and names the
// nodes the pipeline fills in. The template itself is a versioned
// artifact; the core never branches on its contents.
type WorkflowConfig struct {
	Template string          `yaml:"template"`
	Prompt   WorkflowBinding `yaml:"prompt"`
	Image    WorkflowBinding `yaml:"image"`
	Seed     WorkflowBinding `yaml:"seed"`
}

type WorkflowBinding struct {
	Node  string `yaml:"node"`
	Input string `yaml:"input"`
}

type VoicesConfig struct {
	Narrator      string   `yaml:"narrator"`
	Male          []string `yaml:"male"`
	Female        []string `yaml:"female"`
	SegmentLength float64  `yaml:"segment_length"`
}

type GenresConfig struct {
	BGM         map[string]string `yaml:"bgm"`
	TitleFonts  map[string]string `yaml:"title_fonts"`
	TitleColors map[string]string `yaml:"title_colors"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	DefaultLanguage   string `yaml:"default_language"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
}

type PathsConfig struct {
	Stories   string `yaml:"stories"`
	StoryList string `yaml:"story_list"`
	Resources string `yaml:"resources"`
	TitleFont string `yaml:"title_font"`
}

// Load reads config.yaml and applies defaults for every unset field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every field at its documented default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	v := &c.Video
	if v.Framerate == 0 {
		v.Framerate = 30
	}
	if v.ClipGappingTime == 0 {
		v.ClipGappingTime = 0.3
	}
	if v.TransitionDuration == 0 {
		v.TransitionDuration = 0.5
	}
	if v.AudioFadeOut == 0 {
		v.AudioFadeOut = 1.0
	}
	if v.PixelPerSecond == 0 {
		v.PixelPerSecond = 60
	}
	if v.ScaleFactor == 0 {
		v.ScaleFactor = 1.1
	}
	if v.ZoomInRate == 0 {
		v.ZoomInRate = 0.0005
	}
	if v.MaxZoom == 0 {
		v.MaxZoom = 1.5
	}
	if v.ShortMaxDuration == 0 {
		v.ShortMaxDuration = 60
	}

	if c.Profiles == nil {
		c.Profiles = map[string]VideoProfile{}
	}
	if _, ok := c.Profiles["standard"]; !ok {
		c.Profiles["standard"] = VideoProfile{
			ScreenSize:       types.Size{Width: 1024, Height: 768},
			ImageSize:        types.Size{Width: 1360, Height: 768},
			SubtitleFontSize: 40,
			SubtitleMarginV:  40,
			LineWordLimit:    10,
			TitleFontSize:    50,
		}
	}
	if _, ok := c.Profiles["short"]; !ok {
		c.Profiles["short"] = VideoProfile{
			ScreenSize:       types.Size{Width: 768, Height: 1360},
			ImageSize:        types.Size{Width: 768, Height: 1360},
			SubtitleFontSize: 60,
			SubtitleMarginV:  250,
			LineWordLimit:    1,
			TitleFontSize:    50,
		}
	}

	r := &c.Render
	if len(r.ClipPoolLimits) == 0 {
		r.ClipPoolLimits = []int{3, 3}
	}
	if len(r.ChunkPoolLimits) == 0 {
		r.ChunkPoolLimits = []int{2, 2}
	}
	if r.ChunkSplitLimit == 0 {
		r.ChunkSplitLimit = 30
	}

	b := &c.Backend
	if b.MediaServerURL == "" {
		b.MediaServerURL = "http://localhost:8080"
	}
	if b.ChatURL == "" {
		b.ChatURL = "https://api.openai.com/v1/chat/completions"
	}
	if b.ChatModel == "" {
		b.ChatModel = "gpt-4o"
	}
	if b.ComfyServerAddress == "" {
		b.ComfyServerAddress = "localhost:8188"
	}
	if b.MaxAttempts == 0 {
		b.MaxAttempts = 3
	}
	if b.TimeoutSec == 0 {
		b.TimeoutSec = 300
	}

	if c.Voices.Narrator == "" {
		c.Voices.Narrator = "./speakers/narrator.mp3"
	}
	if c.Voices.SegmentLength == 0 {
		c.Voices.SegmentLength = 10
	}

	if c.Genres.BGM == nil {
		c.Genres.BGM = map[string]string{
			"default": "./resources/bgm/sunset_landscape.mp3",
		}
	}
	if c.Genres.TitleColors == nil {
		c.Genres.TitleColors = map[string]string{"default": "#FFFF00"}
	}
	if c.Genres.TitleFonts == nil {
		c.Genres.TitleFonts = map[string]string{"default": "./resources/fonts/Comfortaa_Bold.ttf"}
	}

	if c.Upload.Visibility == "" {
		c.Upload.Visibility = "private"
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "24"
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = "en"
	}

	if c.Paths.Stories == "" {
		c.Paths.Stories = "videos"
	}
	if c.Paths.StoryList == "" {
		c.Paths.StoryList = "stories.json"
	}
	if c.Paths.Resources == "" {
		c.Paths.Resources = "resources"
	}
}

// Profile returns the profile for a video type, falling back to standard.
func (c *Config) Profile(videoType string) VideoProfile {
	if p, ok := c.Profiles[videoType]; ok {
		return p
	}
	return c.Profiles["standard"]
}

// BGM resolves the background music track for a genre.
func (c *Config) BGM(genre string) string {
	if f, ok := c.Genres.BGM[genre]; ok {
		return f
	}
	return c.Genres.BGM["default"]
}

// TitleFont resolves the title font file for a genre.
func (c *Config) TitleFont(genre string) string {
	if f, ok := c.Genres.TitleFonts[genre]; ok {
		return f
	}
	return c.Genres.TitleFonts["default"]
}

// TitleColor resolves the title font color for a genre.
func (c *Config) TitleColor(genre string) string {
	if f, ok := c.Genres.TitleColors[genre]; ok {
		return f
	}
	return c.Genres.TitleColors["default"]
}
