package types

// Size is a pixel width/height pair, shared by story records and config.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Word is one recognized word with timing in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one transcript segment with word-level timing.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// Character is one speaking role extracted from the story text.
type Character struct {
	Name       string `json:"name"`
	Gender     string `json:"gender"`
	Appearance string `json:"appearance"`
	VoiceType  string `json:"voiceType"`
}

// ContentChunk is one narrated unit of the story. Each chunk maps to
// exactly one scene clip in the rendered video.
type ContentChunk struct {
	Content            string    `json:"content"`
	Character          string    `json:"character,omitempty"`
	AudioFile          string    `json:"audioFile,omitempty"`
	AudioDuration      float64   `json:"audioDuration,omitempty"`
	SceneImageFile     string    `json:"sceneImageFile,omitempty"`
	SceneVideoFile     string    `json:"sceneVideoFile,omitempty"`
	SceneImagePrompt   string    `json:"sceneImagePrompt,omitempty"`
	VideoPrompt        string    `json:"videoPrompt,omitempty"`
	RefinedVideoPrompt string    `json:"refinedVideoPrompt,omitempty"`
	Transcript         []Segment `json:"transcript,omitempty"`
	ImageSize          *Size     `json:"imageSize,omitempty"`
	// OverlayFile overrides the story-level overlay when set. An empty
	// string explicitly disables the overlay for this chunk; nil inherits.
	OverlayFile     *string `json:"overlayFile,omitempty"`
	TransitionSound string  `json:"transitionSound,omitempty"`
}

// Story is the persisted record for one video. It is read at the start
// and rewritten at the end of every pipeline stage; file paths inside it
// are the contract between stages.
type Story struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Genre   string `json:"genre,omitempty"`
	Style   string `json:"style,omitempty"`

	Characters    []Character     `json:"characters,omitempty"`
	ContentChunks []*ContentChunk `json:"contentChunks,omitempty"`

	TitleAudio         string  `json:"titleAudio,omitempty"`
	TitleAudioDuration float64 `json:"titleAudioDuration,omitempty"`
	CoverImagePrompt   string  `json:"coverImagePrompt,omitempty"`
	CoverImageFile     string  `json:"coverImageFile,omitempty"`
	CoverVideoFile     string  `json:"coverVideoFile,omitempty"`

	// VideoType is "standard" or "short", derived from the estimated
	// program duration once audio durations are known.
	VideoType string `json:"videoType,omitempty"`

	SkipTitle                   bool `json:"skipTitle,omitempty"`
	EnableVideo                 bool `json:"enableVideo,omitempty"`
	EnableRoles                 bool `json:"enableRoles,omitempty"`
	CoverOnly                   bool `json:"coverOnly,omitempty"`
	EnableVideoPromptRefinement bool `json:"enableVideoPromptRefinement,omitempty"`

	BGMFile         string  `json:"bgmFile,omitempty"`
	OverlayFile     string  `json:"overlayFile,omitempty"`
	TransitionSound string  `json:"transitionSound,omitempty"`
	SpeedFactor     float64 `json:"speedFactor,omitempty"`

	// Stage completion markers. A stage that finds its marker set (or
	// its output files on disk) skips recomputation.
	HasImagePrompts   bool    `json:"hasImagePrompts,omitempty"`
	HasAudios         bool    `json:"hasAudios,omitempty"`
	HasImage          bool    `json:"hasImage,omitempty"`
	HasSceneVideos    bool    `json:"hasSceneVideos,omitempty"`
	HasTranscripts    bool    `json:"hasTranscripts,omitempty"`
	EstimatedDuration float64 `json:"estimatedDuration,omitempty"`

	VideoFilePath string `json:"videoFilePath,omitempty"`
	HasVideo      bool   `json:"hasVideo,omitempty"`
}

// StoryLine is one narrative or dialog line attributed to a character,
// produced when a story is split with roles enabled.
type StoryLine struct {
	Type      string `json:"type"` // narrative | dialog
	Content   string `json:"content"`
	Character string `json:"character,omitempty"`
}
