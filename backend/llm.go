package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

// ChatClient calls an OpenAI-compatible chat-completions endpoint for
// the text stages: character extraction, dialog attribution, scene
// prompt writing and video prompt refinement.
type ChatClient struct {
	url         string
	model       string
	httpClient  *http.Client
	maxAttempts int
}

func NewChatClient(cfg *config.Config) *ChatClient {
	return &ChatClient{
		url:         cfg.Backend.ChatURL,
		model:       cfg.Backend.ChatModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		maxAttempts: cfg.Backend.MaxAttempts,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one chat exchange and returns the raw reply text.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// ExtractCharacters pulls the character list out of a story text.
func (c *ChatClient) ExtractCharacters(ctx context.Context, content string) ([]types.Character, error) {
	system := `I will give you a story.
I want you to extract all characters from the story into a json in the format of [{"name", "gender", "appearance", "voiceType"}].
For gender, appearance and voiceType, please use your best knowledge. You can make them up if not specified in the story.`
	user := fmt.Sprintf(`Extract all characters from the following story into a json array of {"name", "gender", "appearance", "voiceType"} objects.
story: %s

Please only output the raw json and don't include any additional messaging and formatting.`, content)

	var characters []types.Character
	err := c.retryJSON(ctx, "extract characters", system, user, &characters, func() error {
		if len(characters) == 0 {
			return fmt.Errorf("no characters returned")
		}
		return nil
	})
	return characters, err
}

// SplitByCharacter separates a story into narrative and dialog lines in
// temporal order, attributing each dialog line to its speaker.
func (c *ChatClient) SplitByCharacter(ctx context.Context, content string, characters []types.Character) ([]types.StoryLine, error) {
	charJSON, err := json.Marshal(characters)
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(`Below are the characters in a story: %s in json format.
I will give you a story. Separate narrative from dialogs; for a dialog also identify the character who speaks it.
Put all narratives and dialogs in temporal order in a json array of {"type": "narrative"|"dialog", "content", "character"} objects.
Please strictly distinguish narratives and dialogs.`, charJSON)
	user := fmt.Sprintf(`Now, for the following story, separate narrative from dialogs and attribute speakers, in temporal order.
story: %s

Please only output the raw json and don't include any additional messaging and formatting.`, content)

	var lines []types.StoryLine
	err = c.retryJSON(ctx, "split by character", system, user, &lines, func() error {
		if len(lines) == 0 {
			return fmt.Errorf("no story lines returned")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mergeConsecutiveLines(lines), nil
}

// ScenePrompts writes one image prompt per scene description. The
// response must contain exactly one prompt per requested scene; a
// mismatched count is a shape failure and is retried.
func (c *ChatClient) ScenePrompts(ctx context.Context, title string, descriptions []string, genre, style string) ([]string, error) {
	system := fmt.Sprintf(`You are an expert on writing Stable Diffusion prompts to generate images for %s stories titled %q.
Below is the whole story: %s
We follow the formula: An image of [adjective] [subject] [doing action] [details].
All prompts need to suggest %s styles rendered as %s.`,
		genre, title, strings.Join(descriptions, " "), genre, style)
	user := fmt.Sprintf(`Write one Stable Diffusion prompt per scene for the %d scenes below, following the formula and the story context.
Scenes: %s

Please only output a raw json array of %d prompt strings and don't include anything else.`,
		len(descriptions), mustJSON(descriptions), len(descriptions))

	var prompts []string
	err := c.retryJSON(ctx, "scene prompts", system, user, &prompts, func() error {
		if len(prompts) != len(descriptions) {
			return fmt.Errorf("got %d prompts for %d scenes", len(prompts), len(descriptions))
		}
		return nil
	})
	return prompts, err
}

// CoverPrompt writes the image prompt for the story's cover art.
func (c *ChatClient) CoverPrompt(ctx context.Context, title, content, genre, style string) (string, error) {
	system := fmt.Sprintf(`You are an expert on writing Stable Diffusion prompts to generate cover images for %s stories.
We follow the formula: An image of [adjective] [subject] [doing action] [details].
The prompt needs to suggest %s styles rendered as %s.`, genre, genre, style)
	user := fmt.Sprintf(`Write one Stable Diffusion prompt for the cover image of the story titled %q.
story: %s

Please only output the raw prompt text and don't include anything else.`, title, content)

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reply string
		reply, err = c.Complete(ctx, system, user)
		if err == nil && strings.TrimSpace(reply) != "" {
			return strings.TrimSpace(cleanJSON(reply)), nil
		}
		if err == nil {
			err = fmt.Errorf("empty cover prompt")
		}
		log.Printf("[backend] cover prompt attempt %d failed: %v", attempt, err)
	}
	return "", fmt.Errorf("cover prompt after %d attempts: %w", c.maxAttempts, err)
}

// RefineVideoPrompt rewrites a scene's image prompt into a motion-aware
// video prompt. Failures propagate after the bounded retries; refinement
// is never silently skipped.
func (c *ChatClient) RefineVideoPrompt(ctx context.Context, prompt, sceneContent string) (string, error) {
	system := `You rewrite image generation prompts into image-to-video prompts.
Keep the subject and setting, add one subtle camera or subject motion that fits the scene.
Respond with the refined prompt in plain text only.`
	user := fmt.Sprintf("Scene: %s\nImage prompt: %s", sceneContent, prompt)

	var refined string
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		refined, err = c.Complete(ctx, system, user)
		if err == nil && strings.TrimSpace(refined) != "" {
			return strings.TrimSpace(refined), nil
		}
		if err == nil {
			err = fmt.Errorf("empty refinement")
		}
		log.Printf("[backend] refine video prompt attempt %d failed: %v", attempt, err)
	}
	return "", fmt.Errorf("refine video prompt after %d attempts: %w", c.maxAttempts, err)
}

// retryJSON completes the exchange, strips markdown fences, decodes into
// out and applies the shape check, retrying a bounded number of times.
func (c *ChatClient) retryJSON(ctx context.Context, op, system, user string, out any, validate func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reply string
		reply, err = c.Complete(ctx, system, user)
		if err == nil {
			if err = json.Unmarshal([]byte(cleanJSON(reply)), out); err == nil {
				if err = validate(); err == nil {
					return nil
				}
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[backend] %s attempt %d failed: %v — retrying...", op, attempt, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.maxAttempts, err)
}

// mergeConsecutiveLines joins adjacent lines spoken by the same
// character so each clip carries a full beat of dialog.
func mergeConsecutiveLines(lines []types.StoryLine) []types.StoryLine {
	var merged []types.StoryLine
	for _, line := range lines {
		if len(merged) > 0 && merged[len(merged)-1].Character == line.Character {
			merged[len(merged)-1].Content += "\n" + line.Content
			continue
		}
		merged = append(merged, line)
	}
	return merged
}

// cleanJSON strips markdown fences when the model wraps its reply in
// ```json ... ```.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
