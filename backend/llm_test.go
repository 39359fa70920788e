package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-video-pipeline/types"
)

func chatServer(t *testing.T, replies []string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		reply := replies[len(replies)-1]
		if int(n) <= len(replies) {
			reply = replies[n-1]
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testChatClient(url string) *ChatClient {
	return &ChatClient{
		url:         url,
		model:       "test-model",
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		maxAttempts: 3,
	}
}

func TestScenePromptsCountMismatchRetries(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	srv, calls := chatServer(t, []string{
		`["only one prompt"]`,
		"```json\n[\"prompt one\", \"prompt two\"]\n```",
	})
	c := testChatClient(srv.URL)

	prompts, err := c.ScenePrompts(context.Background(), "Title", []string{"scene a", "scene b"}, "horror", "oil painting")
	require.NoError(t, err)
	assert.Equal(t, []string{"prompt one", "prompt two"}, prompts)
	// The undersized reply must have cost one retry.
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestScenePromptsGivesUpAfterMaxAttempts(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	srv, calls := chatServer(t, []string{"not json at all"})
	c := testChatClient(srv.URL)

	_, err := c.ScenePrompts(context.Background(), "Title", []string{"scene a"}, "horror", "oil painting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestExtractCharactersStripsFences(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	srv, _ := chatServer(t, []string{
		"```json\n[{\"name\":\"Mira\",\"gender\":\"female\",\"appearance\":\"tall\",\"voiceType\":\"soft\"}]\n```",
	})
	c := testChatClient(srv.URL)

	characters, err := c.ExtractCharacters(context.Background(), "a story about Mira")
	require.NoError(t, err)
	require.Len(t, characters, 1)
	assert.Equal(t, "Mira", characters[0].Name)
	assert.Equal(t, "female", characters[0].Gender)
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c := testChatClient("http://localhost:1")

	_, err := c.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "quota exceeded"},
		})
	}))
	defer srv.Close()
	c := testChatClient(srv.URL)

	_, err := c.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestMergeConsecutiveLines(t *testing.T) {
	lines := []types.StoryLine{
		{Type: "narrative", Content: "The night was cold."},
		{Type: "narrative", Content: "Rain fell."},
		{Type: "dialog", Content: "Who's there?", Character: "Mira"},
		{Type: "dialog", Content: "Show yourself!", Character: "Mira"},
		{Type: "dialog", Content: "Only me.", Character: "Arthur"},
	}

	merged := mergeConsecutiveLines(lines)
	require.Len(t, merged, 3)
	assert.Equal(t, "The night was cold.\nRain fell.", merged[0].Content)
	assert.Equal(t, "Who's there?\nShow yourself!", merged[1].Content)
	assert.Equal(t, "Mira", merged[1].Character)
	assert.Equal(t, "Only me.", merged[2].Content)
}
