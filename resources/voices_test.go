package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

func testVoices() config.VoicesConfig {
	return config.VoicesConfig{
		Narrator: "narrator.mp3",
		Male:     []string{"male_1.mp3", "male_2.mp3"},
		Female:   []string{"female_1.mp3"},
	}
}

func TestAssignVoicesByGenderInOrder(t *testing.T) {
	characters := []types.Character{
		{Name: "Arthur", Gender: "male"},
		{Name: "Mira", Gender: "female"},
		{Name: "Bren", Gender: "male"},
	}

	assigned, err := AssignVoices(characters, testVoices())
	require.NoError(t, err)
	assert.Equal(t, "male_1.mp3", assigned["Arthur"])
	assert.Equal(t, "female_1.mp3", assigned["Mira"])
	assert.Equal(t, "male_2.mp3", assigned["Bren"])
}

func TestAssignVoicesTooManyCharacters(t *testing.T) {
	characters := []types.Character{
		{Name: "Mira", Gender: "female"},
		{Name: "Sela", Gender: "Female"},
	}

	_, err := AssignVoices(characters, testVoices())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "female characters")
}

func TestAssignVoicesDuplicateCharacter(t *testing.T) {
	characters := []types.Character{
		{Name: "Arthur", Gender: "male"},
		{Name: "Arthur", Gender: "male"},
	}

	assigned, err := AssignVoices(characters, testVoices())
	require.NoError(t, err)
	assert.Len(t, assigned, 1)
}

func TestVoiceForNarrativeAndUnknown(t *testing.T) {
	voices := testVoices()
	assigned := map[string]string{"Arthur": "male_1.mp3"}

	assert.Equal(t, "narrator.mp3", voiceFor(&types.ContentChunk{}, assigned, voices))
	assert.Equal(t, "male_1.mp3", voiceFor(&types.ContentChunk{Character: "Arthur"}, assigned, voices))
	assert.Equal(t, "narrator.mp3", voiceFor(&types.ContentChunk{Character: "Ghost"}, assigned, voices))
}
