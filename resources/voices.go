package resources

import (
	"fmt"
	"strings"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

// AssignVoices maps each character to a speaker voice sample. Narrative
// lines use the narrator voice; characters draw from the gendered voice
// lists in order of appearance. Running out of distinct voices for a
// gender is an error rather than a silent reuse.
func AssignVoices(characters []types.Character, voices config.VoicesConfig) (map[string]string, error) {
	assigned := map[string]string{}
	maleNext, femaleNext := 0, 0

	for _, ch := range characters {
		if _, ok := assigned[ch.Name]; ok {
			continue
		}
		switch strings.ToLower(ch.Gender) {
		case "female":
			if femaleNext >= len(voices.Female) {
				return nil, fmt.Errorf("story has more female characters than voices (%d)", len(voices.Female))
			}
			assigned[ch.Name] = voices.Female[femaleNext]
			femaleNext++
		default:
			if maleNext >= len(voices.Male) {
				return nil, fmt.Errorf("story has more male characters than voices (%d)", len(voices.Male))
			}
			assigned[ch.Name] = voices.Male[maleNext]
			maleNext++
		}
	}
	return assigned, nil
}

// voiceFor resolves the speaker sample for one chunk.
func voiceFor(chunk *types.ContentChunk, assigned map[string]string, voices config.VoicesConfig) string {
	if chunk.Character == "" {
		return voices.Narrator
	}
	if v, ok := assigned[chunk.Character]; ok {
		return v
	}
	return voices.Narrator
}
