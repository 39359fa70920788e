// Package subtitle turns word-level transcript timing into karaoke-style
// ASS captions: words grouped into lines, one cue per word with the
// active word highlighted, plus a style header driven by the video-type
// profile.
package subtitle

import (
	"fmt"
	"os"
	"strings"

	"story-video-pipeline/types"
)

// Profile carries the layout knobs that differ between video types.
type Profile struct {
	FontSize  int
	MarginV   int
	WordLimit int
	Screen    types.Size
}

// Cue is one rendered dialogue event.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

const (
	highlightOn  = `{\c&H00FFFF&}`
	highlightOff = `{\c&HFFFFFF&}`
)

// GroupWords partitions words into lines of at most limit words. Lines
// are balanced: the word count is spread evenly over ceil(n/limit)
// lines so the last line is never a one-word remnant.
func GroupWords(words []types.Word, limit int) [][]types.Word {
	if len(words) == 0 || limit <= 0 {
		return nil
	}
	lineCount := (len(words) + limit - 1) / limit
	lineSize := (len(words) + lineCount - 1) / lineCount

	var lines [][]types.Word
	for start := 0; start < len(words); start += lineSize {
		end := start + lineSize
		if end > len(words) {
			end = len(words)
		}
		lines = append(lines, words[start:end])
	}
	return lines
}

// Cues builds one cue per word. A word's window ends at the next word's
// start so there is no visible gap inside a line; the very last word
// keeps its own recognized end. Within the cue text the active word is
// wrapped in a highlight color override.
func Cues(words []types.Word, limit int) []Cue {
	ends := make([]float64, len(words))
	for i := range words {
		if i < len(words)-1 {
			ends[i] = words[i+1].Start
		} else {
			ends[i] = words[i].End
		}
	}

	var cues []Cue
	index := 0
	for _, line := range GroupWords(words, limit) {
		for pos := range line {
			var sb strings.Builder
			for j, w := range line {
				if j == pos {
					sb.WriteString(highlightOn)
					sb.WriteString(w.Word)
					sb.WriteString(highlightOff)
				} else {
					sb.WriteString(w.Word)
				}
			}
			cues = append(cues, Cue{
				Start: words[index].Start,
				End:   ends[index],
				Text:  sb.String(),
			})
			index++
		}
	}
	return cues
}

// WriteASS serializes the cues plus a profile-driven style header into
// an ASS subtitle file consumed by the ffmpeg ass filter.
func WriteASS(words []types.Word, path string, p Profile) error {
	var sb strings.Builder
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("YCbCr Matrix: None\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", p.Screen.Width)
	fmt.Fprintf(&sb, "PlayResY: %d\n\n", p.Screen.Height)

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Default,Arial,%d,&H00FFFFFF,&H00FFFFFF,&HBB999999,&HAA777777,0,0,0,0,100,100,0,0,1,10,2,2,10,10,%d,1\n\n",
		p.FontSize, p.MarginV)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, cue := range Cues(words, p.WordLimit) {
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			Timestamp(cue.Start), Timestamp(cue.End), cue.Text)
	}

	return os.WriteFile(path, []byte(sb.String()), 0644)
}

// Timestamp renders seconds as the H:MM:SS.cc form ASS expects.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int(seconds*100 + 0.5)
	h := centis / 360000
	m := centis / 6000 % 60
	s := centis / 100 % 60
	cs := centis % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
