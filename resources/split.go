package resources

import (
	"fmt"
	"strings"
)

const (
	// chunkTokenLimit is the target word count of one narrated chunk.
	chunkTokenLimit = 20
	// chunkMaxTokens caps a single chunk; a sentence this long cannot be
	// narrated as one breath and points at broken input.
	chunkMaxTokens = 200

	// hardBreak always starts a new chunk, whatever the word budget says.
	hardBreak = "***"
)

var sentenceEnders = []string{".", "?", "!", ";"}

// SplitLongText breaks a story text into narration-sized chunks. The
// text is first split at hard breaks, then at sentence boundaries;
// sentences are packed greedily up to tokenLimit words per chunk.
// Sentence boundaries are never crossed, so a chunk may exceed the
// limit when a single sentence does.
func SplitLongText(text string, tokenLimit, maxTokens int) ([]string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\n", ". ")

	var chunks []string
	for _, part := range strings.Split(text, hardBreak) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		packed, err := packSentences(splitSentences(part), tokenLimit, maxTokens)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, packed...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("text has no content to split")
	}
	return chunks, nil
}

// splitSentences cuts the text after each sentence ender, keeping the
// ender with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		for _, ender := range sentenceEnders {
			if string(r) == ender {
				if s := strings.TrimSpace(sb.String()); s != "" && s != ender {
					sentences = append(sentences, s)
				}
				sb.Reset()
				break
			}
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func packSentences(sentences []string, tokenLimit, maxTokens int) ([]string, error) {
	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentTokens = 0
		}
	}

	for _, sentence := range sentences {
		tokens := len(strings.Fields(sentence))
		if tokens > maxTokens {
			return nil, fmt.Errorf("sentence exceeds %d words: %q", maxTokens, truncateText(sentence, 80))
		}
		if currentTokens > 0 && currentTokens+tokens > tokenLimit {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	flush()
	return chunks, nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
