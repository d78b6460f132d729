package service

import (
	"regexp"
	"strings"
	"unicode"
)

var markdownRules = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`#{1,6}\s*`), ""},
	{regexp.MustCompile(`\*\*`), ""},
	{regexp.MustCompile(`\*`), ""},
	{regexp.MustCompile(`-{2,}`), ""},
	{regexp.MustCompile("`+"), ""},
	{regexp.MustCompile(`\b\d+\.\s+`), ""},
	{regexp.MustCompile(`\s+`), " "},
}

// CleanAIText strips markdown markup and collapses whitespace so a reply reads as plain chat.
func CleanAIText(text string) string {
	for _, rule := range markdownRules {
		text = rule.re.ReplaceAllString(text, rule.with)
	}
	return strings.TrimSpace(text)
}

// ChunkIntoMessages groups sentences into bubbles of min to max sentences. The final
// bubble may be shorter when fewer than min sentences remain.
func ChunkIntoMessages(text string, min, max int) []string {
	sentences := splitSentences(text)

	var chunks []string
	for i := 0; i < len(sentences); {
		size := sentenceGroupSize(len(sentences)-i, min, max)
		end := i + size
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		i = end
	}
	return chunks
}

func sentenceGroupSize(remaining, min, max int) int {
	size := remaining
	if size < min {
		size = min
	}
	if size > max {
		size = max
	}
	if size < 1 {
		size = 1
	}
	return size
}

// splitSentences breaks after '.', '!' or '?' when whitespace follows.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) || i == 0 {
			continue
		}
		switch runes[i-1] {
		case '.', '!', '?':
		default:
			continue
		}
		if s := string(runes[start:i]); s != "" {
			out = append(out, s)
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start = i
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
