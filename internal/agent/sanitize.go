// Package agent — response sanitization pipeline.
package agent

import (
	"regexp"
	"strings"
)

// mobileWordCap is the soft word limit from spec.md §4.7 step 6.
const mobileWordCap = 50

// thinkingTagPatterns strips reasoning/thinking segments some models emit
// inline instead of as a separate reasoning channel. Go regexp doesn't
// support backreferences, so each tag gets its own pattern.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
	regexp.MustCompile(`(?is)<antThinking>.*?</antThinking>`),
	regexp.MustCompile(`(?is)<antthinking>.*?</antthinking>`),
}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

// SanitizeReply strips thinking tags, collapses whitespace, and enforces
// the mobile word cap (spec.md §4.7 step 6).
func SanitizeReply(content string) string {
	if content == "" {
		return content
	}

	result := stripThinkingTags(content)
	result = whitespaceRun.ReplaceAllString(result, " ")
	result = blankLineRun.ReplaceAllString(result, "\n\n")
	result = strings.TrimSpace(result)

	return truncateWords(result, mobileWordCap)
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") &&
		!strings.Contains(lower, "<antthinking") {
		return content
	}
	result := content
	for _, pat := range thinkingTagPatterns {
		result = pat.ReplaceAllString(result, "")
	}
	return strings.TrimSpace(result)
}

func truncateWords(content string, limit int) string {
	words := strings.Fields(content)
	if len(words) <= limit {
		return content
	}
	return strings.Join(words[:limit], " ") + "…"
}
