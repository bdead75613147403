package cleaner

import (
	"fmt"
	"unicode/utf8"
)

// charsPerToken is the divisor behind EstimateTokens.
const charsPerToken = 3

// EstimateTokens provides a fast token count estimate without importing tiktoken.
//
// Heuristic: utf8 rune count / 3.
//
//   - English text averages ~4 chars/token, CJK text averages ~1.5 chars/token.
//   - Dividing by 3 is a middle ground for mixed-language content and
//     slightly over-estimates, so truncation errs on the short side.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / charsPerToken
	if est < 1 {
		return 1
	}
	return est
}

// Truncate cuts text to roughly maxTokens and appends a marker saying how
// much was dropped. maxTokens <= 0 disables truncation.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	total := EstimateTokens(text)
	if total <= maxTokens {
		return text
	}
	runes := []rune(text)
	limit := maxTokens * charsPerToken
	if limit > len(runes) {
		limit = len(runes)
	}
	return string(runes[:limit]) +
		fmt.Sprintf("\n\n[Content truncated: showing ~%d of ~%d tokens]", maxTokens, total)
}
