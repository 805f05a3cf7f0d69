// Package token estimates token counts for budget enforcement. The estimate
// intentionally overshoots slightly so budgets hold against real tokenizers.
package token

import (
	"strings"
	"unicode"
)

// charsPerToken approximates BPE tokenization for English prose.
const charsPerToken = 4

// Estimate returns an approximate token count for text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	// Blend a character heuristic with a word count; CJK and punctuation
	// heavy text tokenizes closer to one token per rune.
	var ascii, wide int
	for _, r := range text {
		if r > unicode.MaxASCII {
			wide++
		} else {
			ascii++
		}
	}
	estimate := ascii/charsPerToken + wide
	if words := len(strings.Fields(text)); words > estimate {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// EstimateAll sums estimates over multiple texts.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}
