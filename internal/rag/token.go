// internal/rag/token.go
package rag

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func initEncoding() {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// CountTokens counts tokens with the cl100k_base encoding, falling
// back to a character heuristic when the encoding is unavailable.
func CountTokens(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens is the heuristic fallback: max(runes/4, words)
func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// TruncateToTokens cuts text to at most maxTokens tokens
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	initEncoding()
	if encoding != nil {
		tokens := encoding.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return encoding.Decode(tokens[:maxTokens])
	}
	runes := []rune(text)
	if limit := maxTokens * 4; limit < len(runes) {
		return string(runes[:limit])
	}
	return text
}
