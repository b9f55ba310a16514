// Package budget estimates prompt sizes against model context windows. The
// estimates are deliberately coarse; they only decide when to compress or
// drop older messages.
package budget

import (
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

const (
	charsPerToken = 4
	// messageOverhead covers role markers and framing per message.
	messageOverhead = 4
	defaultWindow   = 32_768
	minHeadroom     = 512
)

// EstimateTokens is ceil(runes/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// MessageTokens estimates a transcript: content, tool call names and
// arguments, plus a fixed overhead per message.
func MessageTokens(msgs []openai.ChatCompletionMessage) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + EstimateTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(tc.Function.Name) + EstimateTokens(tc.Function.Arguments)
		}
	}
	return total
}

// ContextWindow returns the input window for model. Dated and preview
// variants resolve through the longest known prefix; unknown Gemini models
// assume 1M and anything else 32K.
func ContextWindow(model string) int {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(model)), "models/")
	if name == "" {
		return defaultWindow
	}
	if v, ok := windows[name]; ok {
		return v
	}
	best, bestLen := 0, 0
	for k, v := range windows {
		if strings.HasPrefix(name, k) && len(k) > bestLen {
			best, bestLen = v, len(k)
		}
	}
	switch {
	case bestLen > 0:
		return best
	case strings.HasPrefix(name, "gemini-"):
		return 1_048_576
	}
	return defaultWindow
}

// Headroom is 5% of the window with a floor of 512 tokens, absorbing
// tokenizer differences.
func Headroom(model string) int {
	h := (ContextWindow(model)*5 + 99) / 100
	if h < minHeadroom {
		return minHeadroom
	}
	return h
}

// PromptBudget is the number of prompt tokens that fit once the output
// reservation and headroom are set aside. It is never negative.
func PromptBudget(model string, reservedForOutput int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	n := ContextWindow(model) - reservedForOutput - Headroom(model)
	if n < 0 {
		return 0
	}
	return n
}

var windows = map[string]int{
	"gemini-2.5-pro":        1_048_576,
	"gemini-2.5-flash":      1_048_576,
	"gemini-2.5-flash-lite": 1_048_576,
	"gemini-2.0-flash":      1_048_576,
	"gemini-2.0-flash-lite": 1_048_576,
	"gemini-1.5-pro":        2_097_152,
	"gemini-1.5-flash":      1_048_576,
	"gemma-3":               131_072,

	// OpenAI-compatible backends used with the stub or locally.
	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,
	"llama-3.1":   128_000,
	"gpt-oss-20b": 4_096,
}
