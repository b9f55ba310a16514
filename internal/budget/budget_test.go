package budget

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":         0,
		"a":        1,
		"abcd":     1,
		"abcde":    2,
		"ääääääää": 2,
	}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestMessageTokens_CountsToolCalls(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "abcdefgh"},
		{Role: openai.ChatMessageRoleAssistant, ToolCalls: []openai.ToolCall{{
			Function: openai.FunctionCall{Name: "abcd", Arguments: `{"q":"x"}`},
		}}},
	}
	// (4+2) + (4+0+1+3)
	if got := MessageTokens(msgs); got != 14 {
		t.Fatalf("MessageTokens = %d, want 14", got)
	}
}

func TestContextWindow(t *testing.T) {
	cases := map[string]int{
		"":                          32_768,
		"gemini-2.5-flash":          1_048_576,
		"models/Gemini-1.5-Pro-002": 2_097_152,
		"gemini-3.0-experimental":   1_048_576,
		"gpt-oss-20b":               4_096,
		"mystery":                   32_768,
	}
	for model, want := range cases {
		if got := ContextWindow(model); got != want {
			t.Fatalf("ContextWindow(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestHeadroomAndPromptBudget(t *testing.T) {
	if Headroom("gpt-oss-20b") != 512 {
		t.Fatal("small models get the 512 floor")
	}
	if got := Headroom("gemini-2.5-flash"); got != 52_429 {
		t.Fatalf("5%% of 1M expected, got %d", got)
	}
	if got := PromptBudget("gpt-oss-20b", 1024); got != 4_096-1024-512 {
		t.Fatalf("PromptBudget = %d", got)
	}
	if got := PromptBudget("gpt-oss-20b", 10_000); got != 0 {
		t.Fatalf("budget should clamp at 0, got %d", got)
	}
	if got := PromptBudget("gpt-oss-20b", -5); got != 4_096-512 {
		t.Fatalf("negative reservation should count as 0, got %d", got)
	}
}
