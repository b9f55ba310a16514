package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/dentalguide/internal/llmtools"
)

// openai-stub is an offline stand-in for the reasoning backend. Each turn it
// asks for one guideline search with the user's question, then answers citing
// the first result.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	log.Info().Str("addr", addr).Str("model", model).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, newMux(model)); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}

func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"id":      "chatcmpl-stub",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   model,
			"choices": []map[string]any{{"index": 0, "message": reply(req), "finish_reason": "stop"}},
		})
	})
	return mux
}

// reply searches once per turn and answers after the tool result arrives.
func reply(req openai.ChatCompletionRequest) map[string]any {
	last := req.Messages[len(req.Messages)-1]
	if last.Role == openai.ChatMessageRoleTool {
		return map[string]any{"role": "assistant", "content": answerFrom(last.Content)}
	}
	query := strings.TrimSpace(last.Content)
	if query == "" {
		query = "dental guidelines"
	}
	args, _ := json.Marshal(map[string]string{"query": query})
	return map[string]any{
		"role":    "assistant",
		"content": "",
		"tool_calls": []map[string]any{{
			"id":   fmt.Sprintf("call_%d", len(req.Messages)),
			"type": "function",
			"function": map[string]any{
				"name":      llmtools.GuidelineSearchTool,
				"arguments": string(args),
			},
		}},
	}
}

func answerFrom(toolContent string) string {
	var env struct {
		OK   bool                   `json:"ok"`
		Data llmtools.GuidelineData `json:"data"`
	}
	if err := json.Unmarshal([]byte(toolContent), &env); err != nil || !env.OK || len(env.Data.Results) == 0 {
		return "I could not find guidance on this in the trusted sources.\n\n**Disclaimer:** The information provided is based on available guidelines and research. If the search results are unable to confirm a definitive diagnosis or reach a clear conclusion regarding your specific situation, please post your inquiry in the forum for further discussion and professional consultation."
	}
	first := env.Data.Results[0]
	return fmt.Sprintf("According to %s, this is covered in current guidance [1].\n\n## Sources\n- [1] %s - %s", first.Title, first.Title, first.URL)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
