package llmtools

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/dentalguide/internal/budget"
	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/fetch"
	"github.com/hyperifyio/dentalguide/internal/search"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// ChatClient abstracts the OpenAI client dependency for testability.
// It mirrors the minimal method we use across the codebase.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	// DefaultMaxIterations bounds the model calls made in one turn.
	DefaultMaxIterations = 25
	// DefaultPerToolTimeout applies when neither the tool nor the
	// orchestrator sets a timeout.
	DefaultPerToolTimeout = 10 * time.Second

	previewRunes = 160
)

var (
	// ErrIterationLimit is returned when the model keeps requesting tools
	// after MaxIterations model calls. The partial transcript is returned
	// alongside it.
	ErrIterationLimit = errors.New("iteration limit reached")
	// ErrInvalidArgs marks tool argument problems. Handlers wrap it so the
	// envelope carries E_ARGS.
	ErrInvalidArgs = errors.New("invalid args")
	// ErrEmptyAnswer is returned when the model stops without text or tool calls.
	ErrEmptyAnswer = errors.New("model returned an empty answer")
)

// Error codes carried in tool error envelopes.
const (
	CodeArgs        = "E_ARGS"
	CodeTimeout     = "E_TIMEOUT"
	CodeProvider    = "E_PROVIDER"
	CodeNotFound    = "E_NOT_FOUND"
	CodeTool        = "E_TOOL"
	CodeUnknownTool = "E_UNKNOWN_TOOL"
	CodeSchema      = "E_RESULT_SCHEMA"
)

// Orchestrator coordinates a tool-enabled chat loop until a final answer.
// It sends tool specs, executes any returned tool calls via the turn's
// registry, appends tool results as role=tool messages, and stops on final
// assistant text.
type Orchestrator struct {
	Client ChatClient
	Model  string
	// MaxTokens is forwarded to the request and reserved when budgeting the
	// prompt. Zero leaves the provider default.
	MaxTokens int
	// MaxIterations limits model calls per Run. Zero means DefaultMaxIterations.
	MaxIterations int
	// PerToolTimeout bounds a single handler execution unless the tool
	// definition carries its own Timeout.
	PerToolTimeout time.Duration
	// DryRunTools records the intended call with redacted arguments instead
	// of running the handler.
	DryRunTools bool
}

// Turn is the input of a single Run.
type Turn struct {
	System   string
	History  []openai.ChatCompletionMessage
	User     string
	Registry *Registry
	// RequireTool sets tool_choice=required on the first request.
	RequireTool bool
	// MaxIterations overrides the orchestrator limit for this turn when
	// positive.
	MaxIterations int
	// Events, when set, receives progress notifications synchronously.
	Events func(Event)
}

// Result is the outcome of a Run. Messages holds the new part of the
// conversation starting at the user message.
type Result struct {
	Final      string
	Messages   []openai.ChatCompletionMessage
	Iterations int
	ToolCalls  int
}

// EventKind names a progress notification.
type EventKind string

const (
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventAnswer     EventKind = "answer"
	EventNotice     EventKind = "notice"
)

// Event is emitted while a turn progresses.
type Event struct {
	Kind    EventKind
	Tool    string
	Args    string
	Query   string
	Preview string
	OK      bool
	Text    string
}

func (o *Orchestrator) maxIterations(turn Turn) int {
	if turn.MaxIterations > 0 {
		return turn.MaxIterations
	}
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return DefaultMaxIterations
}

// Run executes the orchestration loop for one user turn.
func (o *Orchestrator) Run(ctx context.Context, turn Turn) (Result, error) {
	if o.Client == nil {
		return Result{}, fmt.Errorf("orchestrator: Client is nil")
	}
	reg := turn.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	emit := turn.Events
	if emit == nil {
		emit = func(Event) {}
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2+len(turn.History))
	if turn.System != "" {
		sys := turn.System
		if afford := buildPromptAffordances(reg); afford != "" {
			sys = sys + "\n\n" + afford
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys})
	}
	messages = append(messages, turn.History...)
	userIdx := len(messages)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.User})

	tools := EncodeTools(reg.Specs())
	limit := o.maxIterations(turn)
	res := Result{}
	partial := func() Result {
		r := res
		r.Messages = append([]openai.ChatCompletionMessage(nil), messages[userIdx:]...)
		return r
	}

	for {
		if err := ctx.Err(); err != nil {
			return partial(), err
		}
		req := openai.ChatCompletionRequest{
			Model:     o.Model,
			MaxTokens: o.MaxTokens,
			Messages:  budgetMessagesForRequest(messages, o.Model, o.MaxTokens),
		}
		if len(tools) > 0 {
			req.Tools = tools
			if turn.RequireTool && res.Iterations == 0 {
				req.ToolChoice = "required"
			}
		}
		started := time.Now()
		resp, err := o.Client.CreateChatCompletion(ctx, req)
		res.Iterations++
		if err != nil {
			return partial(), fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return partial(), fmt.Errorf("orchestrator: empty choices from model")
		}
		messages = append(messages, resp.Choices[0].Message)
		calls := ParseToolCalls(resp)
		log.Debug().
			Str("stage", "llm").
			Str("model", o.Model).
			Int("iteration", res.Iterations).
			Int("tool_calls", len(calls)).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("model response")

		if len(calls) == 0 {
			final := FinalContent(resp)
			if final == "" {
				return partial(), ErrEmptyAnswer
			}
			res.Final = final
			emit(Event{Kind: EventAnswer, Text: final})
			return partial(), nil
		}
		if res.Iterations >= limit {
			return partial(), fmt.Errorf("%w: %d model calls", ErrIterationLimit, limit)
		}

		for _, call := range calls {
			emit(Event{Kind: EventToolCall, Tool: call.Name, Args: scrubString(string(call.Arguments)), Query: queryArg(call.Arguments)})
			content, ok := o.execute(ctx, reg, call)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    content,
			})
			res.ToolCalls++
			emit(Event{Kind: EventToolResult, Tool: call.Name, Query: queryArg(call.Arguments), OK: ok, Preview: search.Truncate(content, previewRunes)})
		}
		// Keep the latest 2 tool messages verbatim.
		messages = compressOlderToolMessages(messages, 2)
	}
}

// execute runs one tool call and returns the envelope content and whether
// the call succeeded.
func (o *Orchestrator) execute(ctx context.Context, reg *Registry, call ToolCall) (string, bool) {
	started := time.Now()
	sum := sha256.Sum256([]byte(call.Arguments))
	argsHash := fmt.Sprintf("%x", sum[:])
	content, ok := o.envelope(ctx, reg, call)
	log.Info().
		Str("stage", "tool").
		Str("tool", call.Name).
		Str("tool_call_id", call.ID).
		Str("args_hash", argsHash).
		Int("args_bytes", len(call.Arguments)).
		Int("result_bytes", len(content)).
		Bool("ok", ok).
		Bool("dry_run", o.DryRunTools).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("tool call")
	return content, ok
}

func (o *Orchestrator) envelope(ctx context.Context, reg *Registry, call ToolCall) (string, bool) {
	def, known := reg.Get(call.Name)
	if !known || def.Handler == nil {
		return errorEnvelope(call.Name, CodeUnknownTool, "unknown tool"), false
	}

	if len(strings.TrimSpace(string(call.Arguments))) == 0 {
		call.Arguments = json.RawMessage("{}")
	}
	var argVal any
	if err := json.Unmarshal(call.Arguments, &argVal); err != nil {
		return errorEnvelope(call.Name, CodeArgs, "invalid args: arguments are not valid JSON"), false
	}
	if o.DryRunTools {
		return marshalEnvelope(map[string]any{
			"ok":      true,
			"tool":    call.Name,
			"dry_run": true,
			"args":    scrubValue(argVal),
		}), true
	}
	if len(def.JSONSchema) > 0 {
		if err := validateAgainstSchema(argVal, def.JSONSchema); err != nil {
			return errorEnvelope(call.Name, CodeArgs, "invalid args: "+scrubString(err.Error())), false
		}
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = o.PerToolTimeout
	}
	if timeout <= 0 {
		timeout = DefaultPerToolTimeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	raw, err := def.Handler(toolCtx, call.Arguments)
	cancel()
	if err != nil {
		return errorEnvelope(call.Name, classifyToolError(err), scrubString(err.Error())), false
	}

	var val any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &val); err != nil {
			return errorEnvelope(call.Name, CodeTool, "tool returned invalid JSON"), false
		}
	}
	val = scrubValue(val)
	if len(def.ResultSchema) > 0 {
		if err := validateAgainstSchema(val, def.ResultSchema); err != nil {
			return errorEnvelope(call.Name, CodeSchema, "tool result failed schema validation: "+err.Error()), false
		}
	}
	return marshalEnvelope(map[string]any{"ok": true, "tool": call.Name, "data": val}), true
}

func errorEnvelope(tool, code, message string) string {
	return marshalEnvelope(map[string]any{
		"ok":   false,
		"tool": tool,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func marshalEnvelope(env map[string]any) string {
	b, err := json.Marshal(env)
	if err != nil {
		return `{"ok":false,"error":{"code":"E_TOOL","message":"unencodable result"}}`
	}
	return string(b)
}

// queryArg pulls the "query" argument out for progress display.
func queryArg(args json.RawMessage) string {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return strings.TrimSpace(a.Query)
}

// buildPromptAffordances renders a short note describing the available tools
// (name, version, and one-line description), basic usage and the error codes
// handlers may return.
func buildPromptAffordances(r *Registry) string {
	if r == nil {
		return ""
	}
	specs := r.Specs()
	if len(specs) == 0 {
		return ""
	}
	lines := make([]string, 0, 4+len(specs))
	lines = append(lines, "Tools available:")
	for _, s := range specs {
		def, ok := r.Get(s.Name)
		if !ok {
			continue
		}
		ver := def.SemVer
		if ver == "" {
			ver = "v0.0.0"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", def.StableName, ver, def.Description))
	}
	lines = append(lines,
		"Use tools via tool_calls only. Provide minimal, valid JSON args.",
		"Errors are structured: {'ok':false,'error':{'code','message'}}. Codes: E_ARGS (bad/missing args), E_TIMEOUT (tool timed out), E_PROVIDER (search or file service failed; retry with a different query), E_NOT_FOUND, E_TOOL.")
	return strings.Join(lines, "\n")
}

// classifyToolError maps handler errors to stable codes so the model can
// retry or report deterministically.
func classifyToolError(err error) string {
	if err == nil {
		return ""
	}
	var searchErr *search.StatusError
	var fetchErr *fetch.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrInvalidArgs), errors.Is(err, search.ErrEmptyQuery):
		return CodeArgs
	case errors.Is(err, catalog.ErrNotFound):
		return CodeNotFound
	case errors.As(err, &searchErr), errors.As(err, &fetchErr):
		return CodeProvider
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "invalid args"), strings.Contains(msg, "missing "):
		return CodeArgs
	case strings.Contains(msg, "not found"):
		return CodeNotFound
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return CodeTimeout
	default:
		return CodeTool
	}
}

// budgetMessagesForRequest returns a copy of messages pruned and/or compressed
// to fit into the model's context window with headroom and output reservation.
//   - The first system message is always kept.
//   - Older tool messages are compressed first, keeping the latest 2.
//   - If still over budget, the oldest non-system messages are dropped.
func budgetMessagesForRequest(messages []openai.ChatCompletionMessage, model string, maxTokens int) []openai.ChatCompletionMessage {
	if len(messages) == 0 {
		return nil
	}
	out := append([]openai.ChatCompletionMessage(nil), messages...)

	model = strings.TrimSpace(model)
	reserved := maxTokens
	if reserved <= 0 {
		reserved = 1024
	}
	maxPrompt := budget.PromptBudget(model, reserved)
	if maxPrompt <= 0 {
		if len(out) > 8 {
			return out[len(out)-8:]
		}
		return out
	}
	if budget.MessageTokens(out) <= maxPrompt {
		return out
	}

	out = compressOlderToolMessages(out, 2)
	for budget.MessageTokens(out) > maxPrompt && len(out) > 2 {
		if out[0].Role == openai.ChatMessageRoleSystem {
			out = append(out[:1], out[2:]...)
		} else {
			out = out[1:]
		}
	}
	// A tool message must follow the assistant message that requested it.
	for len(out) > 1 && out[0].Role == openai.ChatMessageRoleSystem && out[1].Role == openai.ChatMessageRoleTool {
		out = append(out[:1], out[2:]...)
	}
	return out
}

// compressToolContent tries to parse a tool envelope JSON and produce a
// compact representation that preserves keys and IDs while truncating large
// strings. If parsing fails, it returns a safe truncated text.
func compressToolContent(content string) string {
	var anyVal any
	if err := json.Unmarshal([]byte(content), &anyVal); err != nil {
		if len([]rune(content)) > 256 {
			return search.Truncate(content, 200) + "… (compressed)"
		}
		return content
	}
	comp := compressJSONNode(anyVal, 256)
	if m, ok := comp.(map[string]any); ok {
		m["compressed"] = true
		comp = m
	}
	b, err := json.Marshal(comp)
	if err != nil {
		return search.Truncate(content, 200) + "… (compressed)"
	}
	return string(b)
}

// compressOlderToolMessages compresses the content of older tool messages in
// the transcript, keeping the latest keepLast tool messages unmodified.
func compressOlderToolMessages(messages []openai.ChatCompletionMessage, keepLast int) []openai.ChatCompletionMessage {
	if keepLast < 0 {
		keepLast = 0
	}
	toolIdx := make([]int, 0, 8)
	for i, m := range messages {
		if m.Role == openai.ChatMessageRoleTool {
			toolIdx = append(toolIdx, i)
		}
	}
	toCompress := len(toolIdx) - keepLast
	if toCompress <= 0 {
		return messages
	}
	out := append([]openai.ChatCompletionMessage(nil), messages...)
	for i := 0; i < toCompress; i++ {
		idx := toolIdx[i]
		if strings.Contains(out[idx].Content, `"compressed":true`) {
			continue
		}
		out[idx].Content = compressToolContent(out[idx].Content)
	}
	return out
}

// compressJSONNode walks a JSON-like value and truncates large strings.
// maxLen applies per string value in runes. Fields named id or url are kept
// verbatim so citations survive compression.
func compressJSONNode(v any, maxLen int) any {
	switch t := v.(type) {
	case string:
		n := len([]rune(t))
		if n > maxLen {
			keep := maxLen - 56
			if keep < 0 {
				keep = maxLen
			}
			return search.Truncate(t, keep) + fmt.Sprintf("… (%d chars, truncated)", n)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			if strings.EqualFold(k, "id") || strings.EqualFold(k, "url") {
				out[k] = vv
				continue
			}
			out[k] = compressJSONNode(vv, maxLen)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = compressJSONNode(vv, maxLen)
		}
		return out
	default:
		return v
	}
}
