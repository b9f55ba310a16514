package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/llmtools"
	"github.com/hyperifyio/dentalguide/internal/validate"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeIterationLimit Outcome = "iteration_limit"
	OutcomeFailed         Outcome = "failed"
)

// toolHistorySize is how many tool calls ToolHistory keeps.
const toolHistorySize = 5

// TurnResult describes one finished turn. Notice is set for non-completed
// outcomes and is what the user sees instead of an answer.
type TurnResult struct {
	Outcome    Outcome
	Answer     string
	Notice     string
	Iterations int
	ToolCalls  int
	// Citations checks the answer of a completed turn.
	Citations validate.Report
	// Err is the underlying cause for non-completed outcomes.
	Err error
}

// ToolCallRecord is a summary of one tool invocation.
type ToolCallRecord struct {
	Tool    string
	Query   string
	Preview string
	OK      bool
	At      time.Time
}

// Session is one conversation. Turns are serialized; history and uploaded
// files belong to the session.
type Session struct {
	ID string

	reasoner       Reasoner
	registry       *llmtools.Registry
	ingester       Ingester
	recursionLimit int
	domains        []string
	excerptRunes   int
	now            func() time.Time

	mu        sync.Mutex
	history   []openai.ChatCompletionMessage
	toolCalls []ToolCallRecord
}

// Submit runs one turn. Iteration-limit and provider failures end the turn
// with a notice and a nil error so the session stays usable. Cancellation
// returns the context error and leaves history unchanged.
func (s *Session) Submit(ctx context.Context, text string, emit func(llmtools.Event)) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var files []catalog.FileRef
	if s.ingester != nil {
		files = s.ingester.Files()
	}
	started := s.now()
	var calls []ToolCallRecord
	events := func(e llmtools.Event) {
		if e.Kind == llmtools.EventToolResult {
			calls = append(calls, ToolCallRecord{Tool: e.Tool, Query: e.Query, Preview: e.Preview, OK: e.OK, At: s.now()})
		}
		if emit != nil {
			emit(e)
		}
	}

	res, err := s.reasoner.Run(ctx, llmtools.Turn{
		System:        SystemPrompt(files, s.excerptRunes),
		History:       append([]openai.ChatCompletionMessage(nil), s.history...),
		User:          text,
		Registry:      s.registry,
		RequireTool:   len(files) > 0,
		MaxIterations: s.recursionLimit,
		Events:        events,
	})

	if ctx.Err() != nil {
		log.Info().Str("session", s.ID).Str("stage", "turn").Msg("turn cancelled")
		return TurnResult{}, ctx.Err()
	}
	s.recordToolCalls(calls)

	out := TurnResult{Iterations: res.Iterations, ToolCalls: res.ToolCalls}
	switch {
	case err == nil:
		out.Outcome = OutcomeCompleted
		out.Answer = res.Final
		out.Citations = validate.Answer(res.Final, s.domains, s.documentURIs()...)
		s.history = append(s.history, res.Messages...)
		if !out.Citations.OK() {
			log.Warn().
				Str("session", s.ID).
				Str("stage", "citations").
				Ints("missing", out.Citations.Missing).
				Ints("incomplete", out.Citations.Incomplete).
				Strs("off_list", out.Citations.OffList).
				Msg("answer citations need review")
		}
	case errors.Is(err, llmtools.ErrIterationLimit):
		out.Outcome = OutcomeIterationLimit
		out.Err = err
		out.Notice = fmt.Sprintf("I could not finish researching this question within the step limit (%d). Try asking a narrower question.", s.recursionLimit)
		s.appendNotice(text, out.Notice)
	default:
		out.Outcome = OutcomeFailed
		out.Err = err
		out.Notice = "Sorry, the assistant could not complete this request. Please try again."
		s.appendNotice(text, out.Notice)
	}
	if out.Notice != "" && emit != nil {
		emit(llmtools.Event{Kind: llmtools.EventNotice, Text: out.Notice})
	}

	var ev *zerolog.Event
	if out.Outcome == OutcomeFailed {
		ev = log.Warn().Err(err)
	} else {
		ev = log.Info()
	}
	ev.Str("session", s.ID).
		Str("stage", "turn").
		Str("outcome", string(out.Outcome)).
		Int("iterations", out.Iterations).
		Int("tool_calls", out.ToolCalls).
		Int("files", len(files)).
		Int64("duration_ms", s.now().Sub(started).Milliseconds()).
		Msg("turn finished")
	return out, nil
}

// documentURIs lists the file and origin URIs of every document in the
// session, including any uploaded during the current turn.
func (s *Session) documentURIs() []string {
	if s.ingester == nil {
		return nil
	}
	var out []string
	for _, f := range s.ingester.Files() {
		if f.URI != "" {
			out = append(out, f.URI)
		}
		if f.OriginURL != "" {
			out = append(out, f.OriginURL)
		}
	}
	return out
}

func (s *Session) appendNotice(user, notice string) {
	s.history = append(s.history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: notice},
	)
}

func (s *Session) recordToolCalls(calls []ToolCallRecord) {
	s.toolCalls = append(s.toolCalls, calls...)
	if n := len(s.toolCalls); n > toolHistorySize {
		s.toolCalls = append([]ToolCallRecord(nil), s.toolCalls[n-toolHistorySize:]...)
	}
}

// Attach ingests a user-supplied PDF and returns its reference.
func (s *Session) Attach(ctx context.Context, name string, data []byte) (catalog.FileRef, error) {
	if s.ingester == nil {
		return catalog.FileRef{}, ErrNoIngester
	}
	out := s.ingester.IngestBytes(ctx, name, data)
	if out.Err != nil {
		return catalog.FileRef{}, fmt.Errorf("attach %s: %w", name, out.Err)
	}
	log.Info().Str("session", s.ID).Str("file", out.Ref.ID).Bool("reused", out.Reused).Msg("attached")
	return *out.Ref, nil
}

// Files lists the documents ingested in this session.
func (s *Session) Files() []catalog.FileRef {
	if s.ingester == nil {
		return nil
	}
	return s.ingester.Files()
}

// Remove forgets an uploaded document.
func (s *Session) Remove(ctx context.Context, id string) error {
	if s.ingester == nil {
		return fmt.Errorf("remove %s: %w", id, catalog.ErrNotFound)
	}
	return s.ingester.Remove(ctx, id)
}

// Reset clears history, tool-call records and uploaded documents.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.toolCalls = nil
	if s.ingester != nil {
		s.ingester.Reset()
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []openai.ChatCompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openai.ChatCompletionMessage(nil), s.history...)
}

// ToolHistory returns the most recent tool calls, oldest first.
func (s *Session) ToolHistory() []ToolCallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ToolCallRecord(nil), s.toolCalls...)
}
