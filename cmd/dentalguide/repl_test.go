package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/dentalguide/internal/agent"
	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/config"
	"github.com/hyperifyio/dentalguide/internal/ingest"
	"github.com/hyperifyio/dentalguide/internal/llmtools"
	"github.com/hyperifyio/dentalguide/internal/search"
)

type noSearch struct{}

func (noSearch) Search(context.Context, string) ([]search.Result, error) { return nil, nil }

// stallingReasoner blocks its first turn until cancelled and answers later
// turns immediately.
type stallingReasoner struct {
	started chan struct{}
	calls   int
}

func (s *stallingReasoner) Run(ctx context.Context, turn llmtools.Turn) (llmtools.Result, error) {
	s.calls++
	if s.calls == 1 {
		close(s.started)
		<-ctx.Done()
		return llmtools.Result{}, ctx.Err()
	}
	return llmtools.Result{
		Final:      "answer two",
		Iterations: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: turn.User},
			{Role: openai.ChatMessageRoleAssistant, Content: "answer two"},
		},
	}, nil
}

func TestREPL_InterruptCancelsTurnAndKeepsSession(t *testing.T) {
	sr := &stallingReasoner{started: make(chan struct{})}
	sess, err := agent.Assemble(config.Default(), agent.Deps{Reasoner: sr, Search: noSearch{}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	sigs := make(chan os.Signal, 1)
	go func() {
		<-sr.started
		sigs <- os.Interrupt
	}()

	var out bytes.Buffer
	r := &repl{session: sess, out: &out, interrupts: sigs}
	if err := r.loop(context.Background(), strings.NewReader("first question\nsecond question\n")); err != nil {
		t.Fatalf("loop: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "turn cancelled") || !strings.Contains(s, "answer two") {
		t.Fatalf("expected the second turn to run after the interrupt:\n%s", s)
	}
	if sr.calls != 2 {
		t.Fatalf("expected 2 turns, got %d", sr.calls)
	}
	if h := sess.History(); len(h) != 2 || h[0].Content != "second question" {
		t.Fatalf("cancelled turn must leave no history: %+v", h)
	}
}

func TestREPL_StaleInterruptDoesNotCancelNextTurn(t *testing.T) {
	sr := &stallingReasoner{started: make(chan struct{}), calls: 1}
	sess, err := agent.Assemble(config.Default(), agent.Deps{Reasoner: sr, Search: noSearch{}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt

	var out bytes.Buffer
	r := &repl{session: sess, out: &out, interrupts: sigs}
	if err := r.ask(context.Background(), "question"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out.String(), "answer two") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestREPL_AttachRejectsOversizeBeforeReading(t *testing.T) {
	in := &ingest.Ingester{Catalog: &catalog.Disk{Dir: t.TempDir()}}
	sess, err := agent.Assemble(config.Default(), agent.Deps{Reasoner: &stallingReasoner{}, Search: noSearch{}, Ingester: in})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	big := filepath.Join(t.TempDir(), "big.pdf")
	if err := os.WriteFile(big, append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 64)...), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	r := &repl{session: sess, out: &out, maxBytes: 32}
	_, err = r.command(context.Background(), "/attach "+big)
	if err == nil || !strings.Contains(err.Error(), "exceeds size limit") || !strings.Contains(err.Error(), "big.pdf is 73 bytes, limit 32") {
		t.Fatalf("expected size error, got %v", err)
	}
	if len(sess.Files()) != 0 {
		t.Fatalf("oversize attachment must not be ingested")
	}

	if _, err := r.command(context.Background(), "/attach "+filepath.Dir(big)); err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
}
