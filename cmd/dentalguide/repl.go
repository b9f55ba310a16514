package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperifyio/dentalguide/internal/agent"
	"github.com/hyperifyio/dentalguide/internal/ingest"
	"github.com/hyperifyio/dentalguide/internal/llmtools"
	"github.com/hyperifyio/dentalguide/internal/transcript"
)

const helpText = `Commands:
  /attach <file.pdf>   upload a PDF as grounding context
  /files               list uploaded documents
  /remove <id>         forget an uploaded document
  /history             show the most recent tool calls
  /export <out.md|out.pdf>
                       save the conversation
  /reset               start over
  /quit                exit
Anything else is sent to the assistant. Ctrl-C cancels the running turn.`

// repl is the line-oriented chat driver.
type repl struct {
	session *agent.Session
	out     io.Writer
	now     func() time.Time
	// interrupts cancels the running turn only; the session survives. Nil
	// disables per-turn cancellation.
	interrupts <-chan os.Signal
	// maxBytes rejects oversized attachments before they are read. Zero
	// disables the check.
	maxBytes int64
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(r.out, "Dental guideline assistant (session %s). Type /help for commands.\n", r.session.ID)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(r.out, "cancelled")
				return nil
			}
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(r.out, "turn cancelled")
				continue
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

// ask runs one turn and prints tool activity followed by the answer or the
// notice that replaced it.
func (r *repl) ask(parent context.Context, text string) error {
	ctx, cancel := r.turnContext(parent)
	defer cancel()
	res, err := r.session.Submit(ctx, text, r.printEvent)
	if err != nil {
		return err
	}
	if res.Outcome == agent.OutcomeCompleted {
		fmt.Fprintf(r.out, "\n%s\n\n", res.Answer)
		if len(res.Citations.OffList) > 0 {
			fmt.Fprintf(r.out, "note: cited sources outside the trusted domains: %s\n\n", strings.Join(res.Citations.OffList, ", "))
		}
	} else {
		fmt.Fprintf(r.out, "\n%s\n\n", res.Notice)
	}
	return nil
}

// turnContext derives a context that an interrupt cancels for the length of
// one turn.
func (r *repl) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if r.interrupts == nil {
		return ctx, cancel
	}
	// Interrupts typed at an idle prompt must not cancel the next turn.
	for drained := false; !drained; {
		select {
		case <-r.interrupts:
		default:
			drained = true
		}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-r.interrupts:
			cancel()
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		cancel()
	}
}

func (r *repl) printEvent(e llmtools.Event) {
	switch e.Kind {
	case llmtools.EventToolCall:
		if e.Query != "" {
			fmt.Fprintf(r.out, "  [%s] %q\n", e.Tool, e.Query)
		} else {
			fmt.Fprintf(r.out, "  [%s]\n", e.Tool)
		}
	case llmtools.EventToolResult:
		status := "ok"
		if !e.OK {
			status = "error"
		}
		fmt.Fprintf(r.out, "  [%s %s] %s\n", e.Tool, status, e.Preview)
	}
}

// command handles a slash command and reports whether the loop should end.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/attach":
		if arg == "" {
			return false, errors.New("usage: /attach <file.pdf>")
		}
		fi, err := os.Stat(arg)
		if err != nil {
			return false, err
		}
		if fi.IsDir() {
			return false, fmt.Errorf("%s is a directory", arg)
		}
		if r.maxBytes > 0 && fi.Size() > r.maxBytes {
			return false, fmt.Errorf("%w: %s is %d bytes, limit %d", ingest.ErrTooLarge, filepath.Base(arg), fi.Size(), r.maxBytes)
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return false, err
		}
		ref, err := r.session.Attach(ctx, filepath.Base(arg), data)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "attached %s as %s (%d pages)\n", ref.Name, ref.ID, ref.Pages)
	case "/files":
		files := r.session.Files()
		if len(files) == 0 {
			fmt.Fprintln(r.out, "no documents")
		}
		for _, f := range files {
			where := f.OriginURL
			if where == "" {
				where = f.URI
			}
			fmt.Fprintf(r.out, "  %s  %s  %d pages  %s\n", f.ID, f.Name, f.Pages, where)
		}
	case "/remove":
		if arg == "" {
			return false, errors.New("usage: /remove <id>")
		}
		if err := r.session.Remove(ctx, arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "removed %s\n", arg)
	case "/history":
		calls := r.session.ToolHistory()
		if len(calls) == 0 {
			fmt.Fprintln(r.out, "no tool calls yet")
		}
		for _, c := range calls {
			status := "ok"
			if !c.OK {
				status = "error"
			}
			fmt.Fprintf(r.out, "  %s %s %q (%s): %s\n", c.At.Format("15:04:05"), c.Tool, c.Query, status, c.Preview)
		}
	case "/export":
		if arg == "" {
			return false, errors.New("usage: /export <out.md|out.pdf>")
		}
		now := time.Now
		if r.now != nil {
			now = r.now
		}
		if err := transcript.Export(arg, r.session.ID, r.session.History(), now()); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "exported to %s\n", arg)
	case "/reset":
		r.session.Reset()
		fmt.Fprintln(r.out, "conversation cleared")
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}
