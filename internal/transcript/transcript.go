// Package transcript renders a session's conversation for /export.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnsupportedFormat is returned by Export for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported export format (use .md or .pdf)")

// Markdown renders user and assistant turns. Tool results are omitted; the
// searches that produced them are listed under the assistant turn.
func Markdown(sessionID string, msgs []openai.ChatCompletionMessage, at time.Time) string {
	var b strings.Builder
	b.WriteString("# Dental guideline conversation\n\n")
	fmt.Fprintf(&b, "_Session %s, exported %s_\n", sessionID, at.UTC().Format(time.RFC3339))

	var searches []string
	flush := func() {
		if len(searches) == 0 {
			return
		}
		b.WriteString("\n")
		for _, q := range searches {
			fmt.Fprintf(&b, "_Searched: %s_\n", q)
		}
		searches = nil
	}
	for _, m := range msgs {
		switch m.Role {
		case openai.ChatMessageRoleUser:
			flush()
			fmt.Fprintf(&b, "\n## You\n\n%s\n", strings.TrimSpace(m.Content))
		case openai.ChatMessageRoleAssistant:
			for _, tc := range m.ToolCalls {
				if q := queryOf(tc.Function.Arguments); q != "" {
					searches = append(searches, q)
				}
			}
			if text := strings.TrimSpace(m.Content); text != "" && len(m.ToolCalls) == 0 {
				flush()
				fmt.Fprintf(&b, "\n## Assistant\n\n%s\n", text)
			}
		}
	}
	flush()
	return b.String()
}

func queryOf(args string) string {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return ""
	}
	return strings.TrimSpace(a.Query)
}

// Export writes the conversation to path as Markdown or PDF depending on the
// extension.
func Export(path, sessionID string, msgs []openai.ChatCompletionMessage, at time.Time) error {
	md := Markdown(sessionID, msgs, at)
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data = []byte(md)
	case ".pdf":
		var buf bytes.Buffer
		if err := WritePDF(&buf, md); err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
