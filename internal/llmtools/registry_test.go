package llmtools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func nopHandler(context.Context, json.RawMessage) (json.RawMessage, error) { return nil, nil }

func TestRegistry_RegisterAndSpecsAndCatalog(t *testing.T) {
	r := NewRegistry()

	def := ToolDefinition{
		StableName:  "dental_guideline_search",
		SemVer:      "v1.0.0",
		Description: "search authoritative dental sources",
		JSONSchema: mustRaw(t, map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		}),
		Capabilities: []string{"search", " ", "guidelines"},
		Timeout:      3 * time.Second,
		Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var a struct {
				Query string `json:"query"`
			}
			_ = json.Unmarshal(args, &a)
			return mustRaw(t, map[string]any{"echo": a.Query}), nil
		},
	}
	if err := r.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	specs := r.Specs()
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}
	if specs[0].Name != "dental_guideline_search" {
		t.Fatalf("unexpected spec name: %s", specs[0].Name)
	}
	if !strings.HasSuffix(specs[0].Description, "(version v1.0.0)") {
		t.Fatalf("expected description to include version suffix, got: %q", specs[0].Description)
	}

	meta := r.Catalog()
	if len(meta) != 1 || meta[0].StableName != "dental_guideline_search" || meta[0].SemVer != "v1.0.0" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if meta[0].Timeout != 3*time.Second {
		t.Fatalf("catalog should carry the timeout: %+v", meta[0])
	}
	if len(meta[0].Capabilities) != 2 {
		t.Fatalf("blank capabilities should be dropped: %+v", meta[0].Capabilities)
	}

	got, ok := r.Get("dental_guideline_search")
	if !ok {
		t.Fatalf("Get did not find tool")
	}
	if got.Timeout != 3*time.Second {
		t.Fatalf("timeout not preserved: %v", got.Timeout)
	}
	res, err := got.Handler(context.Background(), mustRaw(t, map[string]any{"query": "silver diamine fluoride"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var out map[string]any
	_ = json.Unmarshal(res, &out)
	if out["echo"] != "silver diamine fluoride" {
		t.Fatalf("unexpected handler output: %v", out)
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	object := mustRaw(t, map[string]any{"type": "object"})
	cases := map[string]ToolDefinition{
		"invalid name":       {StableName: "Invalid-Name", SemVer: "v0.1.0", JSONSchema: object, Handler: nopHandler},
		"invalid semver":     {StableName: "guideline_search", SemVer: "1.0", JSONSchema: object, Handler: nopHandler},
		"non-object schema":  {StableName: "guideline_search", SemVer: "v0.1.0", JSONSchema: mustRaw(t, []any{"not", "an", "object"}), Handler: nopHandler},
		"non-object result":  {StableName: "guideline_search", SemVer: "v0.1.0", JSONSchema: object, ResultSchema: mustRaw(t, "x"), Handler: nopHandler},
		"nil handler":        {StableName: "guideline_search", SemVer: "v0.1.0", JSONSchema: object},
		"missing schema":     {StableName: "guideline_search", SemVer: "v0.1.0", Handler: nopHandler},
		"leading underscore": {StableName: "_search", SemVer: "v0.1.0", JSONSchema: object, Handler: nopHandler},
		"unreadable schema":  {StableName: "guideline_search", SemVer: "v0.1.0", JSONSchema: json.RawMessage(`{"type":["string","null"]}`), Handler: nopHandler},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			err := NewRegistry().Register(def)
			if !errors.Is(err, ErrInvalidTool) {
				t.Fatalf("expected ErrInvalidTool, got %v", err)
			}
		})
	}
}

func TestRegistry_DeterministicOrdering(t *testing.T) {
	r := NewRegistry()
	object := mustRaw(t, map[string]any{"type": "object"})
	for _, name := range []string{"list_files", "dental_guideline_search", "attach_pdf"} {
		if err := r.Register(ToolDefinition{StableName: name, SemVer: "v1.0.0", Description: name, JSONSchema: object, Handler: nopHandler}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	specs := r.Specs()
	want := []string{"attach_pdf", "dental_guideline_search", "list_files"}
	for i, w := range want {
		if specs[i].Name != w {
			t.Fatalf("unexpected order at %d: got %s want %s", i, specs[i].Name, w)
		}
	}
}

func TestRegistry_ReplaceByName(t *testing.T) {
	r := NewRegistry()
	object := mustRaw(t, map[string]any{"type": "object"})
	_ = r.Register(ToolDefinition{StableName: "guideline_search", SemVer: "v1.0.0", Description: "old", JSONSchema: object, Handler: nopHandler})
	_ = r.Register(ToolDefinition{StableName: "guideline_search", SemVer: "v1.1.0", Description: "new", JSONSchema: object, Handler: nopHandler})
	if len(r.Specs()) != 1 {
		t.Fatalf("re-registering should replace, got %d specs", len(r.Specs()))
	}
	def, _ := r.Get("guideline_search")
	if def.SemVer != "v1.1.0" {
		t.Fatalf("expected replacement, got %s", def.SemVer)
	}
}

func TestRegistry_HandlerErrorPropagation(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(ToolDefinition{
		StableName:  "failing_tool",
		SemVer:      "v0.0.1",
		Description: "always fails",
		JSONSchema:  mustRaw(t, map[string]any{"type": "object"}),
		Handler: func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("bad args: missing query")
		},
	})
	def, ok := r.Get("failing_tool")
	if !ok {
		t.Fatalf("tool not found")
	}
	if _, err := def.Handler(context.Background(), mustRaw(t, map[string]any{})); err == nil {
		t.Fatalf("expected handler error")
	}
}
