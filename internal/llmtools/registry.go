package llmtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ToolHandler runs a tool on validated JSON arguments. Returned errors are
// scrubbed and surfaced to the model, so they must not carry secrets.
type ToolHandler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolDefinition describes a callable tool. StableName is what the model
// calls and never changes between versions; SemVer is advertised in the
// description.
type ToolDefinition struct {
	StableName   string
	SemVer       string
	Description  string
	JSONSchema   json.RawMessage
	ResultSchema json.RawMessage
	Capabilities []string
	// Timeout overrides the orchestrator's per-tool timeout when positive.
	Timeout time.Duration
	Handler ToolHandler
}

// ToolMeta is the loggable view of a definition.
type ToolMeta struct {
	StableName   string        `json:"stable_name"`
	SemVer       string        `json:"semver"`
	Capabilities []string      `json:"capabilities"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// ErrInvalidTool wraps every Register validation failure.
var ErrInvalidTool = errors.New("invalid tool definition")

// Registry holds the tools offered to the model, keyed by stable name. It is
// safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]ToolDefinition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]ToolDefinition)}
}

var (
	nameRe   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	semverRe = regexp.MustCompile(`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)
)

// Register validates def and adds it, replacing any tool of the same name.
func (r *Registry) Register(def ToolDefinition) error {
	if err := checkDefinition(def); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTool, def.StableName, err)
	}
	caps := def.Capabilities[:0:0]
	for _, c := range def.Capabilities {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}
	def.Capabilities = caps

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = make(map[string]ToolDefinition)
	}
	r.defs[def.StableName] = def
	return nil
}

func checkDefinition(def ToolDefinition) error {
	switch {
	case !nameRe.MatchString(def.StableName):
		return errors.New("name must be lowercase snake_case starting with a letter")
	case !semverRe.MatchString(def.SemVer):
		return fmt.Errorf("version %q is not semantic", def.SemVer)
	case def.Handler == nil:
		return errors.New("handler is nil")
	}
	if err := checkSchema(def.JSONSchema, true); err != nil {
		return fmt.Errorf("args schema: %w", err)
	}
	if err := checkSchema(def.ResultSchema, false); err != nil {
		return fmt.Errorf("result schema: %w", err)
	}
	return nil
}

// checkSchema requires a JSON object the validator can read.
func checkSchema(raw json.RawMessage, required bool) error {
	if len(raw) == 0 {
		if required {
			return errors.New("missing")
		}
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return errors.New("must be a JSON object")
	}
	var n schemaNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("unsupported: %w", err)
	}
	return nil
}

// Specs returns what the model sees, sorted by name. The version is appended
// to the description so the name can stay stable.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.defs))
	for _, name := range r.sortedNames() {
		def := r.defs[name]
		specs = append(specs, ToolSpec{
			Name:        def.StableName,
			Description: fmt.Sprintf("%s (version %s)", def.Description, def.SemVer),
			JSONSchema:  def.JSONSchema,
		})
	}
	return specs
}

func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Catalog lists tool metadata sorted by name.
func (r *Registry) Catalog() []ToolMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolMeta, 0, len(r.defs))
	for _, name := range r.sortedNames() {
		def := r.defs[name]
		out = append(out, ToolMeta{
			StableName:   def.StableName,
			SemVer:       def.SemVer,
			Capabilities: append([]string(nil), def.Capabilities...),
			Timeout:      def.Timeout,
		})
	}
	return out
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
