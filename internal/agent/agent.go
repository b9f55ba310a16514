// Package agent assembles the guideline search tool, optional PDF ingestion
// and the reasoning loop into a conversational session.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/config"
	"github.com/hyperifyio/dentalguide/internal/ingest"
	"github.com/hyperifyio/dentalguide/internal/llmtools"
)

// Reasoner runs one tool-enabled turn. *llmtools.Orchestrator implements it.
type Reasoner interface {
	Run(ctx context.Context, turn llmtools.Turn) (llmtools.Result, error)
}

// Ingester is the session-scoped PDF ingestion surface. *ingest.Ingester
// implements it.
type Ingester interface {
	IngestAll(ctx context.Context, urls []string) []ingest.Outcome
	IngestBytes(ctx context.Context, name string, data []byte) ingest.Outcome
	Files() []catalog.FileRef
	Remove(ctx context.Context, id string) error
	Reset()
}

// Deps are the collaborators Assemble wires together.
type Deps struct {
	Reasoner Reasoner
	Search   llmtools.Searcher
	// Ingester is optional. Without it attachments are rejected and search
	// results are cited by URL only.
	Ingester Ingester
	// ExcerptRunes caps each document excerpt in the system prompt. Set it
	// to the ingester's MaxExcerpt so the whole stored preview reaches the
	// model. Zero means ingest.DefaultMaxExcerpt.
	ExcerptRunes int
}

var (
	// ErrNoIngester is returned by Attach when PDF ingestion is not configured.
	ErrNoIngester = errors.New("pdf ingestion is not configured")
	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("empty message")
)

// Assemble builds a session with its own tool registry. The search tool gets
// the ingester only when automatic PDF upload is enabled.
func Assemble(cfg config.Config, deps Deps) (*Session, error) {
	if deps.Reasoner == nil {
		return nil, errors.New("agent: reasoner is required")
	}
	if deps.Search == nil {
		return nil, errors.New("agent: search is required")
	}

	tool := &llmtools.GuidelineSearch{
		Searcher: deps.Search,
		Timeout:  toolTimeout(cfg),
	}
	if cfg.AutoUploadPDFs && deps.Ingester != nil {
		tool.Ingester = deps.Ingester
	}
	reg := llmtools.NewRegistry()
	if err := tool.Register(reg); err != nil {
		return nil, err
	}

	limit := cfg.RecursionLimit
	if limit <= 0 {
		limit = llmtools.DefaultMaxIterations
	}
	return &Session{
		ID:             uuid.NewString(),
		reasoner:       deps.Reasoner,
		registry:       reg,
		ingester:       deps.Ingester,
		recursionLimit: limit,
		domains:        cfg.Domains,
		excerptRunes:   deps.ExcerptRunes,
		now:            time.Now,
	}, nil
}

// toolTimeout covers one search plus, when enabled, a download and an upload.
func toolTimeout(cfg config.Config) time.Duration {
	d := cfg.SearchTimeout
	if d <= 0 {
		d = llmtools.DefaultPerToolTimeout
	}
	if cfg.AutoUploadPDFs {
		d += cfg.DownloadTimeout + cfg.UploadTimeout
	}
	return d
}
