package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hyperifyio/dentalguide/internal/agent"
	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/config"
	"github.com/hyperifyio/dentalguide/internal/fetch"
	"github.com/hyperifyio/dentalguide/internal/ingest"
	"github.com/hyperifyio/dentalguide/internal/llm"
	"github.com/hyperifyio/dentalguide/internal/llmtools"
	"github.com/hyperifyio/dentalguide/internal/robots"
	"github.com/hyperifyio/dentalguide/internal/search"
)

const userAgent = "dentalguide/1.0 (+https://github.com/hyperifyio/dentalguide)"

// excerptRunes bounds the text preview stored for each ingested PDF and the
// share of it shown to the model.
const excerptRunes = 4000

type components struct {
	session *agent.Session
	models  llm.ModelLister
	disk    *catalog.Disk
}

// build wires the model client, search, file catalog and ingestion into one
// session.
func build(ctx context.Context, cfg config.Config, dryRunTools bool) (*components, error) {
	hc := llm.NewHTTPClient(cfg.UploadTimeout + cfg.DownloadTimeout)

	provider := llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.GoogleAPIKey, hc, cfg.LLMTimeout)
	orch := &llmtools.Orchestrator{
		Client:         provider,
		Model:          cfg.Model,
		MaxIterations:  cfg.RecursionLimit,
		PerToolTimeout: cfg.SearchTimeout,
		DryRunTools:    dryRunTools,
	}

	sp, err := newSearchProvider(cfg, hc)
	if err != nil {
		return nil, err
	}
	adapter := &search.Adapter{
		Provider:        search.NewRateLimited(sp, cfg.SearchRateLimit),
		Domains:         cfg.Domains,
		Limit:           cfg.SearchResultsCount,
		MaxCharacters:   cfg.MaxCharactersPerResult,
		MinDateYearsAgo: cfg.MinDateYearsAgo,
	}

	cat, disk, err := newCatalog(ctx, cfg, hc)
	if err != nil {
		return nil, err
	}
	ing := &ingest.Ingester{
		Fetcher: &fetch.Client{
			HTTPClient:        hc,
			UserAgent:         userAgent,
			MaxAttempts:       3,
			PerRequestTimeout: cfg.DownloadTimeout,
			MaxConcurrent:     ingest.DefaultConcurrency,
		},
		Catalog:         cat,
		Robots:          &robots.Checker{HTTPClient: hc, UserAgent: userAgent},
		MaxBytes:        cfg.MaxPDFBytes(),
		MaxExcerpt:      excerptRunes,
		DownloadTimeout: cfg.DownloadTimeout,
		UploadTimeout:   cfg.UploadTimeout,
	}

	session, err := agent.Assemble(cfg, agent.Deps{Reasoner: orch, Search: adapter, Ingester: ing, ExcerptRunes: excerptRunes})
	if err != nil {
		return nil, err
	}
	return &components{session: session, models: provider, disk: disk}, nil
}

func newSearchProvider(cfg config.Config, hc *http.Client) (search.Provider, error) {
	switch cfg.SearchProvider {
	case config.ProviderExa:
		return &search.Exa{BaseURL: cfg.ExaBaseURL, APIKey: cfg.ExaAPIKey, HTTPClient: hc, UserAgent: userAgent}, nil
	case config.ProviderSearxNG:
		return &search.SearxNG{BaseURL: cfg.SearxURL, HTTPClient: hc, UserAgent: userAgent}, nil
	case config.ProviderFile:
		return &search.FileProvider{Path: cfg.SearchFile}, nil
	}
	return nil, fmt.Errorf("%w: search provider %q", config.ErrInvalid, cfg.SearchProvider)
}

func newCatalog(ctx context.Context, cfg config.Config, hc *http.Client) (catalog.Catalog, *catalog.Disk, error) {
	switch cfg.FileCatalog {
	case config.CatalogGemini:
		g, err := catalog.NewGemini(ctx, cfg.GoogleAPIKey, hc)
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	case config.CatalogDisk:
		d := &catalog.Disk{Dir: cfg.FileCatalogDir, StrictPerms: true}
		return d, d, nil
	}
	return nil, nil, fmt.Errorf("%w: file catalog %q", config.ErrInvalid, cfg.FileCatalog)
}

func listModels(ctx context.Context, lister llm.ModelLister, out io.Writer) error {
	list, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		fmt.Fprintln(out, m.ID)
	}
	return nil
}
