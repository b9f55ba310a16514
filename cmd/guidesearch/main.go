package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/dentalguide/internal/config"
	"github.com/hyperifyio/dentalguide/internal/llm"
	"github.com/hyperifyio/dentalguide/internal/llmtools"
	"github.com/hyperifyio/dentalguide/internal/search"
)

// guidesearch runs one query through the scoped search adapter and prints
// what the reasoning loop would see.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		provider string
		asJSON   bool
	)
	flag.StringVar(&provider, "provider", "", "Search provider override: exa, searxng or file")
	flag.BoolVar(&asJSON, "json", false, "Print the tool payload as JSON")
	flag.Parse()

	q := "dental amalgam safety"
	if flag.NArg() > 0 {
		q = strings.Join(flag.Args(), " ")
	}

	_ = config.LoadEnvFiles(".env.local", ".env")
	cfg := config.Default()
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}
	if provider != "" {
		cfg.SearchProvider = strings.ToLower(provider)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SearchTimeout+5*time.Second)
	defer cancel()
	if err := run(ctx, cfg, q, asJSON, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("search failed")
	}
}

func run(ctx context.Context, cfg config.Config, query string, asJSON bool, out io.Writer) error {
	hc := llm.NewHTTPClient(cfg.SearchTimeout)
	var p search.Provider
	switch cfg.SearchProvider {
	case config.ProviderExa:
		p = &search.Exa{BaseURL: cfg.ExaBaseURL, APIKey: cfg.ExaAPIKey, HTTPClient: hc, UserAgent: "guidesearch/1.0"}
	case config.ProviderSearxNG:
		p = &search.SearxNG{BaseURL: cfg.SearxURL, HTTPClient: hc, UserAgent: "guidesearch/1.0"}
	case config.ProviderFile:
		p = &search.FileProvider{Path: cfg.SearchFile}
	default:
		return fmt.Errorf("unknown provider %q", cfg.SearchProvider)
	}
	a := &search.Adapter{
		Provider:        p,
		Domains:         cfg.Domains,
		Limit:           cfg.SearchResultsCount,
		MaxCharacters:   cfg.MaxCharactersPerResult,
		MinDateYearsAgo: cfg.MinDateYearsAgo,
	}
	res, err := a.Search(ctx, query)
	if err != nil {
		return err
	}
	data := llmtools.BuildGuidelineData(query, res)
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	if data.Message != "" {
		fmt.Fprintln(out, data.Message)
		return nil
	}
	for _, r := range data.Results {
		fmt.Fprintf(out, "[%d] %s - %s", r.Index, r.Title, r.URL)
		if r.Published != "" {
			fmt.Fprintf(out, " (%s)", r.Published)
		}
		fmt.Fprintln(out)
	}
	return nil
}
