package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/dentalguide/internal/config"
)

// options are the flags that steer this run rather than the configuration.
type options struct {
	configPath   string
	question     string
	catalogClear bool
	listModels   bool
	dryRunTools  bool
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
		log.Error().Err(err).Msg("load env files")
		os.Exit(1)
	}
	cfg, opts, err := loadConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		var missing *config.MissingKeysError
		if errors.As(err, &missing) {
			log.Error().Strs("keys", missing.Keys).Msg("missing required configuration")
		} else {
			log.Error().Err(err).Msg("configuration")
		}
		os.Exit(1)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Interrupts cancel single turns inside run; SIGTERM ends the process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, opts, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// loadConfig resolves the configuration in precedence order: defaults, the
// -config file, the environment, then explicitly set flags.
func loadConfig(fs *flag.FlagSet, args []string, lookup config.LookupFunc) (config.Config, options, error) {
	var opts options
	var (
		model        string
		provider     string
		searchFile   string
		domains      string
		recursion    int
		results      int
		yearsAgo     int
		autoUpload   bool
		fileCatalog  string
		catalogDir   string
		verbose      bool
		llmBase      string
		searxURL     string
		maxPDFSizeMB int
	)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML or JSON config file")
	fs.StringVar(&opts.question, "q", "", "Ask one question, print the answer and exit")
	fs.BoolVar(&opts.catalogClear, "catalog.clear", false, "Clear the disk file catalog before starting")
	fs.BoolVar(&opts.listModels, "models", false, "List models available at the LLM endpoint and exit")
	fs.BoolVar(&opts.dryRunTools, "tools.dryRun", false, "Do not execute tools; return their arguments to the model")
	fs.StringVar(&model, "model", "", "Model id")
	fs.StringVar(&llmBase, "llm.base", "", "OpenAI-compatible base URL")
	fs.StringVar(&provider, "search.provider", "", "Search provider: exa, searxng or file")
	fs.StringVar(&searchFile, "search.file", "", "JSON fixture for the file search provider")
	fs.StringVar(&searxURL, "searx.url", "", "SearxNG base URL")
	fs.StringVar(&domains, "domains", "", "Comma-separated guideline domain allow-list")
	fs.IntVar(&results, "search.results", 0, "Results per query")
	fs.IntVar(&yearsAgo, "search.minYearsAgo", 0, "Only return documents published within this many years (0 disables)")
	fs.IntVar(&recursion, "recursion", 0, "Maximum model calls per turn")
	fs.BoolVar(&autoUpload, "pdf.autoUpload", false, "Ingest PDFs named by search results")
	fs.IntVar(&maxPDFSizeMB, "pdf.maxSizeMB", 0, "Per-document download ceiling in MB")
	fs.StringVar(&fileCatalog, "catalog", "", "File catalog: gemini or disk")
	fs.StringVar(&catalogDir, "catalog.dir", "", "Disk catalog directory")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, opts, err
	}

	cfg := config.Default()
	if strings.TrimSpace(opts.configPath) != "" {
		fc, err := config.LoadFile(opts.configPath)
		if err != nil {
			return cfg, opts, fmt.Errorf("config file: %w", err)
		}
		fc.Apply(&cfg)
	}
	if err := config.ApplyEnv(&cfg, lookup); err != nil {
		return cfg, opts, err
	}

	// Only flags given on the command line override file and env values.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model = model
		case "llm.base":
			cfg.LLMBaseURL = llmBase
		case "search.provider":
			cfg.SearchProvider = strings.ToLower(strings.TrimSpace(provider))
		case "search.file":
			cfg.SearchFile = searchFile
		case "searx.url":
			cfg.SearxURL = searxURL
		case "domains":
			cfg.Domains = config.ParseDomains(domains)
		case "search.results":
			cfg.SearchResultsCount = results
		case "search.minYearsAgo":
			cfg.MinDateYearsAgo = yearsAgo
		case "recursion":
			cfg.RecursionLimit = recursion
		case "pdf.autoUpload":
			cfg.AutoUploadPDFs = autoUpload
		case "pdf.maxSizeMB":
			cfg.MaxPDFSizeMB = maxPDFSizeMB
		case "catalog":
			cfg.FileCatalog = strings.ToLower(strings.TrimSpace(fileCatalog))
		case "catalog.dir":
			cfg.FileCatalogDir = catalogDir
		case "v":
			cfg.Verbose = verbose
		}
	})
	return cfg, opts, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, opts options, in io.Reader, out io.Writer) error {
	c, err := build(ctx, cfg, opts.dryRunTools)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if opts.catalogClear {
		if c.disk == nil {
			return errors.New("-catalog.clear requires the disk catalog")
		}
		if err := c.disk.Clear(); err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
		log.Info().Str("dir", c.disk.Dir).Msg("catalog cleared")
	}
	if opts.listModels {
		return listModels(ctx, c.models, out)
	}
	log.Info().
		Str("session", c.session.ID).
		Str("model", cfg.Model).
		Str("search", cfg.SearchProvider).
		Str("catalog", cfg.FileCatalog).
		Bool("auto_upload", cfg.AutoUploadPDFs).
		Int("recursion_limit", cfg.RecursionLimit).
		Msg("session ready")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	r := &repl{session: c.session, out: out, interrupts: sigs, maxBytes: cfg.MaxPDFBytes()}
	if strings.TrimSpace(opts.question) != "" {
		return r.ask(ctx, opts.question)
	}
	return r.loop(ctx, in)
}
