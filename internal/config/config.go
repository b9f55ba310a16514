package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the resolved configuration snapshot. It is built once at startup
// and handed to every component; nothing below main reads the environment.
type Config struct {
	// LLM
	GoogleAPIKey string
	LLMBaseURL   string
	Model        string
	LLMTimeout   time.Duration

	// Search
	SearchProvider         string // exa, searxng, file
	ExaAPIKey              string
	ExaBaseURL             string
	SearxURL               string
	SearchFile             string
	Domains                []string
	MinDateYearsAgo        int
	SearchResultsCount     int
	MaxCharactersPerResult int
	SearchRateLimit        float64
	SearchTimeout          time.Duration

	// Agent loop
	RecursionLimit int

	// PDF ingestion
	AutoUploadPDFs  bool
	MaxPDFSizeMB    int
	FileCatalog     string // gemini, disk
	FileCatalogDir  string
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration

	Verbose bool
}

const (
	ProviderExa     = "exa"
	ProviderSearxNG = "searxng"
	ProviderFile    = "file"

	CatalogGemini = "gemini"
	CatalogDisk   = "disk"
)

// DefaultLLMBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultLLMBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Default returns a Config populated with documented defaults. API keys are
// left empty.
func Default() Config {
	return Config{
		LLMBaseURL:             DefaultLLMBaseURL,
		Model:                  "gemini-2.5-flash",
		LLMTimeout:             90 * time.Second,
		SearchProvider:         ProviderExa,
		ExaBaseURL:             "https://api.exa.ai",
		Domains:                DefaultDomains(),
		MinDateYearsAgo:        5,
		SearchResultsCount:     8,
		MaxCharactersPerResult: 3000,
		SearchRateLimit:        5,
		SearchTimeout:          20 * time.Second,
		RecursionLimit:         25,
		AutoUploadPDFs:         false,
		MaxPDFSizeMB:           25,
		FileCatalog:            CatalogGemini,
		FileCatalogDir:         ".dentalguide-files",
		DownloadTimeout:        60 * time.Second,
		UploadTimeout:          120 * time.Second,
	}
}

// MaxPDFBytes converts the MB ceiling into bytes.
func (c Config) MaxPDFBytes() int64 {
	return int64(c.MaxPDFSizeMB) << 20
}

// ErrInvalid marks a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// MissingKeysError reports every required key that was not provided.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Validate checks required keys and numeric ranges. Missing keys are reported
// together so the user can fix them in one pass.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.GoogleAPIKey) == "" {
		missing = append(missing, EnvGoogleAPIKey)
	}
	switch c.SearchProvider {
	case ProviderExa:
		if strings.TrimSpace(c.ExaAPIKey) == "" {
			missing = append(missing, EnvExaAPIKey)
		}
	case ProviderSearxNG:
		if strings.TrimSpace(c.SearxURL) == "" {
			missing = append(missing, EnvSearxURL)
		}
	case ProviderFile:
		if strings.TrimSpace(c.SearchFile) == "" {
			missing = append(missing, EnvSearchFile)
		}
	default:
		return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvSearchProvider, c.SearchProvider)
	}
	if len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}

	if c.SearchResultsCount < 1 {
		return fmt.Errorf("%w: %s must be >= 1", ErrInvalid, EnvSearchResultsCount)
	}
	if c.MaxCharactersPerResult < 1 {
		return fmt.Errorf("%w: %s must be >= 1", ErrInvalid, EnvMaxCharacters)
	}
	if c.MinDateYearsAgo < 0 {
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, EnvMinDateYearsAgo)
	}
	if c.RecursionLimit < 1 {
		return fmt.Errorf("%w: %s must be >= 1", ErrInvalid, EnvRecursionLimit)
	}
	if c.MaxPDFSizeMB < 1 {
		return fmt.Errorf("%w: %s must be >= 1", ErrInvalid, EnvMaxPDFSizeMB)
	}
	if c.SearchRateLimit < 0 {
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, EnvSearchRateLimit)
	}
	switch c.FileCatalog {
	case CatalogGemini:
	case CatalogDisk:
		if strings.TrimSpace(c.FileCatalogDir) == "" {
			return fmt.Errorf("%w: %s is required for the disk catalog", ErrInvalid, EnvFileCatalogDir)
		}
	default:
		return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvFileCatalog, c.FileCatalog)
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("%w: empty domain allow-list", ErrInvalid)
	}
	return nil
}
