package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys.
const (
	EnvGoogleAPIKey       = "GOOGLE_API_KEY"
	EnvLLMBaseURL         = "LLM_BASE_URL"
	EnvModel              = "MODEL"
	EnvLLMTimeout         = "LLM_TIMEOUT"
	EnvSearchProvider     = "SEARCH_PROVIDER"
	EnvExaAPIKey          = "EXA_API_KEY"
	EnvExaBaseURL         = "EXA_BASE_URL"
	EnvSearxURL           = "SEARX_URL"
	EnvSearchFile         = "SEARCH_FILE"
	EnvDomains            = "DENTAL_GUIDELINE_DOMAINS"
	EnvMinDateYearsAgo    = "MIN_DATE_YEARS_AGO"
	EnvSearchResultsCount = "SEARCH_RESULTS_COUNT"
	EnvMaxCharacters      = "MAX_CHARACTERS_PER_RESULT"
	EnvSearchRateLimit    = "SEARCH_RATE_LIMIT"
	EnvSearchTimeout      = "SEARCH_TIMEOUT"
	EnvRecursionLimit     = "RECURSION_LIMIT"
	EnvAutoUploadPDFs     = "AUTO_UPLOAD_PDFS"
	EnvMaxPDFSizeMB       = "MAX_PDF_SIZE_MB"
	EnvFileCatalog        = "FILE_CATALOG"
	EnvFileCatalogDir     = "FILE_CATALOG_DIR"
	EnvDownloadTimeout    = "DOWNLOAD_TIMEOUT"
	EnvUploadTimeout      = "UPLOAD_TIMEOUT"
	EnvVerbose            = "VERBOSE"
)

// LoadEnvFiles loads dotenv files into the process environment. Existing
// variables win over file values and missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg fields for every key present in the environment.
// Malformed numeric, boolean or duration values are reported rather than
// silently ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	setString := func(dst *string, key string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	setString(&cfg.GoogleAPIKey, EnvGoogleAPIKey)
	setString(&cfg.LLMBaseURL, EnvLLMBaseURL)
	setString(&cfg.Model, EnvModel)
	setString(&cfg.ExaAPIKey, EnvExaAPIKey)
	setString(&cfg.ExaBaseURL, EnvExaBaseURL)
	setString(&cfg.SearxURL, EnvSearxURL)
	setString(&cfg.SearchFile, EnvSearchFile)
	setString(&cfg.FileCatalogDir, EnvFileCatalogDir)
	if v, ok := get(EnvSearchProvider); ok {
		cfg.SearchProvider = strings.ToLower(v)
	}
	if v, ok := get(EnvFileCatalog); ok {
		cfg.FileCatalog = strings.ToLower(v)
	}
	if v, ok := lookup(EnvDomains); ok && strings.TrimSpace(v) != "" {
		cfg.Domains = ParseDomains(v)
	}

	var errs []error
	setInt := func(dst *int, key string) {
		v, ok := get(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v))
			return
		}
		*dst = n
	}
	setInt(&cfg.MinDateYearsAgo, EnvMinDateYearsAgo)
	setInt(&cfg.SearchResultsCount, EnvSearchResultsCount)
	setInt(&cfg.MaxCharactersPerResult, EnvMaxCharacters)
	setInt(&cfg.RecursionLimit, EnvRecursionLimit)
	setInt(&cfg.MaxPDFSizeMB, EnvMaxPDFSizeMB)

	if v, ok := get(EnvSearchRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvSearchRateLimit, v))
		} else {
			cfg.SearchRateLimit = f
		}
	}

	setDuration := func(dst *time.Duration, key string) {
		v, ok := get(key)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, v))
			return
		}
		*dst = d
	}
	setDuration(&cfg.LLMTimeout, EnvLLMTimeout)
	setDuration(&cfg.SearchTimeout, EnvSearchTimeout)
	setDuration(&cfg.DownloadTimeout, EnvDownloadTimeout)
	setDuration(&cfg.UploadTimeout, EnvUploadTimeout)

	setBool := func(dst *bool, key string) {
		v, ok := get(key)
		if !ok {
			return
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
			return
		}
		*dst = b
	}
	setBool(&cfg.AutoUploadPDFs, EnvAutoUploadPDFs)
	setBool(&cfg.Verbose, EnvVerbose)

	return errors.Join(errs...)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
