package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration schema. Nested sections mirror the
// environment keys. Pointer fields distinguish "unset" from a zero value that
// carries meaning (0 years disables the recency filter, false disables PDFs).
type FileConfig struct {
	LLM struct {
		Base    string        `yaml:"base" json:"base"`
		Model   string        `yaml:"model" json:"model"`
		Key     string        `yaml:"key" json:"key"`
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"llm" json:"llm"`

	Search struct {
		Provider        string        `yaml:"provider" json:"provider"`
		ExaKey          string        `yaml:"exaKey" json:"exaKey"`
		ExaBase         string        `yaml:"exaBase" json:"exaBase"`
		SearxURL        string        `yaml:"searxURL" json:"searxURL"`
		File            string        `yaml:"file" json:"file"`
		Domains         []string      `yaml:"domains" json:"domains"`
		MinDateYearsAgo *int          `yaml:"minDateYearsAgo" json:"minDateYearsAgo"`
		Results         int           `yaml:"results" json:"results"`
		MaxCharacters   int           `yaml:"maxCharacters" json:"maxCharacters"`
		RateLimit       *float64      `yaml:"rateLimit" json:"rateLimit"`
		Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"search" json:"search"`

	Agent struct {
		RecursionLimit int `yaml:"recursionLimit" json:"recursionLimit"`
	} `yaml:"agent" json:"agent"`

	PDF struct {
		AutoUpload      *bool         `yaml:"autoUpload" json:"autoUpload"`
		MaxSizeMB       int           `yaml:"maxSizeMB" json:"maxSizeMB"`
		Catalog         string        `yaml:"catalog" json:"catalog"`
		CatalogDir      string        `yaml:"catalogDir" json:"catalogDir"`
		DownloadTimeout time.Duration `yaml:"downloadTimeout" json:"downloadTimeout"`
		UploadTimeout   time.Duration `yaml:"uploadTimeout" json:"uploadTimeout"`
	} `yaml:"pdf" json:"pdf"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadFile reads YAML or JSON into FileConfig, choosing the decoder by
// extension and trying both for unknown extensions.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// Apply overlays every value set in the file onto cfg.
func (fc FileConfig) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	str := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	pos := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}

	str(&cfg.LLMBaseURL, fc.LLM.Base)
	str(&cfg.Model, fc.LLM.Model)
	str(&cfg.GoogleAPIKey, fc.LLM.Key)
	dur(&cfg.LLMTimeout, fc.LLM.Timeout)

	if p := strings.ToLower(strings.TrimSpace(fc.Search.Provider)); p != "" {
		cfg.SearchProvider = p
	}
	str(&cfg.ExaAPIKey, fc.Search.ExaKey)
	str(&cfg.ExaBaseURL, fc.Search.ExaBase)
	str(&cfg.SearxURL, fc.Search.SearxURL)
	str(&cfg.SearchFile, fc.Search.File)
	if len(fc.Search.Domains) > 0 {
		cfg.Domains = ParseDomains(strings.Join(fc.Search.Domains, ","))
	}
	if fc.Search.MinDateYearsAgo != nil {
		cfg.MinDateYearsAgo = *fc.Search.MinDateYearsAgo
	}
	pos(&cfg.SearchResultsCount, fc.Search.Results)
	pos(&cfg.MaxCharactersPerResult, fc.Search.MaxCharacters)
	if fc.Search.RateLimit != nil {
		cfg.SearchRateLimit = *fc.Search.RateLimit
	}
	dur(&cfg.SearchTimeout, fc.Search.Timeout)

	pos(&cfg.RecursionLimit, fc.Agent.RecursionLimit)

	if fc.PDF.AutoUpload != nil {
		cfg.AutoUploadPDFs = *fc.PDF.AutoUpload
	}
	pos(&cfg.MaxPDFSizeMB, fc.PDF.MaxSizeMB)
	if c := strings.ToLower(strings.TrimSpace(fc.PDF.Catalog)); c != "" {
		cfg.FileCatalog = c
	}
	str(&cfg.FileCatalogDir, fc.PDF.CatalogDir)
	dur(&cfg.DownloadTimeout, fc.PDF.DownloadTimeout)
	dur(&cfg.UploadTimeout, fc.PDF.UploadTimeout)

	if fc.Verbose {
		cfg.Verbose = true
	}
}
