package config

import (
	"strings"

	"github.com/rs/zerolog/log"
)

var defaultDomains = []string{
	// Professional dental associations
	"ada.org",
	"aapd.org",
	"aae.org",
	"aaop.org",
	"aaoms.org",
	"cdc.gov",
	// Medical associations
	"aap.org",
	"publications.aap.org",
	// Regulators
	"fda.gov",
	// Evidence-based research
	"pubmed.ncbi.nlm.nih.gov",
	"nidcr.nih.gov",
	"nih.gov",
	"cochranelibrary.com",
	"who.int",
	"iadr.org",
	"journals.ada.org",
}

// DefaultDomains returns a fresh copy of the built-in allow-list.
func DefaultDomains() []string {
	return append([]string(nil), defaultDomains...)
}

// ParseDomains turns a comma (or newline) separated list into a normalized
// domain set. Entries are trimmed, lower-cased and deduplicated in order.
// Entries carrying a path or scheme are discarded. An empty result falls back
// to DefaultDomains.
func ParseDomains(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return DefaultDomains()
	}
	raw = strings.ReplaceAll(raw, "\n", ",")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		d := strings.ToLower(strings.TrimSpace(p))
		if d == "" {
			continue
		}
		if strings.Contains(d, "/") || strings.Contains(d, ":") {
			log.Warn().Str("entry", d).Msg("ignoring domain entry with scheme or path")
			continue
		}
		d = strings.TrimSuffix(d, ".")
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	if len(out) == 0 {
		log.Warn().Msg("domain allow-list empty after filtering; using defaults")
		return DefaultDomains()
	}
	return out
}
