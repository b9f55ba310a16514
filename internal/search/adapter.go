package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultLimit         = 8
	DefaultMaxCharacters = 3000
)

// ErrEmptyQuery is returned for blank queries without calling the provider.
var ErrEmptyQuery = errors.New("empty query")

// Adapter scopes every query to the domain allow-list and shapes the results
// for the reasoning loop. It holds no state between calls.
type Adapter struct {
	Provider        Provider
	Domains         []string
	Limit           int
	MaxCharacters   int
	MinDateYearsAgo int
	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// StartDate returns the earliest publication date to request, or nil when
// the recency filter is disabled.
func (a *Adapter) StartDate() *time.Time {
	if a.MinDateYearsAgo <= 0 {
		return nil
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	t := now().UTC().AddDate(-a.MinDateYearsAgo, 0, 0).Truncate(24 * time.Hour)
	return &t
}

func (a *Adapter) limit() int {
	if a.Limit > 0 {
		return a.Limit
	}
	return DefaultLimit
}

func (a *Adapter) maxCharacters() int {
	if a.MaxCharacters > 0 {
		return a.MaxCharacters
	}
	return DefaultMaxCharacters
}

// Search runs one provider query. An empty slice with a nil error means the
// provider found nothing inside the allow-list.
func (a *Adapter) Search(ctx context.Context, query string) ([]Result, error) {
	if a.Provider == nil {
		return nil, errors.New("search: no provider configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := a.limit()
	maxChars := a.maxCharacters()
	req := Request{
		Query:          query,
		Limit:          limit,
		IncludeDomains: append([]string(nil), a.Domains...),
		StartPublished: a.StartDate(),
		MaxCharacters:  maxChars,
	}
	start := time.Now()
	raw, err := a.Provider.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", a.Provider.Name(), err)
	}

	out := make([]Result, 0, len(raw))
	for _, r := range Dedupe(raw) {
		if len(a.Domains) > 0 && !HostAllowed(r.URL, a.Domains) {
			log.Debug().Str("stage", "search").Str("url", r.URL).Msg("dropping result outside allow-list")
			continue
		}
		// Undated results pass; providers often omit the date.
		if req.StartPublished != nil && r.Published != nil && r.Published.Before(*req.StartPublished) {
			log.Debug().Str("stage", "search").Str("url", r.URL).Time("published", *r.Published).Msg("dropping result older than recency window")
			continue
		}
		r.Content = Truncate(r.Content, maxChars)
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	log.Debug().
		Str("stage", "search").
		Str("provider", a.Provider.Name()).
		Str("query", query).
		Int("raw", len(raw)).
		Int("results", len(out)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("search complete")
	return out, nil
}
