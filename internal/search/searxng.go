package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/dentalguide/internal/extract"
)

// SearxNG implements Provider against a SearxNG instance's /search endpoint.
// SearxNG has no domain parameter and only coarse date buckets, so the
// allow-list is expressed as site: operators and the adapter post-filters
// hosts and publication dates.
type SearxNG struct {
	BaseURL    string
	APIKey     string // optional
	HTTPClient *http.Client
	UserAgent  string // optional custom UA
}

func (s *SearxNG) Name() string { return "searxng" }

func (s *SearxNG) Search(ctx context.Context, req Request) ([]Result, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("missing searxng base url")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(u.Path, "/search") {
		u.Path = strings.TrimRight(u.Path, "/") + "/search"
	}
	q := u.Query()
	q.Set("q", scopedQuery(req.Query, req.IncludeDomains))
	q.Set("format", "json")
	q.Set("language", "auto")
	q.Set("safesearch", "1")
	q.Set("categories", "general")
	q.Set("count", fmt.Sprintf("%d", limit))
	if req.StartPublished != nil {
		if tr := timeRange(time.Since(*req.StartPublished)); tr != "" {
			q.Set("time_range", tr)
		}
	}
	if s.APIKey != "" {
		q.Set("apikey", s.APIKey)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if s.UserAgent != "" {
		httpReq.Header.Set("User-Agent", s.UserAgent)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: s.Name(), Code: resp.StatusCode}
	}
	var sr searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out = append(out, Result{
			Title:     extract.PlainText(r.Title),
			URL:       strings.TrimSpace(r.URL),
			Published: parsePublished(r.PublishedDate),
			Content:   extract.PlainText(r.Content),
			Source:    s.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type searxResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

// scopedQuery appends "(site:a OR site:b)" to q.
func scopedQuery(q string, domains []string) string {
	if len(domains) == 0 {
		return q
	}
	sites := make([]string, 0, len(domains))
	for _, d := range domains {
		sites = append(sites, "site:"+d)
	}
	return strings.TrimSpace(q) + " (" + strings.Join(sites, " OR ") + ")"
}

// timeRange returns the narrowest SearxNG time_range bucket that still covers
// age, or "" when even a year is too short. Windows wider than a year are
// enforced by the adapter's date filter instead.
func timeRange(age time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case age <= day:
		return "day"
	case age <= 7*day:
		return "week"
	case age <= 31*day:
		return "month"
	case age <= 366*day:
		return "year"
	}
	return ""
}
