package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Exa implements Provider against the hosted Exa search API. Domain and date
// filters are applied server-side.
type Exa struct {
	BaseURL    string // defaults to https://api.exa.ai
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
}

func (e *Exa) Name() string { return "exa" }

type exaRequest struct {
	Query              string      `json:"query"`
	Type               string      `json:"type"`
	NumResults         int         `json:"numResults"`
	IncludeDomains     []string    `json:"includeDomains,omitempty"`
	StartPublishedDate string      `json:"startPublishedDate,omitempty"`
	Contents           exaContents `json:"contents"`
}

type exaContents struct {
	Text exaText `json:"text"`
}

type exaText struct {
	MaxCharacters   int  `json:"maxCharacters,omitempty"`
	IncludeHTMLTags bool `json:"includeHtmlTags"`
}

type exaResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
	Error string `json:"error"`
}

func (e *Exa) Search(ctx context.Context, req Request) ([]Result, error) {
	if strings.TrimSpace(e.APIKey) == "" {
		return nil, fmt.Errorf("missing exa api key")
	}
	base := strings.TrimRight(e.BaseURL, "/")
	if base == "" {
		base = "https://api.exa.ai"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	body := exaRequest{
		Query:          req.Query,
		Type:           "auto",
		NumResults:     limit,
		IncludeDomains: req.IncludeDomains,
		Contents:       exaContents{Text: exaText{MaxCharacters: req.MaxCharacters}},
	}
	if req.StartPublished != nil {
		body.StartPublishedDate = req.StartPublished.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-api-key", e.APIKey)
	if e.UserAgent != "" {
		httpReq.Header.Set("User-Agent", e.UserAgent)
	}
	hc := e.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var er exaResponse
		if json.Unmarshal(msg, &er) == nil && er.Error != "" {
			return nil, &StatusError{Provider: e.Name(), Code: resp.StatusCode, Message: er.Error}
		}
		return nil, &StatusError{Provider: e.Name(), Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	var er exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode exa response: %w", err)
	}
	out := make([]Result, 0, len(er.Results))
	for _, r := range er.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, Result{
			Title:     strings.TrimSpace(r.Title),
			URL:       strings.TrimSpace(r.URL),
			Published: parsePublished(r.PublishedDate),
			Content:   strings.TrimSpace(r.Text),
			Source:    e.Name(),
		})
	}
	return out, nil
}

// parsePublished accepts the date layouts seen from search providers.
func parsePublished(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
