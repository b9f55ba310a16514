package search

import (
	"context"
	"fmt"
	"time"
)

// Result is a single hit returned to the reasoning loop.
type Result struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Published *time.Time `json:"published,omitempty"`
	Content   string     `json:"content"`
	Source    string     `json:"source"` // provider name for observability
}

// Request carries everything a provider needs for one query. Providers with
// native support apply the filters server-side; the rest approximate them.
type Request struct {
	Query          string
	Limit          int
	IncludeDomains []string
	// StartPublished, when non-nil, asks for documents published on or after
	// this date.
	StartPublished *time.Time
	// MaxCharacters asks the provider to cap per-result text. The adapter
	// truncates again regardless.
	MaxCharacters int
}

// Provider is implemented by hosted and local search backends.
type Provider interface {
	Search(ctx context.Context, req Request) ([]Result, error)
	Name() string
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s status: %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s status: %d", e.Provider, e.Code)
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
