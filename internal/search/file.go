package search

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// FileProvider loads search results from a local JSON file for offline and
// test use. The file holds an array of
// {"title", "url", "published", "content"} objects.
type FileProvider struct {
	Path string
}

func (f *FileProvider) Name() string { return "file" }

// Search returns entries whose title or content contains any query term.
// An empty query matches everything.
func (f *FileProvider) Search(_ context.Context, req Request) ([]Result, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("file provider path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []Result
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(req.Query))
	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" || r.Title == "" {
			continue
		}
		if req.StartPublished != nil && r.Published != nil && r.Published.Before(*req.StartPublished) {
			continue
		}
		if matchesAny(strings.ToLower(r.Title+" "+r.Content), terms) {
			r.Source = f.Name()
			out = append(out, r)
			if req.Limit > 0 && len(out) >= req.Limit {
				break
			}
		}
	}
	return out, nil
}

func matchesAny(hay string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	for _, t := range terms {
		if strings.Contains(hay, t) {
			return true
		}
	}
	return false
}
