package llmtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/dentalguide/internal/ingest"
	"github.com/hyperifyio/dentalguide/internal/search"
	"github.com/rs/zerolog/log"
)

// GuidelineSearchTool is the stable name of the guideline search tool.
const GuidelineSearchTool = "dental_guideline_search"

const guidelineDescription = "Search authoritative dental sources (ADA, AAPD, CDC, WHO, PubMed, Cochrane and similar) for clinical guidelines, recommendations, position statements and evidence-based protocols. Use a specific query, e.g. \"ADA fluoride recommendations for children\"."

const citationInstructions = "When referencing information from these sources, cite them inline using the index numbers [1], [2], etc."

// Searcher runs one allow-listed search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// PDFIngester ingests candidate PDF URLs found in search results.
type PDFIngester interface {
	IngestAll(ctx context.Context, urls []string) []ingest.Outcome
}

// GuidelineSearch wires the search adapter, and optionally PDF ingestion,
// into a tool handler.
type GuidelineSearch struct {
	Searcher Searcher
	// Ingester is nil unless automatic PDF upload is enabled.
	Ingester PDFIngester
	// Timeout is the per-call budget covering search and ingestion.
	Timeout time.Duration
}

type guidelineArgs struct {
	Query string `json:"query"`
}

// GuidelineFile describes an ingested PDF attached to a result.
type GuidelineFile struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	URI    string `json:"uri,omitempty"`
	Pages  int    `json:"pages,omitempty"`
	Reused bool   `json:"reused,omitempty"`
}

// GuidelineResult is one numbered search hit as the model sees it.
type GuidelineResult struct {
	Index     int            `json:"index"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Published string         `json:"published,omitempty"`
	Content   string         `json:"content"`
	File      *GuidelineFile `json:"file,omitempty"`
}

// GuidelineData is the tool payload.
type GuidelineData struct {
	Query        string            `json:"query"`
	Results      []GuidelineResult `json:"results"`
	Message      string            `json:"message,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
}

var guidelineSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "A specific search query about dental guidelines, procedures, or recommendations"}
	},
	"required": ["query"],
	"additionalProperties": false
}`)

// Register adds the guideline search tool to r.
func (g *GuidelineSearch) Register(r *Registry) error {
	if g.Searcher == nil {
		return fmt.Errorf("%s: searcher is nil", GuidelineSearchTool)
	}
	return r.Register(ToolDefinition{
		StableName:   GuidelineSearchTool,
		SemVer:       "v1.0.0",
		Description:  guidelineDescription,
		JSONSchema:   guidelineSchema,
		Capabilities: []string{"search", "guidelines"},
		Timeout:      g.Timeout,
		Handler:      g.handle,
	})
}

func (g *GuidelineSearch) handle(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args guidelineArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: missing query", ErrInvalidArgs)
	}
	results, err := g.Searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	data := BuildGuidelineData(query, results)
	if g.Ingester != nil && len(results) > 0 {
		g.attachFiles(ctx, &data)
	}
	return json.Marshal(data)
}

// attachFiles ingests candidate PDFs and links the resulting refs to their
// results. Failures only leave the bare URL for citation.
func (g *GuidelineSearch) attachFiles(ctx context.Context, data *GuidelineData) {
	var urls []string
	var idx []int
	for i, r := range data.Results {
		if ingest.IsCandidate(r.URL) {
			urls = append(urls, r.URL)
			idx = append(idx, i)
		}
	}
	if len(urls) == 0 {
		return
	}
	for i, out := range g.Ingester.IngestAll(ctx, urls) {
		if out.Err != nil || out.Ref == nil {
			log.Warn().Err(out.Err).Str("stage", "ingest").Str("url", out.URL).Msg("pdf not ingested; citing url only")
			continue
		}
		data.Results[idx[i]].File = &GuidelineFile{
			ID:     out.Ref.ID,
			Name:   out.Ref.Name,
			URI:    out.Ref.URI,
			Pages:  out.Ref.Pages,
			Reused: out.Reused,
		}
	}
}

// BuildGuidelineData numbers results from 1 and formats publication dates.
// An empty result set carries a rephrase hint instead of instructions.
func BuildGuidelineData(query string, results []search.Result) GuidelineData {
	data := GuidelineData{Query: query, Results: make([]GuidelineResult, 0, len(results))}
	if len(results) == 0 {
		data.Message = fmt.Sprintf("No relevant guidelines or information was found from the trusted dental sources for the query: '%s'. Try rephrasing with more specific terms or including organization names (e.g., 'ADA', 'CDC', 'AAPD').", query)
		return data
	}
	for i, r := range results {
		gr := GuidelineResult{
			Index:   i + 1,
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		}
		if r.Published != nil && !r.Published.IsZero() {
			gr.Published = r.Published.Format("January 2, 2006")
		}
		if strings.TrimSpace(gr.Content) == "" {
			gr.Content = "(No text content available)"
		}
		data.Results = append(data.Results, gr)
	}
	data.Instructions = citationInstructions
	return data
}
