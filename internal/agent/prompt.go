package agent

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/ingest"
	"github.com/hyperifyio/dentalguide/internal/search"
)

// citationPrompt instructs the model to cite search results inline and close
// with a Sources section and, when evidence is inconclusive, the forum
// disclaimer.
const citationPrompt = `You are a dental guideline assistant that provides evidence-based information from authoritative sources.

CRITICAL CITATION REQUIREMENTS:
- When you reference information from search results, you MUST include inline citations using the format [1], [2], [3], etc.
- These citation numbers correspond to the numbered sources provided in the search results.
- Always cite your sources immediately after referencing information from them.
- Use multiple citations if information comes from multiple sources: [1][2]
- Include a "Sources" section at the end of your response listing all cited sources with their titles and URLs.
- In the Sources section, put each citation on its own separate line for readability.

Example citation format:
"The American Dental Association recommends fluoride use [1]. Research shows it reduces tooth decay by 25% [2]."

Example Sources section:
## Sources
- [1] Title of Source 1 - URL
- [2] Title of Source 2 - URL

Format each citation as: - [number] Title - URL

DISCLAIMER REQUIREMENT:
- If the search results are unable to confirm a definitive diagnosis, provide insufficient information to reach a conclusion, or the evidence is inconclusive, you MUST include a disclaimer at the end of your response.
- Use this format for the disclaimer:

**Disclaimer:** The information provided is based on available guidelines and research. If the search results are unable to confirm a definitive diagnosis or reach a clear conclusion regarding your specific situation, please post your inquiry in the forum for further discussion and professional consultation.

Be thorough, accurate, and always cite your sources. Include the disclaimer when appropriate.`

// SystemPrompt returns the citation prompt followed by grounding context for
// every uploaded document. Each excerpt is cut to excerptRunes, or to
// ingest.DefaultMaxExcerpt when that is not positive.
func SystemPrompt(files []catalog.FileRef, excerptRunes int) string {
	if len(files) == 0 {
		return citationPrompt
	}
	if excerptRunes <= 0 {
		excerptRunes = ingest.DefaultMaxExcerpt
	}
	var b strings.Builder
	b.WriteString(citationPrompt)
	b.WriteString("\n\nUPLOADED REFERENCE DOCUMENTS:\n")
	b.WriteString("The following documents were uploaded for this conversation. Use them as grounding context, still search for current guidelines, and cite a document by its origin URL (or its file URI when it has none).\n")
	for i, f := range files {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		fmt.Fprintf(&b, "\n[Document %d] %s\n", i+1, name)
		if f.OriginURL != "" {
			fmt.Fprintf(&b, "    Origin: %s\n", f.OriginURL)
		}
		if f.URI != "" {
			fmt.Fprintf(&b, "    File: %s\n", f.URI)
		}
		if f.Pages > 0 {
			fmt.Fprintf(&b, "    Pages: %d\n", f.Pages)
		}
		if ex := strings.TrimSpace(f.Excerpt); ex != "" {
			fmt.Fprintf(&b, "    Excerpt: %s\n", search.Truncate(ex, excerptRunes))
		}
	}
	return b.String()
}
