// Package validate checks a finished answer's citations against its Sources
// section and the domain allow-list.
package validate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperifyio/dentalguide/internal/search"
)

var (
	citeRe   = regexp.MustCompile(`\[(\d+)\]`)
	sourceRe = regexp.MustCompile(`^(?:[-*]\s*|\d+\.\s*)?\[(\d+)\]\s*(.*)$`)
	urlRe    = regexp.MustCompile(`(?:https?|file)://[^\s)>\]]+`)
)

// Source is one parsed line of the Sources section.
type Source struct {
	Index int
	Title string
	URL   string
}

// Report summarizes an answer's citations. Slices are sorted and free of
// duplicates.
type Report struct {
	// Cited lists the [n] markers used in the body.
	Cited []int
	// Sources are the entries of the Sources section in order.
	Sources []Source
	// Missing lists body citations with no Sources entry.
	Missing []int
	// Incomplete lists Sources entries lacking a title or a URL.
	Incomplete []int
	// OffList lists source URLs outside the domain allow-list that are not
	// accepted documents either.
	OffList       []string
	HasDisclaimer bool
}

// OK reports whether the answer needs no warning.
func (r Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Incomplete) == 0 && len(r.OffList) == 0
}

// Answer parses markdown and checks it. An empty domains list skips the
// allow-list check. URLs listed in accepted, such as the file and origin URIs
// of documents uploaded in the session, always pass it.
func Answer(markdown string, domains []string, accepted ...string) Report {
	ok := make(map[string]bool, len(accepted))
	for _, u := range accepted {
		if u = strings.TrimSpace(u); u != "" {
			ok[u] = true
		}
	}
	body, sources := splitSources(markdown)
	rep := Report{
		Cited:         citations(body),
		HasDisclaimer: strings.Contains(markdown, "**Disclaimer:**"),
	}

	have := make(map[int]bool)
	for _, line := range sources {
		m := sourceRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		rest := strings.TrimSpace(m[2])
		src := Source{Index: n, URL: urlRe.FindString(rest)}
		title := strings.ReplaceAll(strings.Replace(rest, src.URL, "", 1), "()", "")
		src.Title = strings.Trim(title, " -–:<>[]")
		rep.Sources = append(rep.Sources, src)
		have[n] = true
		if src.URL == "" || !hasLetters(src.Title) {
			rep.Incomplete = append(rep.Incomplete, n)
		}
		if src.URL != "" && len(domains) > 0 && !ok[src.URL] && !search.HostAllowed(src.URL, domains) {
			rep.OffList = append(rep.OffList, src.URL)
		}
	}
	for _, n := range rep.Cited {
		if !have[n] {
			rep.Missing = append(rep.Missing, n)
		}
	}
	return rep
}

// splitSources returns the text before a "Sources" or "References" heading
// and the non-blank lines under it, up to the next heading or disclaimer.
func splitSources(markdown string) (string, []string) {
	lines := strings.Split(markdown, "\n")
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if !strings.HasPrefix(t, "#") {
			continue
		}
		h := strings.ToLower(strings.TrimSpace(strings.TrimLeft(t, "#")))
		if h != "sources" && h != "references" {
			continue
		}
		var out []string
		for _, s := range lines[i+1:] {
			s = strings.TrimSpace(s)
			if strings.HasPrefix(s, "#") || strings.HasPrefix(s, "**Disclaimer") {
				break
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return strings.Join(lines[:i], "\n"), out
	}
	return markdown, nil
}

func citations(body string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range citeRe.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func hasLetters(s string) bool {
	letters := 0
	for _, r := range s {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			letters++
		}
	}
	return letters >= 3
}
