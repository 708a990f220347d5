package search

import (
	"fmt"
	"strings"
)

// Citation points a model answer back at its evidence. Index is 1-based and
// matches the source numbering in the prompt context.
type Citation struct {
	Index      int     `json:"index"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	PageNumber *int    `json:"page_number,omitempty"`
	Score      float64 `json:"score"`
}

// Citations derives the citation list for a set of matches, numbered in
// match order.
func Citations(matches []Match) []Citation {
	citations := make([]Citation, len(matches))
	for i, m := range matches {
		citations[i] = Citation{
			Index:      i + 1,
			DocumentID: m.DocumentID.String(),
			Filename:   m.Filename,
			PageNumber: m.PageNumber,
			Score:      m.Score,
		}
	}
	return citations
}

// Source is one distinct document in a result set, for compact source-list
// display. Citations stay per-chunk; Sources collapse to one per filename.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// Sources deduplicates matches by filename, keeping each file's first
// (best-ranked) occurrence, in match order.
func Sources(matches []Match) []Source {
	seen := make(map[string]bool, len(matches))
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		if seen[m.Filename] {
			continue
		}
		seen[m.Filename] = true
		sources = append(sources, Source{
			DocumentID: m.DocumentID.String(),
			Filename:   m.Filename,
			Score:      m.Score,
		})
	}
	return sources
}

// BuildContext formats matches into the prompt context block. Each source is
// numbered to line up with Citations, with its relevance as a percentage.
// Empty input produces an empty string, not an empty header.
func BuildContext(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("[Relevant documents for context:]")
	for i, m := range matches {
		fmt.Fprintf(&b, "\n\n--- Source %d: %s (relevance: %.0f%%) ---\n%s",
			i+1, m.Filename, m.Score*100, m.Excerpt)
	}
	return b.String()
}
