package chunker

import (
	"regexp"
	"strings"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

var (
	// glossaryTermRe anchors a bolded term at a line start, optionally
	// behind a list bullet. Bold emphasis inside definition prose does not
	// open a new entry.
	glossaryTermRe = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+][ \t]+)?\*\*([^*\n]+?)\*\*`)

	// glossaryHeadingRe marks heading lines, which terminate a running
	// definition.
	glossaryHeadingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]`)

	// glossarySeparatorRe strips the separator between term and definition.
	glossarySeparatorRe = regexp.MustCompile(`^[:\-–—][ \t]*`)
)

// chunkGlossary extracts term/definition pairs as atomic chunks, one per
// bolded term. Entries are never split against the budget: a definition
// separated from its term is useless for retrieval. ok=false means the
// content carries no bold-term structure and the tag was likely wrong.
func chunkGlossary(content string) ([]string, bool) {
	terms := ExtractTerms(content)
	if len(terms) == 0 {
		return nil, false
	}

	chunks := make([]string, 0, len(terms))
	for i := range terms {
		chunks = append(chunks, formatTerm(&terms[i]))
	}
	return chunks, true
}

// ExtractTerms returns the glossary entries of content in source order.
// Each definition runs from its term to the next term, the next heading, or
// end of input. The boundaries are computed by index arithmetic since RE2
// has no lookahead. The indexer also calls this to fill the term lookup
// table.
func ExtractTerms(content string) []types.Term {
	matches := glossaryTermRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}
	headings := glossaryHeadingRe.FindAllStringIndex(content, -1)

	terms := make([]types.Term, 0, len(matches))
	for i, m := range matches {
		term := strings.TrimSpace(content[m[2]:m[3]])

		defStart := m[1]
		defEnd := len(content)
		if i+1 < len(matches) {
			defEnd = matches[i+1][0]
		}
		for _, h := range headings {
			if h[0] >= defStart && h[0] < defEnd {
				defEnd = h[0]
				break
			}
		}

		def := strings.TrimSpace(content[defStart:defEnd])
		def = strings.TrimSpace(glossarySeparatorRe.ReplaceAllString(def, ""))

		terms = append(terms, types.Term{Term: term, Definition: def})
	}
	return terms
}

// formatTerm reconstructs the canonical entry shape.
func formatTerm(t *types.Term) string {
	if t.Definition == "" {
		return "**" + t.Term + "**:"
	}
	return "**" + t.Term + "**: " + t.Definition
}
