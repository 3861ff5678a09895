package chunker

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxSectionHeadingLevel bounds which headings open a new section. H4-H6
// headings stay inside their parent section so that deeply nested documents
// do not shatter into fragments.
const maxSectionHeadingLevel = 3

// chunkSections splits markdown at H1-H3 headings. Each section keeps its
// heading line; content before the first heading becomes a preamble chunk.
// Sections exceeding maxTokens are subdivided by paragraph with the heading
// repeated on every piece, without overlap (the heading already carries the
// shared context). ok=false means the document has no headings to split on.
func chunkSections(content string, maxTokens int) ([]string, bool) {
	source := []byte(content)
	starts := headingStarts(source)
	if len(starts) == 0 {
		return nil, false
	}

	sections := make([]string, 0, len(starts)+1)
	if pre := strings.TrimSpace(string(source[:starts[0]])); pre != "" {
		sections = append(sections, pre)
	}
	for i, start := range starts {
		end := len(source)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if sec := strings.TrimSpace(string(source[start:end])); sec != "" {
			sections = append(sections, sec)
		}
	}

	chunks := make([]string, 0, len(sections))
	for _, sec := range sections {
		if EstimateTokens(sec) <= maxTokens {
			chunks = append(chunks, sec)
			continue
		}
		chunks = append(chunks, subdivideSection(sec, maxTokens)...)
	}
	return chunks, true
}

// headingStarts returns the byte offsets of the lines holding H1-H3
// headings, in document order. Parsing through goldmark keeps lines that
// merely look like headings inside fenced code blocks from splitting the
// document.
func headingStarts(source []byte) []int {
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var starts []int
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, isHeading := n.(*ast.Heading)
		if !isHeading || h.Level > maxSectionHeadingLevel {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		// Segment offsets point at the heading text, after the markers.
		// Back up to the start of the line so the chunk keeps them.
		off := h.Lines().At(0).Start
		if idx := bytes.LastIndexByte(source[:off], '\n'); idx >= 0 {
			off = idx + 1
		} else {
			off = 0
		}
		starts = append(starts, off)
		return ast.WalkContinue, nil
	})
	return starts
}

// subdivideSection splits one oversized section into budget-sized pieces,
// each re-prefixed with the section heading.
func subdivideSection(section string, maxTokens int) []string {
	lines := strings.SplitN(section, "\n", 2)
	heading := lines[0]
	if len(lines) < 2 || strings.TrimSpace(lines[1]) == "" {
		// A bare heading exceeding the budget cannot be split further.
		return []string{section}
	}

	paragraphs := splitParagraphs(lines[1])
	var chunks []string
	window := []string{heading}
	size := func() int { return EstimateTokens(strings.Join(window, "\n\n")) }

	for _, p := range paragraphs {
		window = append(window, p)
		if size() > maxTokens && len(window) > 2 {
			window = window[:len(window)-1]
			chunks = append(chunks, strings.Join(window, "\n\n"))
			window = []string{heading, p}
		}
	}
	if len(window) > 1 {
		chunks = append(chunks, strings.Join(window, "\n\n"))
	}
	if len(chunks) == 0 {
		return []string{section}
	}
	return chunks
}
