package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// paragraphRe splits on blank-line boundaries, tolerating whitespace-only
// separator lines.
var paragraphRe = regexp.MustCompile(`\n[ \t\r]*\n+`)

// lineOverlapCount is the fixed overlap applied when an oversized paragraph
// is re-split at line granularity.
const lineOverlapCount = 3

// chunkSegments is the universal fallback strategy: greedy paragraph
// windowing with token-bounded overlap, degrading to line windowing for
// oversized paragraphs and to raw slicing for unbroken lines, so progress is
// guaranteed on any input.
func chunkSegments(content string, maxTokens, overlapTokens int) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	var chunks []string
	var buf []string

	join := func() string { return strings.Join(buf, "\n\n") }

	for _, p := range splitParagraphs(trimmed) {
		// A paragraph that alone exceeds the budget gets line-granularity
		// treatment; anything pending flushes first to keep source order.
		if EstimateTokens(p) > maxTokens {
			if len(buf) > 0 {
				chunks = append(chunks, join())
				buf = nil
			}
			chunks = append(chunks, splitLongParagraph(p, maxTokens)...)
			continue
		}

		if len(buf) > 0 && EstimateTokens(join()+"\n\n"+p) > maxTokens {
			chunks = append(chunks, join())
			last := buf[len(buf)-1]
			buf = nil
			// Seed the next window with the final flushed paragraph when it
			// is small enough to serve as overlap and leaves room for the
			// incoming paragraph.
			if overlapTokens > 0 && EstimateTokens(last) <= overlapTokens &&
				EstimateTokens(last+"\n\n"+p) <= maxTokens {
				buf = []string{last}
			}
		}
		buf = append(buf, p)
	}
	if len(buf) > 0 {
		chunks = append(chunks, join())
	}
	return chunks
}

// splitParagraphs breaks text at blank lines, dropping empty fragments.
func splitParagraphs(text string) []string {
	parts := paragraphRe.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitLongParagraph re-splits one oversized paragraph at line granularity
// with the same greedy logic. The overlap here is fixed at the trailing
// lineOverlapCount lines rather than token-bounded, and is skipped whenever
// carrying it would stall the window.
func splitLongParagraph(paragraph string, maxTokens int) []string {
	var chunks []string
	var window []string

	join := func() string { return strings.Join(window, "\n") }

	for _, line := range strings.Split(paragraph, "\n") {
		if EstimateTokens(line) > maxTokens {
			if len(window) > 0 {
				chunks = append(chunks, join())
				window = nil
			}
			chunks = append(chunks, sliceRawLine(line, maxTokens)...)
			continue
		}

		if len(window) > 0 && EstimateTokens(join()+"\n"+line) > maxTokens {
			chunks = append(chunks, join())
			if len(window) > lineOverlapCount {
				tail := window[len(window)-lineOverlapCount:]
				if EstimateTokens(strings.Join(tail, "\n")+"\n"+line) <= maxTokens {
					window = append([]string(nil), tail...)
				} else {
					window = nil
				}
			} else {
				window = nil
			}
		}
		window = append(window, line)
	}
	if len(window) > 0 {
		chunks = append(chunks, join())
	}
	return chunks
}

// sliceRawLine cuts a single line longer than the whole budget into
// character windows, backing cut points off to rune boundaries.
func sliceRawLine(line string, maxTokens int) []string {
	maxChars := maxCharsFor(maxTokens)
	if maxChars < 1 {
		maxChars = 1
	}

	var out []string
	for len(line) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxChars
		}
		out = append(out, line[:cut])
		line = line[cut:]
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}
