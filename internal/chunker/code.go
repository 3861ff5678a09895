package chunker

import (
	"regexp"
	"strings"

	"github.com/dshills/kbcontext-mcp/internal/parser"
)

// declHeaderRe locates the declaration line inside a construct's text.
// Everything above it (doc comments, decorators) plus the line itself is the
// header that subdivision repeats on every piece.
var declHeaderRe = regexp.MustCompile(`^\s*(?:export\s+|public\s+|private\s+|protected\s+|abstract\s+|declare\s+|default\s+|static\s+|async\s+)*(?:class|interface|type|enum|function|func|const|let|var)\b`)

// chunkConstructs splits source code along its top-level declarations, each
// carried with its preceding doc comment. The import block, when present,
// forms its own chunk so dependency context stays searchable. ok=false when
// the source cannot be parsed or yields no declarations (an import-only
// file has nothing worth indexing structurally), letting the caller fall
// back to plain segmentation.
func chunkConstructs(content string, dialect parser.Dialect, maxChars int) ([]string, bool) {
	result, err := parser.Parse([]byte(content), dialect)
	if err != nil || result == nil {
		return nil, false
	}

	var chunks []string
	if result.ImportBlock != "" {
		chunks = append(chunks, result.ImportBlock)
	}

	declarations := 0
	for _, c := range result.Constructs {
		body := strings.TrimSpace(c.Text)
		if body == "" {
			continue
		}
		declarations++
		if len(body) <= maxChars {
			chunks = append(chunks, body)
			continue
		}
		chunks = append(chunks, subdivideConstruct(body, maxChars)...)
	}
	if declarations == 0 {
		return nil, false
	}
	return chunks, true
}

// subdivideConstruct splits one oversized declaration by line, repeating the
// header (doc comment through the declaration line) on every piece. No
// overlap beyond the header: code lines are not prose, repeating them adds
// noise instead of context.
func subdivideConstruct(construct string, maxChars int) []string {
	lines := strings.Split(construct, "\n")
	declIdx := 0
	for i, line := range lines {
		if declHeaderRe.MatchString(line) {
			declIdx = i
			break
		}
	}
	header := strings.Join(lines[:declIdx+1], "\n")
	body := lines[declIdx+1:]
	if len(body) == 0 {
		return []string{construct}
	}

	var chunks []string
	window := header
	packed := 0
	for _, line := range body {
		if packed > 0 && len(window)+1+len(line) > maxChars {
			chunks = append(chunks, window)
			window = header
			packed = 0
		}
		window += "\n" + line
		packed++
	}
	if packed > 0 {
		chunks = append(chunks, window)
	}
	if len(chunks) == 0 {
		return []string{construct}
	}
	return chunks
}
