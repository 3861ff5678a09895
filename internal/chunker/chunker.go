package chunker

import (
	"github.com/dshills/kbcontext-mcp/internal/parser"
	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// Strategy identifies which splitting approach produced a set of chunks.
// It is recorded per document so search results can report how their
// content was carved up.
type Strategy string

const (
	// StrategyGlossary emits one atomic chunk per term definition.
	StrategyGlossary Strategy = "glossary"
	// StrategySections splits markdown at H1-H3 headings.
	StrategySections Strategy = "sections"
	// StrategyConstructs splits source code at top-level declarations.
	StrategyConstructs Strategy = "constructs"
	// StrategySegments is the paragraph-window fallback that works on any text.
	StrategySegments Strategy = "segments"
)

// Chunker splits source documents into indexable chunks. The strategy is
// picked from the document's category, and every specialized strategy falls
// back to plain segmentation when the content does not carry the structure
// the category promised. Chunking never fails: worst case the document
// becomes one or more plain segments.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a Chunker with the default budgets.
func New() *Chunker {
	return NewWithBudgets(DefaultMaxTokens, DefaultOverlapTokens)
}

// NewWithBudgets creates a Chunker with explicit budgets. A non-positive
// maxTokens or a negative overlapTokens falls back to the default; an
// overlap of zero is honored and disables overlap entirely.
func NewWithBudgets(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// ChunkDocument splits doc into chunks, deriving the code dialect from the
// document path. It reports the strategy that actually produced the chunks,
// which may be StrategySegments even for a tagged category when the content
// lacked the expected structure.
func (c *Chunker) ChunkDocument(doc *types.SourceDocument) ([]types.Chunk, Strategy) {
	return c.chunk(doc.Content, doc.Category, parser.DialectFromPath(doc.Path))
}

// Chunk splits bare content without a path. Code content is parsed with
// dialect detection left to the parser.
func (c *Chunker) Chunk(content string, category types.Category) []types.Chunk {
	chunks, _ := c.chunk(content, category, parser.DialectUnknown)
	return chunks
}

func (c *Chunker) chunk(content string, category types.Category, dialect parser.Dialect) ([]types.Chunk, Strategy) {
	switch category {
	case types.CategoryGlossary:
		if pieces, ok := chunkGlossary(content); ok {
			return buildChunks(pieces), StrategyGlossary
		}
	case types.CategoryKnowledge, types.CategoryDoc:
		if pieces, ok := chunkSections(content, c.maxTokens); ok {
			return buildChunks(pieces), StrategySections
		}
	case types.CategoryCode, types.CategoryContract:
		if pieces, ok := chunkConstructs(content, dialect, maxCharsFor(c.maxTokens)); ok {
			return buildChunks(pieces), StrategyConstructs
		}
	}
	return buildChunks(chunkSegments(content, c.maxTokens, c.overlapTokens)), StrategySegments
}

// buildChunks wraps raw chunk texts with their index and token estimate.
func buildChunks(pieces []string) []types.Chunk {
	chunks := make([]types.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, types.Chunk{
			Index:      i,
			Content:    p,
			TokenCount: EstimateTokens(p),
		})
	}
	return chunks
}
