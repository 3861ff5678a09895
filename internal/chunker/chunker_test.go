package chunker

import (
	"strings"
	"testing"

	"github.com/dshills/kbcontext-mcp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, DefaultMaxTokens, c.maxTokens)
	assert.Equal(t, DefaultOverlapTokens, c.overlapTokens)
}

func TestNewWithBudgets(t *testing.T) {
	tests := []struct {
		name            string
		maxTokens       int
		overlapTokens   int
		expectedMax     int
		expectedOverlap int
	}{
		{"explicit budgets", 300, 30, 300, 30},
		{"zero max falls back", 0, 30, DefaultMaxTokens, 30},
		{"negative max falls back", -1, 30, DefaultMaxTokens, 30},
		{"zero overlap honored", 300, 0, 300, 0},
		{"negative overlap falls back", 300, -1, 300, DefaultOverlapTokens},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWithBudgets(tt.maxTokens, tt.overlapTokens)
			assert.Equal(t, tt.expectedMax, c.maxTokens)
			assert.Equal(t, tt.expectedOverlap, c.overlapTokens)
		})
	}
}

func TestChunkDocument_GlossaryCategory(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "docs/glossary.md",
		Category: types.CategoryGlossary,
		Content:  "# Glossary\n\n**API**: Application Programming Interface.\n\n**REST**: Representational State Transfer.\n",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategyGlossary, strategy)
	require.Len(t, chunks, 2)
	assert.Equal(t, "**API**: Application Programming Interface.", chunks[0].Content)
	assert.Equal(t, "**REST**: Representational State Transfer.", chunks[1].Content)
}

func TestChunkDocument_GlossaryWithoutTermsFallsBack(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "docs/glossary.md",
		Category: types.CategoryGlossary,
		Content:  "Nothing here is a definition.",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategySegments, strategy)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Nothing here is a definition.", chunks[0].Content)
}

func TestChunkDocument_DocCategorySplitsSections(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "docs/guide.md",
		Category: types.CategoryDoc,
		Content:  "# Title\n\nIntro text.\n\n## Section One\n\nBody one.\n\n## Section Two\n\nBody two.",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategySections, strategy)
	require.Len(t, chunks, 3)
	assert.Equal(t, "# Title\n\nIntro text.", chunks[0].Content)
	assert.Equal(t, "## Section One\n\nBody one.", chunks[1].Content)
	assert.Equal(t, "## Section Two\n\nBody two.", chunks[2].Content)
}

func TestChunkDocument_KnowledgeCategorySplitsSections(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "notes/arch.md",
		Category: types.CategoryKnowledge,
		Content:  "## Design\n\nWe shard by tenant.",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategySections, strategy)
	require.Len(t, chunks, 1)
}

func TestChunkDocument_CodeCategorySplitsConstructs(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "pkg/mathutil/sqrt.go",
		Category: types.CategoryCode,
		Content: `package mathutil

import "math"

// Sqrt wraps math.Sqrt.
func Sqrt(x float64) float64 {
	return math.Sqrt(x)
}
`,
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategyConstructs, strategy)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, `import "math"`)
	assert.Contains(t, chunks[1].Content, "func Sqrt")
}

func TestChunkDocument_ContractCategorySplitsConstructs(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "api/schema.ts",
		Category: types.CategoryContract,
		Content:  "export interface Order {\n  id: string;\n  total: number;\n}\n\nexport type OrderID = string;\n",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategyConstructs, strategy)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "interface Order")
	assert.Contains(t, chunks[1].Content, "OrderID")
}

func TestChunkDocument_ImportOnlyCodeFallsBack(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "pkg/empty/imports.go",
		Category: types.CategoryCode,
		Content:  "package empty\n\nimport (\n\t\"fmt\"\n\t\"os\"\n)\n",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategySegments, strategy)
	assert.NotEmpty(t, chunks)
}

func TestChunkDocument_ScriptCategoryUsesSegments(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "scripts/deploy.sh",
		Category: types.CategoryScript,
		Content:  "# Deploy\n\nset -e\necho done",
	}

	chunks, strategy := New().ChunkDocument(doc)

	// Segments ignore markdown structure even when the content looks like it.
	assert.Equal(t, StrategySegments, strategy)
	require.Len(t, chunks, 1)
	assert.Equal(t, "# Deploy\n\nset -e\necho done", chunks[0].Content)
}

func TestChunkDocument_BlankContentYieldsNoChunks(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "notes/empty.md",
		Category: types.CategoryDoc,
		Content:  "   \n\n\t",
	}

	chunks, strategy := New().ChunkDocument(doc)

	assert.Equal(t, StrategySegments, strategy)
	assert.Empty(t, chunks)
}

func TestChunkDocument_NonBlankAlwaysYieldsChunks(t *testing.T) {
	for _, category := range types.AllCategories {
		t.Run(string(category), func(t *testing.T) {
			doc := &types.SourceDocument{
				Path:     "anything.txt",
				Category: category,
				Content:  "plain text with no special structure",
			}

			chunks, _ := New().ChunkDocument(doc)
			assert.NotEmpty(t, chunks)
		})
	}
}

func TestChunkDocument_ChunkMetadata(t *testing.T) {
	doc := &types.SourceDocument{
		Path:     "docs/guide.md",
		Category: types.CategoryDoc,
		Content:  "# A\n\none\n\n## B\n\ntwo",
	}

	chunks, _ := New().ChunkDocument(doc)

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, EstimateTokens(chunk.Content), chunk.TokenCount)
		assert.NoError(t, chunk.Validate())
	}
}

func TestChunk_BareContent(t *testing.T) {
	chunks := New().Chunk("# Title\n\nBody text.", types.CategoryDoc)

	require.Len(t, chunks, 1)
	assert.Equal(t, "# Title\n\nBody text.", chunks[0].Content)
}

func TestChunkDocument_OverlapAcrossSegmentChunks(t *testing.T) {
	a := strings.Repeat("alpha ", 30)
	b := "short bridge paragraph."
	c := strings.Repeat("gamma ", 30)
	doc := &types.SourceDocument{
		Path:     "notes/log.txt",
		Category: types.CategoryOther,
		Content:  strings.TrimSpace(a) + "\n\n" + b + "\n\n" + strings.TrimSpace(c),
	}

	chunks, strategy := NewWithBudgets(60, 10).ChunkDocument(doc)

	assert.Equal(t, StrategySegments, strategy)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Content, b))
	assert.True(t, strings.HasPrefix(chunks[1].Content, b))
}
