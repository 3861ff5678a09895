// Package chunker divides knowledge-base documents into chunks for embedding
// and search.
//
// The splitting strategy follows the document's category so that chunks land
// on natural boundaries: glossary entries, markdown sections, code
// declarations, or plain paragraph windows.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks, strategy := c.ChunkDocument(&types.SourceDocument{
//	    Path:     "docs/guide.md",
//	    Category: types.CategoryDoc,
//	    Content:  content,
//	})
//
//	for _, chunk := range chunks {
//	    fmt.Printf("Chunk %d: %d tokens\n", chunk.Index, chunk.TokenCount)
//	}
//
// # Strategies
//
// The category selects the strategy:
//   - glossary: one atomic chunk per **term**: definition entry
//   - knowledge, doc: one chunk per H1-H3 markdown section
//   - code, contract: one chunk per top-level declaration, plus the import block
//   - everything else: greedy paragraph windows with overlap
//
// Every specialized strategy degrades to paragraph windows when the content
// does not carry the structure its category promised: a "glossary" file
// without bold terms, a "doc" without headings, or "code" the parser cannot
// read. Chunking therefore never fails, and non-blank input always yields at
// least one chunk.
//
// # Budgets
//
// Chunk sizes are governed by a token budget (default 500) with overlap
// between adjacent segment chunks (default 50 tokens). Token counts are
// estimated at 3.5 characters per token, so budgets hold without running a
// tokenizer. Glossary entries are exempt from the budget: a definition
// separated from its term is useless for retrieval.
//
//	c := chunker.NewWithBudgets(300, 30)
//
// # Oversized Content
//
// Content exceeding the budget at its natural granularity is subdivided:
// markdown sections repeat their heading on each piece, code declarations
// repeat their doc comment and declaration line, and plain paragraphs fall
// to line granularity with a short trailing overlap. A single unbroken line
// longer than the budget is sliced on rune boundaries as a last resort, so
// minified or generated content still indexes.
package chunker
