// Package types provides shared type definitions for the KBContext MCP server.
//
// This package defines the domain types used across multiple components of
// KBContext: source documents and their categories, chunks, code constructs,
// glossary terms, and search results.
//
// # Core Types
//
// SourceDocument is the unit of ingestion: raw text plus the content category
// assigned by source configuration. The path is carried only as a dialect
// hint for code parsing:
//
//	doc := types.SourceDocument{
//	    Path:     "docs/handbook.md",
//	    Category: types.CategoryKnowledge,
//	    Content:  string(raw),
//	}
//
// Chunk is one ordered fragment of a document, sized for an embedding model's
// input budget:
//
//	chunk := types.Chunk{
//	    Index:      0,
//	    Content:    "## Section A\n\nBody A.",
//	    TokenCount: 7,
//	}
//
// Chunks deliberately carry nothing beyond the ordinal index, the text, and a
// token estimate. Document identity, hashes, and embedding vectors belong to
// the storage layer, which keys chunks by (document, index).
//
// # Categories
//
// Category is a closed set of content kinds. It selects a chunking strategy
// and nothing else:
//
//	glossary            -> term/definition extraction
//	knowledge, doc      -> markdown section splitting
//	code, contract      -> construct extraction
//	script, plugin, ... -> paragraph windowing
//
// ParseCategory maps unknown tags to CategoryOther so a mis-tagged source
// degrades to the default strategy instead of failing.
//
// # Search Results
//
// SearchResult combines chunk content with document metadata and relevance
// scoring. Relevance scores are normalized to [0, 1] range, with higher values
// indicating better matches.
package types
