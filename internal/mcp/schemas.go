package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Enum vocabularies surfaced through the tool schemas. They mirror what
// the chunker and searcher accept; tools.go revalidates on the way in.
var (
	categoryValues   = []string{"glossary", "knowledge", "doc", "code", "contract", "script", "plugin", "other"}
	strategyValues   = []string{"glossary", "sections", "constructs", "segments"}
	searchModeValues = []string{"hybrid", "vector", "keyword"}
)

// Property constructors for the tool input schemas. MCP clients consume
// these as plain JSON Schema, so everything stays map[string]interface{}.

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func boolProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc, "default": false}
}

// limitProp builds a result-limit parameter: default 10, floor 1, and a
// tool-specific ceiling.
func limitProp(desc string, upper int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": desc,
		"default":     10,
		"minimum":     1,
		"maximum":     upper,
	}
}

func enumArrayProp(desc string, values []string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": desc,
		"items": map[string]interface{}{
			"type": "string",
			"enum": values,
		},
	}
}

func objectSchema(props map[string]interface{}, required ...string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// indexKnowledgeTool describes index_knowledge, which (re)indexes a
// repository so the other tools have something to operate on.
func indexKnowledgeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_knowledge",
		Description: "Index a knowledge repository (markdown, glossaries, code, plain text) to make it searchable",
		InputSchema: objectSchema(map[string]interface{}{
			"path":                stringProp("Absolute path to the knowledge repository root"),
			"force_reindex":       boolProp("If true, re-chunk every document ignoring stored content hashes (full rebuild)"),
			"generate_embeddings": boolProp("If true, generate vector embeddings for chunks (requires an embedding provider)"),
		}, "path"),
	}
}

// searchKnowledgeTool describes search_knowledge, the main retrieval
// entry point. The filters object is optional and every field inside it
// is independently optional.
func searchKnowledgeTool() mcp.Tool {
	filters := map[string]interface{}{
		"type":        "object",
		"description": "Optional filters to narrow search",
		"properties": map[string]interface{}{
			"categories":   enumArrayProp("Filter by document category", categoryValues),
			"strategies":   enumArrayProp("Filter by the chunking strategy that produced the chunk", strategyValues),
			"path_pattern": stringProp("Glob pattern on document paths (e.g., 'docs/**')"),
			"min_relevance": map[string]interface{}{
				"type":        "number",
				"description": "Minimum relevance score threshold (0.0-1.0)",
				"minimum":     0.0,
				"maximum":     1.0,
			},
		},
	}
	mode := map[string]interface{}{
		"type":        "string",
		"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
		"enum":        searchModeValues,
		"default":     "hybrid",
	}
	return mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search an indexed knowledge repository with natural language or keyword queries",
		InputSchema: objectSchema(map[string]interface{}{
			"path":        stringProp("Absolute path to an indexed knowledge repository"),
			"query":       stringProp("Search query (natural language or keywords)"),
			"limit":       limitProp("Maximum number of results to return (1-100)", 100),
			"filters":     filters,
			"search_mode": mode,
		}, "path", "query"),
	}
}

// lookupTermTool describes lookup_term, the glossary fast path.
func lookupTermTool() mcp.Tool {
	return mcp.Tool{
		Name:        "lookup_term",
		Description: "Look up a glossary term and return its definition(s) from indexed glossary documents",
		InputSchema: objectSchema(map[string]interface{}{
			"path":  stringProp("Absolute path to an indexed knowledge repository"),
			"term":  stringProp("Term to look up (exact match first, then full-text fallback)"),
			"limit": limitProp("Maximum number of definitions to return (1-50)", 50),
		}, "path", "term"),
	}
}

// getStatusTool describes get_status.
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for a knowledge repository",
		InputSchema: objectSchema(map[string]interface{}{
			"path": stringProp("Absolute path to a knowledge repository"),
		}, "path"),
	}
}
