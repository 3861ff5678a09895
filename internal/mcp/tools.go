package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/kbcontext-mcp/internal/indexer"
	"github.com/dshills/kbcontext-mcp/internal/searcher"
	"github.com/dshills/kbcontext-mcp/internal/storage"
	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// JSON-RPC error codes surfaced to MCP clients. The -32000 range holds
// implementation-defined server errors.
const (
	ErrorCodeInvalidParams      = -32602 // malformed or out-of-range parameters
	ErrorCodeInternalError      = -32603 // storage, indexer, or searcher failure
	ErrorCodeIndexingInProgress = -32002 // another index run holds the lock
	ErrorCodeNotIndexed         = -32003 // repository has no indexed source
	ErrorCodeEmptyQuery         = -32004 // blank query or term
)

// handleIndexKnowledge serves the index_knowledge tool.
func (s *Server) handleIndexKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := repoPathArg(args)
	if err != nil {
		return nil, err
	}

	config := &indexer.Config{
		Force:              getBoolDefault(args, "force_reindex", false),
		GenerateEmbeddings: getBoolDefault(args, "generate_embeddings", false),
	}

	stats, err := s.indexer.IndexRepository(ctx, path, config)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"path": path,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Cached queries for this source predate the new index; drop them.
	if source, err := s.storage.GetSource(ctx, path); err == nil {
		_ = s.searcher.InvalidateCache(ctx, source.ID)
	}

	response := map[string]interface{}{
		"indexed":              true,
		"documents_indexed":    stats.DocumentsIndexed,
		"documents_skipped":    stats.DocumentsSkipped,
		"documents_failed":     stats.DocumentsFailed,
		"terms_extracted":      stats.TermsExtracted,
		"chunks_created":       stats.ChunksCreated,
		"embeddings_generated": stats.EmbeddingsGenerated,
		"embeddings_failed":    stats.EmbeddingsFailed,
		"duration_ms":          stats.Duration.Milliseconds(),
	}

	// Per-document failures are reported but capped so a broken tree
	// does not flood the client.
	if n := len(stats.ErrorMessages); n > 5 {
		response["errors"] = stats.ErrorMessages[:5]
		response["error_count"] = n
	} else if n > 0 {
		response["errors"] = stats.ErrorMessages
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchKnowledge serves the search_knowledge tool.
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := repoPathArg(args)
	if err != nil {
		return nil, err
	}
	query, err := textArg(args, "query")
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args, 100)
	if err != nil {
		return nil, err
	}

	mode := getStringDefault(args, "search_mode", "hybrid")
	if !slices.Contains(searchModeValues, mode) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": searchModeValues,
		})
	}

	filters, err := parseSearchFilters(args)
	if err != nil {
		return nil, err
	}

	source, err := s.resolveSource(ctx, path)
	if err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     searcher.SearchMode(mode),
		Filters:  filters,
		SourceID: source.ID,
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":            r.Rank,
			"relevance_score": r.RelevanceScore,
			"chunk_index":     r.ChunkIndex,
			"content":         r.Content,
		}
		if r.Document != nil {
			entry["path"] = r.Document.Path
			entry["category"] = string(r.Document.Category)
			entry["strategy"] = r.Document.Strategy
		}
		results = append(results, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":         query,
		"search_mode":   string(resp.SearchMode),
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	})), nil
}

// handleLookupTerm serves the lookup_term tool.
func (s *Server) handleLookupTerm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := repoPathArg(args)
	if err != nil {
		return nil, err
	}
	term, err := textArg(args, "term")
	if err != nil {
		return nil, err
	}
	limit, err := limitArg(args, 50)
	if err != nil {
		return nil, err
	}

	source, err := s.resolveSource(ctx, path)
	if err != nil {
		return nil, err
	}

	matches, err := s.searcher.LookupTerm(ctx, source.ID, term, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "term lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	formatted := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		entry := map[string]interface{}{
			"term":       m.Term.Term,
			"definition": m.Term.Definition,
			"exact":      m.Exact,
		}
		if m.Document != nil {
			entry["path"] = m.Document.Path
		}
		formatted = append(formatted, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"term":    term,
		"found":   len(matches) > 0,
		"matches": formatted,
	})), nil
}

// handleGetStatus serves the get_status tool. Unlike the other tools an
// unindexed repository is not an error here, just a reportable state.
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := repoPathArg(args)
	if err != nil {
		return nil, err
	}

	source, err := s.storage.GetSource(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Repository not indexed. Use the index_knowledge tool to index it.",
		})), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get repository status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status, err := s.storage.GetStatus(ctx, source.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed": true,
		"source": map[string]interface{}{
			"path":            source.RootPath,
			"name":            source.Name,
			"index_version":   source.IndexVersion,
			"last_indexed_at": source.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"documents_count":  status.DocumentsCount,
			"failed_documents": status.FailedDocuments,
			"terms_count":      status.TermsCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Parameter extraction. Every tool shares the same leading steps, so
// each helper returns a ready MCPError when its parameter is bad.

// requireArgs pulls the argument map out of a tool call.
func requireArgs(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// repoPathArg extracts the required path parameter, checks it points at
// a readable directory, and returns it cleaned.
func repoPathArg(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// textArg extracts a required string parameter that must not be blank,
// returning it trimmed.
func textArg(args map[string]interface{}, key string) (string, error) {
	val, _ := args[key].(string)
	val = strings.TrimSpace(val)
	if val == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, key+" parameter is required and cannot be empty", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// limitArg validates the optional limit parameter against a per-tool
// ceiling.
func limitArg(args map[string]interface{}, upper int) (int, error) {
	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > upper {
		return 0, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", upper), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

// resolveSource maps a repository path to its indexed source row,
// translating a missing row into the not-indexed error.
func (s *Server) resolveSource(ctx context.Context, path string) (*storage.Source, error) {
	source, err := s.storage.GetSource(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "repository not indexed", map[string]interface{}{
			"path": path,
			"hint": "run the index_knowledge tool first",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to look up repository", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return source, nil
}

// parseSearchFilters converts the filters argument into storage filters.
// A missing or empty filters object yields nil (no filtering). Category
// and strategy names are case-insensitive and validated against the
// same vocabularies the tool schema advertises.
func parseSearchFilters(args map[string]interface{}) (*storage.SearchFilters, error) {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	filters := &storage.SearchFilters{}

	if cats, ok := raw["categories"].([]interface{}); ok {
		for _, entry := range cats {
			name, ok := entry.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "category filter must be a string", map[string]interface{}{
					"param": "filters.categories",
					"value": entry,
				})
			}
			cat := types.Category(strings.ToLower(strings.TrimSpace(name)))
			if !cat.Valid() {
				return nil, newMCPError(ErrorCodeInvalidParams, "unknown category", map[string]interface{}{
					"param":   "filters.categories",
					"value":   name,
					"allowed": types.AllCategories,
				})
			}
			filters.Categories = append(filters.Categories, string(cat))
		}
	}

	if strategies, ok := raw["strategies"].([]interface{}); ok {
		for _, entry := range strategies {
			name, ok := entry.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "strategy filter must be a string", map[string]interface{}{
					"param": "filters.strategies",
					"value": entry,
				})
			}
			strategy := strings.ToLower(strings.TrimSpace(name))
			if !slices.Contains(strategyValues, strategy) {
				return nil, newMCPError(ErrorCodeInvalidParams, "unknown strategy", map[string]interface{}{
					"param":   "filters.strategies",
					"value":   name,
					"allowed": strategyValues,
				})
			}
			filters.Strategies = append(filters.Strategies, strategy)
		}
	}

	if pattern, ok := raw["path_pattern"].(string); ok && pattern != "" {
		filters.PathPattern = pattern
	}

	if minRelevance, ok := raw["min_relevance"].(float64); ok {
		if minRelevance < 0 || minRelevance > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "min_relevance must be between 0.0 and 1.0", map[string]interface{}{
				"param": "filters.min_relevance",
				"value": minRelevance,
			})
		}
		filters.MinRelevance = minRelevance
	}

	return filters, nil
}

// validatePath rejects anything that is not an absolute, readable
// directory.
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return ErrPathNotFound
	case err != nil:
		return ErrPathNotReadable
	case !info.IsDir():
		return ErrNotDirectory
	}

	// Stat succeeds on directories the process cannot list, so probe
	// with Open as well.
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// Sentinels returned by validatePath.
var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

// MCPError is a JSON-RPC style error that the mcp-go framework
// serializes back to the client.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// formatJSON renders a response map as indented JSON. Marshal failures
// degrade to fmt's default formatting instead of failing the call.
func formatJSON(data map[string]interface{}) string {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(buf)
}

// Typed argument accessors. JSON numbers arrive as float64, so the int
// accessor converts; missing or mistyped values yield the fallback.

func getBoolDefault(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func getIntDefault(args map[string]interface{}, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return fallback
}

func getStringDefault(args map[string]interface{}, key string, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}
