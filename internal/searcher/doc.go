// Package searcher implements hybrid knowledge search combining vector
// similarity and keyword matching.
//
// Three modes are available: hybrid fuses vector and BM25 rankings and is
// the default, vector ranks purely by embedding similarity, and keyword is
// BM25 full-text search alone. See Search Modes below for when each fits.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    SourceID: source.ID,
//	    Query:    "how do we roll back a deployment",
//	    Limit:    10,
//	    Mode:     searcher.SearchModeHybrid,
//	})
//
//	for _, result := range resp.Results {
//	    fmt.Printf("[%d] %s #%d (score: %.3f)\n",
//	        result.Rank, result.Document.Path, result.ChunkIndex, result.RelevanceScore)
//	}
//
// # Search Modes
//
// Hybrid mode (default) runs vector and BM25 search concurrently and merges
// the two rankings with Reciprocal Rank Fusion. It is the right choice for
// most queries: semantic matching catches paraphrases while BM25 catches
// exact words. One leg may fail (for example the embedding provider is
// down); the other still produces results.
//
// Vector mode embeds the query and ranks chunks by cosine similarity alone.
// Best for conceptual queries where wording differs from the documents.
// Requires an embedding provider and indexed embeddings.
//
// Keyword mode is BM25 full-text search only. Best for exact phrases,
// identifiers, and file names; works with no embedding provider configured.
// When the Searcher has no embedder, hybrid requests degrade to keyword;
// explicit vector requests fail.
//
// # Reciprocal Rank Fusion (RRF)
//
// Hybrid mode merges the two rankings with RRF. Each leg contributes
// 1/(k+rank) for every chunk it returned:
//
//	score[chunk] = sum over legs of 1 / (k + rank in that leg)
//
// and chunks are ordered by summed score. k defaults to 60, the
// conventional constant, and can be overridden per request. A chunk found
// by both legs accumulates both contributions, so agreement between the
// rankings floats a result upward.
//
// # Filtering
//
// Filters narrow search before ranking:
//
//	resp, _ := s.Search(ctx, searcher.SearchRequest{
//	    SourceID: source.ID,
//	    Query:    "rotation policy",
//	    Filters: &storage.SearchFilters{
//	        Categories:   []string{"knowledge", "doc"},
//	        PathPattern:  "runbooks/*",
//	        MinRelevance: 0.5,
//	    },
//	})
//
// Available filters:
//   - Categories: document categories (glossary, knowledge, doc, code, ...)
//   - Strategies: chunking strategies (glossary, sections, constructs, segments)
//   - PathPattern: GLOB pattern on the document path
//   - MinRelevance: minimum similarity score, vector results only
//
// # Term Lookup
//
// Glossary terms have their own lookup path, separate from chunk search:
//
//	results, _ := s.LookupTerm(ctx, source.ID, "WCF", 5)
//
// An exact (case-insensitive) match on the term is preferred and reported
// with Exact=true. When no exact match exists, the query is run through
// full-text search over terms and definitions, so "rotation" still finds
// "**Key Rotation**: ..." entries.
//
// # Caching
//
// Search responses are cached in an in-memory LRU (1000 entries) keyed by a
// hash of query, mode, source, and filters:
//
//	resp1, _ := s.Search(ctx, req)  // runs the search
//	resp2, _ := s.Search(ctx, req)  // served from cache, CacheHit=true
//
// Entries expire after the request's CacheTTL (default 1 hour). Re-indexing
// a source should call InvalidateCache to drop stale responses.
package searcher
