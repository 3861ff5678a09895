package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/kbcontext-mcp/internal/embedder"
	"github.com/dshills/kbcontext-mcp/internal/storage"
	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// SearchMode selects the retrieval strategy for a query.
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // vector and BM25 fused with RRF
	SearchModeVector  SearchMode = "vector"  // embedding similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 full-text only
)

// SearchRequest describes one query against an indexed source.
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	Filters     *storage.SearchFilters
	SourceID    int64
	UseCache    bool
	CacheTTL    time.Duration // lifetime of a cached response
	RRFConstant float64       // fusion k, defaults to 60
}

// SearchResponse carries ranked results plus serving metadata for one query.
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int // candidates from vector search
	TextResults   int // candidates from full-text search
}

// cacheEntry is a cached response with its expiry deadline.
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher serves queries over an indexed knowledge base, fanning out to
// vector and full-text retrieval as the mode requires.
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder

	cacheMu sync.RWMutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

// NewSearcher creates a Searcher over the given storage. The embedder may be
// nil; vector search is then unavailable and hybrid requests run keyword-only.
func NewSearcher(store storage.Storage, emb embedder.Embedder) *Searcher {
	// 1000 cached queries, evicted least recently used.
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:  store,
		embedder: emb,
		cache:    cache,
	}
}

// Search runs a query in the requested mode and returns ranked results.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	// Without an embedding provider, hybrid degrades to keyword; explicit
	// vector requests fail instead of silently changing meaning.
	if s.embedder == nil {
		switch req.Mode {
		case SearchModeVector:
			return nil, fmt.Errorf("vector search requires an embedding provider")
		case SearchModeHybrid:
			req.Mode = SearchModeKeyword
		}
	}

	if req.UseCache {
		if cached, ok := s.cachedResponse(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	response, err := s.runMode(ctx, req)
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	// Empty responses are not cached; a later reindex may populate them.
	if req.UseCache && len(response.Results) > 0 {
		s.cacheResponse(req, response)
	}

	return response, nil
}

// runMode dispatches to the implementation for the requested mode.
func (s *Searcher) runMode(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	switch req.Mode {
	case SearchModeHybrid:
		return s.hybridSearch(ctx, req)
	case SearchModeVector:
		return s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		return s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
}

// LookupTerm resolves a glossary term to its definitions. Exact
// (case-insensitive) matches are preferred; when none exist the term is run
// through full-text search over terms and definitions as a fallback.
func (s *Searcher) LookupTerm(ctx context.Context, sourceID int64, term string, limit int) ([]types.TermResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("term cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	terms, err := s.storage.LookupTerm(ctx, sourceID, term)
	if err != nil {
		return nil, fmt.Errorf("term lookup failed: %w", err)
	}

	exact := true
	if len(terms) == 0 {
		exact = false
		terms, err = s.storage.SearchTerms(ctx, sourceID, term, limit)
		if err != nil {
			return nil, fmt.Errorf("term search failed: %w", err)
		}
	}
	if len(terms) > limit {
		terms = terms[:limit]
	}

	// Documents repeat across terms; resolve each once.
	docs := make(map[int64]*storage.Document)
	results := make([]types.TermResult, 0, len(terms))
	for _, t := range terms {
		doc, ok := docs[t.DocumentID]
		if !ok {
			doc, err = s.storage.GetDocumentByID(ctx, t.DocumentID)
			if err != nil {
				continue // Skip terms whose document can't be loaded
			}
			docs[t.DocumentID] = doc
		}

		results = append(results, types.TermResult{
			Term:     t.ToTypesTerm(),
			Exact:    exact,
			Document: documentInfo(doc),
		})
	}

	return results, nil
}

// legResult carries the outcome of one half of a hybrid search.
type legResult struct {
	vec []storage.VectorResult
	txt []storage.TextResult
	err error
}

// vectorLeg embeds the query and runs vector search, fetching twice the
// requested limit so fusion has enough candidates to work with.
func (s *Searcher) vectorLeg(ctx context.Context, req SearchRequest) legResult {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return legResult{err: fmt.Errorf("failed to generate query embedding: %w", err)}
	}
	vec, err := s.storage.SearchVector(ctx, req.SourceID, emb.Vector, req.Limit*2, req.Filters)
	return legResult{vec: vec, err: err}
}

// textLeg runs the BM25 half of a hybrid search, also over-fetching for fusion.
func (s *Searcher) textLeg(ctx context.Context, req SearchRequest) legResult {
	txt, err := s.storage.SearchText(ctx, req.SourceID, req.Query, req.Limit*2, req.Filters)
	return legResult{txt: txt, err: err}
}

// hybridSearch runs both legs concurrently and fuses their rankings with
// Reciprocal Rank Fusion. One leg may fail; only a double failure is an error.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vecCh := make(chan legResult, 1)
	txtCh := make(chan legResult, 1)

	go func() { vecCh <- s.vectorLeg(ctx, req) }()
	go func() { txtCh <- s.textLeg(ctx, req) }()

	// Buffered channels keep the goroutines from leaking if the context
	// fires before both legs report.
	var vec, txt legResult
	for pending := 2; pending > 0; pending-- {
		select {
		case vec = <-vecCh:
		case txt = <-txtCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if vec.err != nil && txt.err != nil {
		return nil, fmt.Errorf("both search legs failed: vector=%w, text=%v", vec.err, txt.err)
	}

	fused := s.applyRRF(vec.vec, txt.txt, req.RRFConstant)
	results, err := s.fetchResults(ctx, fused, req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vec.vec),
		TextResults:   len(txt.txt),
	}, nil
}

// vectorSearch answers a query by embedding similarity alone.
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := s.storage.SearchVector(ctx, req.SourceID, emb.Vector, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}

	results, err := s.fetchResults(ctx, rankVector(hits), req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(hits),
	}, nil
}

// keywordSearch answers a query with BM25 full-text ranking alone.
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.storage.SearchText(ctx, req.SourceID, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}

	results, err := s.fetchResults(ctx, rankText(hits), req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(hits),
	}, nil
}

// rankVector converts vector hits to the shared ranking format, keeping
// similarity order.
func rankVector(hits []storage.VectorResult) []rankedResult {
	ranked := make([]rankedResult, len(hits))
	for i, h := range hits {
		ranked[i] = rankedResult{chunkID: h.ChunkID, score: h.SimilarityScore, rank: i + 1}
	}
	return ranked
}

// rankText converts text hits to the shared ranking format, keeping BM25 order.
func rankText(hits []storage.TextResult) []rankedResult {
	ranked := make([]rankedResult, len(hits))
	for i, h := range hits {
		ranked[i] = rankedResult{chunkID: h.ChunkID, score: h.BM25Score, rank: i + 1}
	}
	return ranked
}

// rankedResult pairs a chunk with its score and final position in a ranking.
type rankedResult struct {
	chunkID int64
	score   float64
	rank    int
}

// applyRRF merges vector and text rankings with Reciprocal Rank Fusion.
// Each list a chunk appears in contributes 1/(k + rank) to its fused score.
func (s *Searcher) applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k == 0 {
		k = 60
	}

	// Chunks surfacing in both lists accumulate both contributions.
	scores := make(map[int64]float64, len(vectorResults)+len(textResults))
	for rank, vr := range vectorResults {
		scores[vr.ChunkID] += 1.0 / (k + float64(rank+1))
	}
	for rank, tr := range textResults {
		scores[tr.ChunkID] += 1.0 / (k + float64(rank+1))
	}

	results := make([]rankedResult, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, rankedResult{chunkID: chunkID, score: score})
	}

	// Final ranks follow fused-score order.
	sortRankedResults(results)
	for i := range results {
		results[i].rank = i + 1
	}

	return results
}

// fetchResults retrieves full chunk data and document metadata for ranked results
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int) ([]types.SearchResult, error) {
	limit = min(limit, len(ranked))
	results := make([]types.SearchResult, 0, limit)

	// Chunks cluster by document; resolve each document once.
	docs := make(map[int64]*storage.Document)

	for i := 0; i < limit; i++ {
		rr := ranked[i]

		chunk, err := s.storage.GetChunk(ctx, rr.chunkID)
		if err != nil {
			continue // Skip chunks that can't be loaded
		}

		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, err = s.storage.GetDocumentByID(ctx, chunk.DocumentID)
			if err != nil {
				continue
			}
			docs[chunk.DocumentID] = doc
		}

		results = append(results, types.SearchResult{
			ChunkID:        rr.chunkID,
			Rank:           rr.rank,
			RelevanceScore: rr.score,
			Document:       documentInfo(doc),
			Content:        chunk.Content,
			ChunkIndex:     chunk.ChunkIndex,
		})
	}

	return results, nil
}

// documentInfo converts a storage document to result metadata
func documentInfo(doc *storage.Document) *types.DocumentInfo {
	return &types.DocumentInfo{
		Path:     doc.DocPath,
		Category: types.ParseCategory(doc.Category),
		Strategy: doc.Strategy,
	}
}

// validateRequest normalizes a request in place, filling unset fields with
// serving defaults and rejecting requests that cannot be run.
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	switch {
	case req.Limit <= 0:
		req.Limit = 10
	case req.Limit > 100:
		req.Limit = 100
	}

	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = 60
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = time.Hour
	}

	return nil
}

// cachedResponse returns a copy of a live cached response for the request,
// or false when no usable entry exists.
func (s *Searcher) cachedResponse(req SearchRequest) (*SearchResponse, bool) {
	key := computeQueryHash(req)

	s.cacheMu.RLock()
	entry, ok := s.cache.Get(key)
	if !ok {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Drop dead entries eagerly so they don't crowd out live ones
		// in the LRU list.
		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil, false
	}

	// Clone under the read lock so a concurrent store can't mutate the
	// entry mid-copy.
	resp := cloneResponse(entry.response)
	s.cacheMu.RUnlock()

	return resp, true
}

// cacheResponse stores a copy of resp keyed by the request hash, expiring
// after the request's TTL.
func (s *Searcher) cacheResponse(req SearchRequest, resp *SearchResponse) {
	entry := &cacheEntry{
		response:  cloneResponse(resp),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// cloneResponse deep-copies a response so cached entries never alias result
// slices or document pointers handed back to callers.
func cloneResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, res := range src.Results {
		dst.Results[i] = res
		// DocumentInfo holds only value fields, so a struct copy is enough.
		if res.Document != nil {
			doc := *res.Document
			dst.Results[i].Document = &doc
		}
	}

	return &dst
}

// computeQueryHash derives the cache key for a request. Every field that can
// change what a search returns must be folded in here.
func computeQueryHash(req SearchRequest) [32]byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d", req.Query, req.Mode, req.SourceID)
	if f := req.Filters; f != nil {
		fmt.Fprintf(&b, "|%s|%s|%s|%.2f",
			strings.Join(f.Categories, ","),
			strings.Join(f.Strategies, ","),
			f.PathPattern,
			f.MinRelevance)
	}
	return sha256.Sum256([]byte(b.String()))
}

// sortRankedResults orders results by descending score.
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
}

// InvalidateCache removes cached queries for a source after re-indexing.
func (s *Searcher) InvalidateCache(ctx context.Context, sourceID int64) error {
	// Cached hashes can't be filtered by source without a reverse index, so
	// the whole cache is purged. Invalidation only happens on reindexing.
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
	return nil
}

// EvictLRU shrinks the cache to at most maxEntries entries.
func (s *Searcher) EvictLRU(ctx context.Context, maxEntries int) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.cache.Len() <= maxEntries {
		return nil
	}

	// hashicorp/golang-lru doesn't support resizing an existing cache, so
	// downsizing replaces it; entries rebuild from subsequent queries.
	replacement, err := lru.New[[32]byte, *cacheEntry](maxEntries)
	if err != nil {
		return fmt.Errorf("failed to create new cache: %w", err)
	}
	s.cache = replacement
	return nil
}
