package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dshills/kbcontext-mcp/internal/embedder"
	"github.com/dshills/kbcontext-mcp/internal/storage"
	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// mockEmbedder returns a fixed query vector unless a test installs its own
// generateFunc to inject failures or per-call behavior.
type mockEmbedder struct {
	generateFunc func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

// mockQueryVector is the deterministic vector the default mock returns.
func mockQueryVector() []float32 {
	vector := make([]float32, 384)
	for i := range vector {
		vector[i] = float32(i) * 0.01
	}
	return vector
}

func (m *mockEmbedder) embedding() *embedder.Embedding {
	return &embedder.Embedding{
		Vector:    mockQueryVector(),
		Dimension: 384,
		Model:     "mock-model",
		Provider:  "mock",
	}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return m.embedding(), nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i := range req.Texts {
		embeddings[i] = m.embedding()
	}
	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   "mock",
		Model:      "mock-model",
	}, nil
}

func (m *mockEmbedder) Dimension() int   { return 384 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// setupTestSearcher wires a Searcher over in-memory SQLite with one
// registered source.
func setupTestSearcher(t *testing.T) (*Searcher, storage.Storage, *storage.Source) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	search := NewSearcher(store, &mockEmbedder{})

	source := &storage.Source{
		RootPath:     "/test/search",
		Name:         "search",
		IndexVersion: "1.0.0",
	}
	if err := store.CreateSource(context.Background(), source); err != nil {
		t.Fatalf("failed to create test source: %v", err)
	}

	return search, store, source
}

func TestNewSearcher(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer store.Close()

	embed := &mockEmbedder{}
	s := NewSearcher(store, embed)

	if s == nil {
		t.Fatal("NewSearcher returned nil")
	}
	if s.storage != store {
		t.Error("storage dependency not wired")
	}
	if s.embedder != embed {
		t.Error("embedder dependency not wired")
	}
}

// TestValidateRequest covers both rejection and the defaults applied in place.
func TestValidateRequest(t *testing.T) {
	s := &Searcher{}

	tests := []struct {
		name        string
		req         SearchRequest
		expectError bool
		wantLimit   int
		wantMode    SearchMode
		wantRRF     float64
		wantTTL     time.Duration
	}{
		{
			name:        "EmptyQuery",
			req:         SearchRequest{Query: ""},
			expectError: true,
		},
		{
			name:      "FullySpecifiedRequest",
			req:       SearchRequest{Query: "pump maintenance", Limit: 10, Mode: SearchModeHybrid},
			wantLimit: 10,
			wantMode:  SearchModeHybrid,
		},
		{
			name:      "ZeroLimitDefaultsTo10",
			req:       SearchRequest{Query: "pump maintenance", Limit: 0},
			wantLimit: 10,
		},
		{
			name:      "NegativeLimitDefaultsTo10",
			req:       SearchRequest{Query: "pump maintenance", Limit: -5},
			wantLimit: 10,
		},
		{
			name:      "ExcessiveLimitCapsAt100",
			req:       SearchRequest{Query: "pump maintenance", Limit: 500},
			wantLimit: 100,
		},
		{
			name:     "EmptyModeDefaultsToHybrid",
			req:      SearchRequest{Query: "pump maintenance", Limit: 10},
			wantMode: SearchModeHybrid,
		},
		{
			name:    "ZeroRRFConstantDefaultsTo60",
			req:     SearchRequest{Query: "pump maintenance", Limit: 10},
			wantRRF: 60,
		},
		{
			name:    "ZeroCacheTTLDefaultsToHour",
			req:     SearchRequest{Query: "pump maintenance", Limit: 10},
			wantTTL: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.validateRequest(&tt.req)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantLimit != 0 && tt.req.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.req.Limit, tt.wantLimit)
			}
			if tt.wantMode != "" && tt.req.Mode != tt.wantMode {
				t.Errorf("mode = %s, want %s", tt.req.Mode, tt.wantMode)
			}
			if tt.wantRRF != 0 && tt.req.RRFConstant != tt.wantRRF {
				t.Errorf("RRF constant = %v, want %v", tt.req.RRFConstant, tt.wantRRF)
			}
			if tt.wantTTL != 0 && tt.req.CacheTTL != tt.wantTTL {
				t.Errorf("cache TTL = %v, want %v", tt.req.CacheTTL, tt.wantTTL)
			}
		})
	}
}

// TestApplyRRF exercises reciprocal rank fusion. RRF scores depend only on
// rank positions, so every expectation below is computable by hand:
// a chunk at rank r in one leg contributes 1/(k+r).
func TestApplyRRF(t *testing.T) {
	s := &Searcher{}

	tests := []struct {
		name      string
		vector    []storage.VectorResult
		text      []storage.TextResult
		k         float64
		wantCount int
		wantOrder []int64 // nil skips; ties fuse out of a map in random order
		wantTop   float64 // approximate score of the first result, 0 skips
	}{
		{
			// Chunks 2 and 3 appear in both legs and collect two
			// contributions each, so they outrank the single-leg chunks.
			name: "OverlappingLegs",
			vector: []storage.VectorResult{
				{ChunkID: 1, SimilarityScore: 0.9},
				{ChunkID: 2, SimilarityScore: 0.8},
				{ChunkID: 3, SimilarityScore: 0.7},
			},
			text: []storage.TextResult{
				{ChunkID: 2, BM25Score: 0.95},
				{ChunkID: 3, BM25Score: 0.90},
				{ChunkID: 4, BM25Score: 0.80},
			},
			k:         60,
			wantCount: 4,
			wantOrder: []int64{2, 3, 1, 4},
			wantTop:   1.0/62.0 + 1.0/61.0,
		},
		{
			// Disjoint legs give no chunk a fusion bonus. The two rank-1
			// chunks tie at 1/61, so only the top score is deterministic.
			name: "DisjointLegs",
			vector: []storage.VectorResult{
				{ChunkID: 1, SimilarityScore: 0.9},
				{ChunkID: 2, SimilarityScore: 0.8},
			},
			text: []storage.TextResult{
				{ChunkID: 3, BM25Score: 0.9},
				{ChunkID: 4, BM25Score: 0.8},
			},
			k:         60,
			wantCount: 4,
			wantTop:   1.0 / 61.0,
		},
		{
			name:   "VectorLegEmpty",
			vector: []storage.VectorResult{},
			text: []storage.TextResult{
				{ChunkID: 1, BM25Score: 0.9},
				{ChunkID: 2, BM25Score: 0.8},
			},
			k:         60,
			wantCount: 2,
			wantOrder: []int64{1, 2},
			wantTop:   1.0 / 61.0,
		},
		{
			name:      "TextLegEmpty",
			vector:    []storage.VectorResult{{ChunkID: 1, SimilarityScore: 0.9}},
			text:      []storage.TextResult{},
			k:         60,
			wantCount: 1,
			wantOrder: []int64{1},
			wantTop:   1.0 / 61.0,
		},
		{
			name:      "BothLegsEmpty",
			vector:    []storage.VectorResult{},
			text:      []storage.TextResult{},
			k:         60,
			wantCount: 0,
		},
		{
			name:      "SmallerConstant",
			vector:    []storage.VectorResult{{ChunkID: 1, SimilarityScore: 0.9}},
			text:      []storage.TextResult{{ChunkID: 1, BM25Score: 0.9}},
			k:         30,
			wantCount: 1,
			wantOrder: []int64{1},
			wantTop:   2.0 / 31.0,
		},
		{
			name:      "ZeroConstantDefaultsTo60",
			vector:    []storage.VectorResult{{ChunkID: 1, SimilarityScore: 0.9}},
			text:      []storage.TextResult{},
			k:         0,
			wantCount: 1,
			wantOrder: []int64{1},
			wantTop:   1.0 / 61.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := s.applyRRF(tt.vector, tt.text, tt.k)

			if len(results) != tt.wantCount {
				t.Fatalf("got %d fused results, want %d", len(results), tt.wantCount)
			}
			for i, res := range results {
				if res.rank != i+1 {
					t.Errorf("result %d assigned rank %d, want %d", i, res.rank, i+1)
				}
				if i > 0 && results[i-1].score < res.score {
					t.Errorf("scores not descending: result %d has %f after %f",
						i, res.score, results[i-1].score)
				}
			}
			if tt.wantOrder != nil {
				for i, id := range tt.wantOrder {
					if results[i].chunkID != id {
						t.Errorf("position %d: got chunk %d, want chunk %d", i, results[i].chunkID, id)
					}
				}
			}
			if tt.wantTop != 0 && abs(results[0].score-tt.wantTop) > 0.0001 {
				t.Errorf("top score = %f, want ~%f", results[0].score, tt.wantTop)
			}
		})
	}
}

func TestSortRankedResults(t *testing.T) {
	tests := []struct {
		name  string
		input []rankedResult
		want  []int64 // chunk IDs after sorting, highest score first
	}{
		{
			name: "AlreadySorted",
			input: []rankedResult{
				{chunkID: 1, score: 0.9}, {chunkID: 2, score: 0.8}, {chunkID: 3, score: 0.7},
			},
			want: []int64{1, 2, 3},
		},
		{
			name: "ReverseSorted",
			input: []rankedResult{
				{chunkID: 1, score: 0.7}, {chunkID: 2, score: 0.8}, {chunkID: 3, score: 0.9},
			},
			want: []int64{3, 2, 1},
		},
		{
			// Ties keep their relative order; the sort must be stable.
			name: "EqualScores",
			input: []rankedResult{
				{chunkID: 1, score: 0.8}, {chunkID: 2, score: 0.8}, {chunkID: 3, score: 0.8},
			},
			want: []int64{1, 2, 3},
		},
		{
			name: "Shuffled",
			input: []rankedResult{
				{chunkID: 4, score: 0.5}, {chunkID: 1, score: 0.9}, {chunkID: 3, score: 0.7}, {chunkID: 2, score: 0.8},
			},
			want: []int64{1, 2, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]rankedResult, len(tt.input))
			copy(results, tt.input)

			sortRankedResults(results)

			for i, id := range tt.want {
				if results[i].chunkID != id {
					t.Errorf("position %d: got chunk %d, want chunk %d", i, results[i].chunkID, id)
				}
			}
		})
	}
}

// TestComputeQueryHash checks that the cache key covers every field that
// changes what a search would return.
func TestComputeQueryHash(t *testing.T) {
	base := SearchRequest{Query: "pool sizing", Mode: SearchModeHybrid, SourceID: 1}

	withFilters := func(f *storage.SearchFilters) SearchRequest {
		r := base
		r.Filters = f
		return r
	}
	fullFilters := func() *storage.SearchFilters {
		return &storage.SearchFilters{
			Categories:   []string{"knowledge", "doc"},
			Strategies:   []string{"sections"},
			PathPattern:  "runbooks/*",
			MinRelevance: 0.5,
		}
	}

	tests := []struct {
		name       string
		req1, req2 SearchRequest
		wantEqual  bool
	}{
		{
			name:      "IdenticalRequests",
			req1:      base,
			req2:      base,
			wantEqual: true,
		},
		{
			name: "DifferentQuery",
			req1: SearchRequest{Query: "query one", Mode: SearchModeHybrid, SourceID: 1},
			req2: SearchRequest{Query: "query two", Mode: SearchModeHybrid, SourceID: 1},
		},
		{
			name: "DifferentMode",
			req1: base,
			req2: SearchRequest{Query: "pool sizing", Mode: SearchModeVector, SourceID: 1},
		},
		{
			name: "DifferentSource",
			req1: base,
			req2: SearchRequest{Query: "pool sizing", Mode: SearchModeHybrid, SourceID: 2},
		},
		{
			name:      "MatchingFilters",
			req1:      withFilters(fullFilters()),
			req2:      withFilters(fullFilters()),
			wantEqual: true,
		},
		{
			name: "DifferentFilterCategories",
			req1: withFilters(&storage.SearchFilters{Categories: []string{"doc"}}),
			req2: withFilters(&storage.SearchFilters{Categories: []string{"code"}}),
		},
		{
			name: "FiltersPresentVersusAbsent",
			req1: withFilters(&storage.SearchFilters{Categories: []string{"doc"}}),
			req2: base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equal := computeQueryHash(tt.req1) == computeQueryHash(tt.req2)
			if equal != tt.wantEqual {
				t.Errorf("hash equality = %v, want %v", equal, tt.wantEqual)
			}
		})
	}
}

// Integration tests with real storage

// TestSearchModeVector tests vector-only search
func TestSearchModeVector(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	// The stored embedding equals the mock's query vector, so cosine
	// similarity is 1.0 and the chunk is guaranteed to surface.
	chunk := seedDocumentChunk(t, store, source, "runbooks/rotate.md", "doc", "Rotate credentials every ninety days.")
	addTestEmbedding(t, store, chunk.ID, mockQueryVector())

	resp, err := search.Search(ctx, SearchRequest{
		Query:    "credential rotation",
		Limit:    10,
		Mode:     SearchModeVector,
		SourceID: source.ID,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp.SearchMode != SearchModeVector {
		t.Errorf("SearchMode = %s, want %s", resp.SearchMode, SearchModeVector)
	}
	if resp.VectorResults == 0 || resp.TextResults != 0 {
		t.Errorf("leg counts = %d vector / %d text, want only vector hits",
			resp.VectorResults, resp.TextResults)
	}
	if resp.Duration == 0 {
		t.Error("Duration not recorded")
	}
	if len(resp.Results) == 0 {
		t.Fatal("no results returned")
	}
	if doc := resp.Results[0].Document; doc == nil || doc.Path != "runbooks/rotate.md" {
		t.Errorf("document metadata = %+v, want runbooks/rotate.md", doc)
	}
}

func TestSearchModeKeyword(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	chunk := seedDocumentChunk(t, store, source, "docs/deploy.md", "doc", "Deployments require two approvals from the platform team.")
	addTestEmbedding(t, store, chunk.ID, mockQueryVector())

	resp, err := search.Search(ctx, SearchRequest{
		Query:    "approvals",
		Limit:    10,
		Mode:     SearchModeKeyword,
		SourceID: source.ID,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp.SearchMode != SearchModeKeyword {
		t.Errorf("SearchMode = %s, want %s", resp.SearchMode, SearchModeKeyword)
	}
	if resp.TextResults == 0 || resp.VectorResults != 0 {
		t.Errorf("leg counts = %d vector / %d text, want only text hits",
			resp.VectorResults, resp.TextResults)
	}
}

func TestSearchModeHybrid(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	// Several chunks share the query word so both legs return hits.
	for i := 0; i < 3; i++ {
		chunk := seedDocumentChunk(t, store, source,
			fmt.Sprintf("docs/step%d.md", i), "doc",
			fmt.Sprintf("Deployment step %d of the release checklist.", i))
		addTestEmbedding(t, store, chunk.ID, mockQueryVector())
	}

	resp, err := search.Search(ctx, SearchRequest{
		Query:       "deployment checklist",
		Limit:       10,
		Mode:        SearchModeHybrid,
		SourceID:    source.ID,
		RRFConstant: 60,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp.SearchMode != SearchModeHybrid {
		t.Errorf("SearchMode = %s, want %s", resp.SearchMode, SearchModeHybrid)
	}
	if len(resp.Results) == 0 {
		t.Fatal("no results from hybrid search")
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i-1].RelevanceScore < resp.Results[i].RelevanceScore {
			t.Errorf("fused scores not descending at position %d", i)
		}
	}
}

// TestSearchWithoutEmbedder tests mode handling when no provider is configured
func TestSearchWithoutEmbedder(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	source := &storage.Source{RootPath: "/test/noembed", Name: "noembed", IndexVersion: "1.0.0"}
	if err := store.CreateSource(ctx, source); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}

	search := NewSearcher(store, nil)

	seedDocumentChunk(t, store, source, "docs/oncall.md", "doc", "Rollbacks page the on-call engineer.")

	// Hybrid degrades to keyword
	resp, err := search.Search(ctx, SearchRequest{
		Query:    "rollbacks",
		Mode:     SearchModeHybrid,
		SourceID: source.ID,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.SearchMode != SearchModeKeyword {
		t.Errorf("expected degraded mode keyword, got %s", resp.SearchMode)
	}
	if len(resp.Results) == 0 {
		t.Error("expected keyword results without embedder")
	}

	// Explicit vector mode fails
	_, err = search.Search(ctx, SearchRequest{
		Query:    "rollbacks",
		Mode:     SearchModeVector,
		SourceID: source.ID,
	})
	if err == nil {
		t.Fatal("expected error for vector mode without embedder")
	}
}

func TestSearchWithUnsupportedMode(t *testing.T) {
	search, _, source := setupTestSearcher(t)

	_, err := search.Search(context.Background(), SearchRequest{
		Query:    "test",
		Limit:    10,
		Mode:     SearchMode("invalid"),
		SourceID: source.ID,
	})
	if err == nil {
		t.Fatal("expected error for unsupported search mode")
	}
	if err.Error() != "unsupported search mode: invalid" {
		t.Errorf("error = %q, want the unsupported-mode message", err)
	}
}

// Vector mode has no fallback leg, so an embedding failure surfaces
// directly to the caller.
func TestVectorSearchWithEmbedderError(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer store.Close()

	search := NewSearcher(store, &mockEmbedder{
		generateFunc: func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
			return nil, errors.New("embedding generation failed")
		},
	})

	ctx := context.Background()
	source := &storage.Source{RootPath: "/test/embederr", Name: "embederr", IndexVersion: "1.0.0"}
	if err := store.CreateSource(ctx, source); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}

	_, err = search.Search(ctx, SearchRequest{
		Query:    "test",
		Limit:    10,
		Mode:     SearchModeVector,
		SourceID: source.ID,
	})
	if err == nil {
		t.Fatal("expected error from vector search with embedder failure")
	}
}

// TestHybridSearchOneLegFails tests that hybrid search survives an embedding
// failure by returning the keyword leg's results
func TestHybridSearchOneLegFails(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer store.Close()

	embed := &mockEmbedder{
		generateFunc: func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
			return nil, errors.New("provider unavailable")
		},
	}

	search := NewSearcher(store, embed)

	ctx := context.Background()
	source := &storage.Source{RootPath: "/test/oneleg", Name: "oneleg", IndexVersion: "1.0.0"}
	if err := store.CreateSource(ctx, source); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}

	seedDocumentChunk(t, store, source, "docs/quorum.md", "doc", "A quorum requires three voting members.")

	resp, err := search.Search(ctx, SearchRequest{
		Query:    "quorum",
		Mode:     SearchModeHybrid,
		SourceID: source.ID,
	})
	if err != nil {
		t.Fatalf("hybrid search should survive one failing leg: %v", err)
	}

	if resp.VectorResults != 0 {
		t.Errorf("expected zero vector results, got %d", resp.VectorResults)
	}
	if resp.TextResults == 0 {
		t.Error("expected text results from the surviving leg")
	}
	if len(resp.Results) == 0 {
		t.Error("expected merged results")
	}
}

func TestHybridSearchContextCancellation(t *testing.T) {
	search, store, source := setupTestSearcher(t)

	chunk := seedDocumentChunk(t, store, source, "docs/cancel.md", "doc", "Cancellation test content.")
	addTestEmbedding(t, store, chunk.ID, mockQueryVector())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before the search starts

	_, err := search.Search(ctx, SearchRequest{
		Query:    "test",
		Limit:    10,
		Mode:     SearchModeHybrid,
		SourceID: source.ID,
	})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in the chain", err)
	}
}

// TestFetchResults checks that ranked chunk IDs hydrate into full results
// with their document metadata attached.
func TestFetchResults(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	chunk := seedDocumentChunk(t, store, source, "kb/fusion.md", "knowledge", "Hybrid retrieval merges vector and keyword rankings.")

	ranked := []rankedResult{{chunkID: chunk.ID, score: 0.95, rank: 1}}

	results, err := search.fetchResults(ctx, ranked, 10)
	if err != nil {
		t.Fatalf("fetchResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	got := results[0]
	if got.ChunkID != chunk.ID {
		t.Errorf("ChunkID = %d, want %d", got.ChunkID, chunk.ID)
	}
	if got.Rank != 1 {
		t.Errorf("Rank = %d, want 1", got.Rank)
	}
	if got.RelevanceScore != 0.95 {
		t.Errorf("RelevanceScore = %f, want 0.95", got.RelevanceScore)
	}
	if got.Content != chunk.Content {
		t.Errorf("Content = %q, want %q", got.Content, chunk.Content)
	}
	if got.ChunkIndex != chunk.ChunkIndex {
		t.Errorf("ChunkIndex = %d, want %d", got.ChunkIndex, chunk.ChunkIndex)
	}

	doc := got.Document
	if doc == nil {
		t.Fatal("result carries no document metadata")
	}
	if doc.Path != "kb/fusion.md" {
		t.Errorf("document path = %s, want kb/fusion.md", doc.Path)
	}
	if doc.Category != types.CategoryKnowledge {
		t.Errorf("document category = %s, want %s", doc.Category, types.CategoryKnowledge)
	}
	if doc.Strategy != "segments" {
		t.Errorf("document strategy = %s, want segments", doc.Strategy)
	}
}

// Chunk IDs that were deleted between ranking and hydration are skipped
// rather than failing the whole search.
func TestFetchResultsWithMissingChunks(t *testing.T) {
	search, _, _ := setupTestSearcher(t)
	ctx := context.Background()

	ranked := []rankedResult{
		{chunkID: 99999, score: 0.95, rank: 1},
		{chunkID: 88888, score: 0.90, rank: 2},
	}

	results, err := search.fetchResults(ctx, ranked, 10)
	if err != nil {
		t.Fatalf("fetchResults failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for missing chunks, want 0", len(results))
	}
}

func TestFetchResultsLimitRespected(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	var ranked []rankedResult
	for i := 0; i < 5; i++ {
		chunk := seedDocumentChunk(t, store, source,
			fmt.Sprintf("docs/limit%d.md", i), "doc", fmt.Sprintf("Limit test chunk %d.", i))
		ranked = append(ranked, rankedResult{chunkID: chunk.ID, score: float64(5-i) * 0.1, rank: i + 1})
	}

	results, err := search.fetchResults(ctx, ranked, 3)
	if err != nil {
		t.Fatalf("fetchResults failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results with limit 3", len(results))
	}
}

// TestSearchWithCache tests cache behavior across repeated queries
func TestSearchWithCache(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	chunk := seedDocumentChunk(t, store, source, "docs/cache.md", "doc", "Cached content about incident response.")
	addTestEmbedding(t, store, chunk.ID, mockQueryVector())

	req := SearchRequest{
		Query:    "incident response",
		Limit:    10,
		Mode:     SearchModeHybrid,
		SourceID: source.ID,
		UseCache: true,
		CacheTTL: 1 * time.Hour,
	}

	resp1, err := search.Search(ctx, req)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp1.CacheHit {
		t.Error("first search should not be a cache hit")
	}

	if len(resp1.Results) == 0 {
		t.Fatal("expected results to populate the cache")
	}

	resp2, err := search.Search(ctx, req)
	if err != nil {
		t.Fatalf("repeat Search failed: %v", err)
	}

	if !resp2.CacheHit {
		t.Error("second identical search should be a cache hit")
	}

	if len(resp2.Results) != len(resp1.Results) {
		t.Errorf("cached results differ: %d vs %d", len(resp2.Results), len(resp1.Results))
	}

	// Invalidate and confirm the next search misses
	if err := search.InvalidateCache(ctx, source.ID); err != nil {
		t.Fatalf("InvalidateCache failed: %v", err)
	}

	resp3, err := search.Search(ctx, req)
	if err != nil {
		t.Fatalf("post-invalidation Search failed: %v", err)
	}

	if resp3.CacheHit {
		t.Error("search after invalidation should not be a cache hit")
	}
}

// TestSearchCacheTTLExpiry tests that expired entries are not served
func TestSearchCacheTTLExpiry(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	chunk := seedDocumentChunk(t, store, source, "docs/ttl.md", "doc", "Expiring content about retention.")
	addTestEmbedding(t, store, chunk.ID, mockQueryVector())

	req := SearchRequest{
		Query:    "retention",
		Limit:    10,
		Mode:     SearchModeKeyword,
		SourceID: source.ID,
		UseCache: true,
		CacheTTL: 10 * time.Millisecond,
	}

	if _, err := search.Search(ctx, req); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	resp, err := search.Search(ctx, req)
	if err != nil {
		t.Fatalf("Search after TTL failed: %v", err)
	}

	if resp.CacheHit {
		t.Error("expired cache entry should not be served")
	}
}

// TestEvictLRU tests cache downsizing
func TestEvictLRU(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	chunk := seedDocumentChunk(t, store, source, "docs/evict.md", "doc", "Eviction test content about capacity.")
	addTestEmbedding(t, store, chunk.ID, mockQueryVector())

	// Each query matches the chunk, so each response is cached
	for _, query := range []string{"eviction", "test", "content", "about", "capacity"} {
		req := SearchRequest{
			Query:    query,
			Mode:     SearchModeKeyword,
			SourceID: source.ID,
			UseCache: true,
		}
		if _, err := search.Search(ctx, req); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
	}

	if got := search.cache.Len(); got != 5 {
		t.Fatalf("expected 5 cached responses, got %d", got)
	}

	// Within limit: no-op
	if err := search.EvictLRU(ctx, 1000); err != nil {
		t.Fatalf("EvictLRU failed: %v", err)
	}

	// Downsizing replaces the cache
	if err := search.EvictLRU(ctx, 2); err != nil {
		t.Fatalf("EvictLRU downsize failed: %v", err)
	}

	if got := search.cache.Len(); got != 0 {
		t.Errorf("expected empty cache after downsize, got %d entries", got)
	}
}

// TestLookupTerm tests glossary term resolution
func TestLookupTerm(t *testing.T) {
	search, store, source := setupTestSearcher(t)
	ctx := context.Background()

	doc := seedDocument(t, store, source, "glossary.md", "glossary", "glossary")
	for _, term := range []struct{ term, def string }{
		{"WCF", "Work Completion Form, filed after every maintenance window."},
		{"Key Rotation", "Scheduled replacement of signing keys."},
	} {
		if err := store.UpsertTerm(ctx, &storage.Term{
			DocumentID: doc.ID,
			Term:       term.term,
			Definition: term.def,
		}); err != nil {
			t.Fatalf("UpsertTerm failed: %v", err)
		}
	}

	t.Run("ExactMatch", func(t *testing.T) {
		results, err := search.LookupTerm(ctx, source.ID, "wcf", 5)
		if err != nil {
			t.Fatalf("LookupTerm failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if !results[0].Exact {
			t.Error("expected exact match")
		}
		if results[0].Term.Term != "WCF" {
			t.Errorf("expected term WCF, got %s", results[0].Term.Term)
		}
		if results[0].Document == nil || results[0].Document.Path != "glossary.md" {
			t.Error("expected document metadata on term result")
		}
	})

	t.Run("FallbackToFullText", func(t *testing.T) {
		results, err := search.LookupTerm(ctx, source.ID, "signing keys", 5)
		if err != nil {
			t.Fatalf("LookupTerm failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 fallback result, got %d", len(results))
		}
		if results[0].Exact {
			t.Error("fallback match should not be marked exact")
		}
		if results[0].Term.Term != "Key Rotation" {
			t.Errorf("expected term Key Rotation, got %s", results[0].Term.Term)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		results, err := search.LookupTerm(ctx, source.ID, "nonexistent", 5)
		if err != nil {
			t.Fatalf("LookupTerm failed: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected no results, got %d", len(results))
		}
	})

	t.Run("EmptyTerm", func(t *testing.T) {
		_, err := search.LookupTerm(ctx, source.ID, "   ", 5)
		if err == nil {
			t.Fatal("expected error for empty term")
		}
	})
}

// Helper functions

// seedDocument inserts a document row for the source
func seedDocument(t *testing.T, store storage.Storage, source *storage.Source, docPath, category, strategy string) *storage.Document {
	t.Helper()
	ctx := context.Background()

	hash := sha256.Sum256([]byte(docPath))
	doc := &storage.Document{
		SourceID:    source.ID,
		DocPath:     docPath,
		Category:    category,
		ContentHash: hash,
		Strategy:    strategy,
		ModTime:     time.Now(),
		SizeBytes:   100,
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument failed: %v", err)
	}

	return doc
}

// seedDocumentChunk inserts a document with a single chunk holding content
func seedDocumentChunk(t *testing.T, store storage.Storage, source *storage.Source, docPath, category, content string) *storage.Chunk {
	t.Helper()
	ctx := context.Background()

	doc := seedDocument(t, store, source, docPath, category, "segments")

	contentHash := sha256.Sum256([]byte(content))
	chunk := &storage.Chunk{
		DocumentID:  doc.ID,
		ChunkIndex:  0,
		Content:     content,
		ContentHash: contentHash,
		TokenCount:  len(content) / 4,
		Strategy:    "segments",
	}
	if err := store.UpsertChunk(ctx, chunk); err != nil {
		t.Fatalf("UpsertChunk failed: %v", err)
	}

	return chunk
}

// addTestEmbedding stores a vector for the chunk under the mock's identity.
func addTestEmbedding(t *testing.T, store storage.Storage, chunkID int64, vector []float32) {
	t.Helper()

	emb := &storage.Embedding{
		ChunkID:   chunkID,
		Vector:    storage.SerializeVector(vector),
		Dimension: len(vector),
		Provider:  "mock",
		Model:     "mock-model",
	}
	if err := store.UpsertEmbedding(context.Background(), emb); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
