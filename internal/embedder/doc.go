// Package embedder generates vector embeddings for knowledge chunks.
//
// Embeddings power the semantic half of hybrid search: every chunk the
// chunker produces gets a vector at index time, and queries are embedded
// with the same model at search time. Three providers are supported:
// OpenAI, Jina AI, and a local Ollama instance for fully offline use.
//
// # Basic Usage
//
//	// Create embedder (auto-detects provider from environment)
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	// Generate single embedding
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "**Chunk**: a contiguous span of a document sized for retrieval.",
//	})
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// # Batch Processing
//
// Indexing embeds chunks in batches to cut API round trips:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{chunk1.Content, chunk2.Content, chunk3.Content},
//	})
//	for i, embedding := range resp.Embeddings {
//	    // Store embedding for chunk i
//	}
//
// Batches are capped at MaxBatchSize texts; the indexer slices its work
// into DefaultBatchSize pieces.
//
// # Provider Selection
//
// NewFromEnv picks a provider from the environment:
//
//  1. If KBCONTEXT_EMBED_PROVIDER is set → use that provider (openai, jina, ollama)
//  2. Else if KBCONTEXT_OPENAI_API_KEY is set → OpenAI (1536 dims)
//  3. Else if KBCONTEXT_JINA_API_KEY is set → Jina AI (1024 dims)
//  4. Else → local Ollama at KBCONTEXT_OLLAMA_URL or localhost:11434
//
// KBCONTEXT_EMBED_MODEL overrides the provider's default model. For Ollama
// the reported dimension follows the model (nomic-embed-text 768,
// mxbai-embed-large 1024, all-minilm 384).
//
// Mixing models within one index breaks vector search: embeddings are only
// comparable when produced by the same model. Reindex after switching.
//
// # Caching
//
// Providers share an LRU cache keyed by the SHA-256 hash of the text, so
// reindexing unchanged documents does not repay the API cost:
//
//	cache := embedder.NewCache(10000)
//	provider, err := embedder.NewOpenAIProvider(apiKey, cache)
//
// Cache reads return deep copies; callers may mutate returned vectors
// freely.
//
// # Error Handling
//
// Transient API failures are retried with exponential backoff (3 attempts,
// 100ms base delay). Exhausted retries surface as ErrProviderFailed:
//
//	_, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unreachable; index without embeddings or retry later
//	}
//
// Misconfiguration (a cloud provider without its API key) is
// ErrProviderNotConfigured and is reported at construction, not per call.
package embedder
