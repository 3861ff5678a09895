package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Sentinel errors callers can match with errors.Is.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrProviderFailed        = errors.New("embedding provider failed")
	ErrUnsupportedModel      = errors.New("unsupported model")
	ErrEmptyText             = errors.New("text cannot be empty")
	ErrBatchTooLarge         = errors.New("batch size exceeds limit")
	ErrProviderNotConfigured = errors.New("embedding provider not configured")
)

// DefaultCacheSize bounds the embedding cache when no size is configured
const DefaultCacheSize = 10000

// Embedding is one vector plus the provenance needed to decide whether two
// vectors are comparable.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// EmbeddingRequest asks for a single text's vector.
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override the provider's default model
}

// BatchEmbeddingRequest asks for several texts' vectors in one API call.
type BatchEmbeddingRequest struct {
	Texts []string
	Model string // Optional: override the provider's default model
}

// BatchEmbeddingResponse carries batch results in input order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder is the provider-independent surface the indexer and searcher use.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch embeds several texts in one call, preserving input order.
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is the width of vectors this provider produces.
	Dimension() int

	Provider() string
	Model() string

	// Close frees provider resources such as idle connections.
	Close() error
}

// Cache is a size-bounded LRU of embeddings keyed by content hash.
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache builds a cache holding at most maxLen embeddings.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// Cannot happen with a positive size, but keep a working cache anyway
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of a cached embedding. The vector slice is duplicated
// so caller mutations cannot corrupt the cached original.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	cp := *emb
	cp.Vector = append([]float32(nil), emb.Vector...)
	return &cp, true
}

// Set stores an embedding, evicting the least recently used entry at capacity
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size reports how many embeddings are currently cached.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash returns the hex SHA-256 of the text, the key under which its
// embedding is cached.
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ValidateRequest rejects requests with no text to embed.
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects empty batches and batches containing empty
// texts, naming the offending index.
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
