package storage

import (
	"context"
	"time"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// Storage defines the persistence interface for indexed knowledge data
type Storage interface {
	// Source operations
	CreateSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, rootPath string) (*Source, error)
	UpdateSource(ctx context.Context, source *Source) error

	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, sourceID int64, docPath string) (*Document, error)
	GetDocumentByID(ctx context.Context, docID int64) (*Document, error)
	DeleteDocument(ctx context.Context, docID int64) error
	ListDocuments(ctx context.Context, sourceID int64) ([]*Document, error)

	// Term operations (glossary entries)
	UpsertTerm(ctx context.Context, term *Term) error
	ListTermsByDocument(ctx context.Context, docID int64) ([]*Term, error)
	DeleteTermsByDocument(ctx context.Context, docID int64) error
	LookupTerm(ctx context.Context, sourceID int64, term string) ([]*Term, error)
	SearchTerms(ctx context.Context, sourceID int64, query string, limit int) ([]*Term, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	ListChunksByDocument(ctx context.Context, docID int64) ([]*Chunk, error)
	DeleteChunk(ctx context.Context, chunkID int64) error
	DeleteChunksBatch(ctx context.Context, chunkIDs []int64) (int, error)
	DeleteChunksByDocument(ctx context.Context, docID int64) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)
	DeleteEmbedding(ctx context.Context, chunkID int64) error

	// Search operations
	SearchVector(ctx context.Context, sourceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, sourceID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context, sourceID int64) (*SourceStatus, error)

	// Lifecycle
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a transaction with commit/rollback
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Source represents an indexed knowledge repository
type Source struct {
	ID             int64
	RootPath       string
	Name           string
	TotalDocuments int
	TotalChunks    int
	IndexVersion   string
	LastIndexedAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Document represents an indexed document within a source
type Document struct {
	ID            int64
	SourceID      int64
	DocPath       string
	Category      string
	Dialect       string
	ContentHash   [32]byte
	Strategy      string
	IndexError    *string
	ModTime       time.Time
	SizeBytes     int64
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Term represents a glossary entry extracted from a document
type Term struct {
	ID         int64
	DocumentID int64
	Term       string
	Definition string
	CreatedAt  time.Time
}

// Chunk represents a retrievable fragment of a document
type Chunk struct {
	ID          int64
	DocumentID  int64
	ChunkIndex  int
	Content     string
	ContentHash [32]byte
	TokenCount  int
	Strategy    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ID        int64
	ChunkID   int64
	Vector    []byte // Serialized float32 array, little-endian
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// SearchFilters contains optional filters for search operations
type SearchFilters struct {
	Categories   []string // Filter by document category
	Strategies   []string // Filter by chunking strategy
	PathPattern  string   // GLOB pattern on document path
	MinRelevance float64  // Minimum similarity/relevance score
}

// VectorResult represents a vector search result
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64
}

// TextResult represents a full-text search result
type TextResult struct {
	ChunkID   int64
	BM25Score float64
}

// SourceStatus contains source indexing status information
type SourceStatus struct {
	Source          *Source
	DocumentsCount  int
	FailedDocuments int
	TermsCount      int
	ChunksCount     int
	EmbeddingsCount int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	Health          HealthStatus
}

// HealthStatus contains index health information
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// FromTypesChunk converts a chunker output chunk to a storage chunk.
// The strategy is recorded per row so strategy filters work without a
// document join.
func FromTypesChunk(documentID int64, strategy string, c types.Chunk) *Chunk {
	return &Chunk{
		DocumentID:  documentID,
		ChunkIndex:  c.Index,
		Content:     c.Content,
		ContentHash: c.Hash(),
		TokenCount:  c.TokenCount,
		Strategy:    strategy,
	}
}

// ToTypesChunk converts a storage chunk back to the chunker representation
func (c *Chunk) ToTypesChunk() types.Chunk {
	return types.Chunk{
		Index:      c.ChunkIndex,
		Content:    c.Content,
		TokenCount: c.TokenCount,
	}
}

// FromTypesTerm converts an extracted glossary term to a storage term
func FromTypesTerm(documentID int64, t types.Term) *Term {
	return &Term{
		DocumentID: documentID,
		Term:       t.Term,
		Definition: t.Definition,
	}
}

// ToTypesTerm converts a storage term back to the glossary representation
func (t *Term) ToTypesTerm() types.Term {
	return types.Term{
		Term:       t.Term,
		Definition: t.Definition,
	}
}
