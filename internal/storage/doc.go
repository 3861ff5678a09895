// Package storage provides SQLite-based persistence for indexed knowledge data.
//
// The storage layer manages:
//   - Source metadata
//   - Document information and content hashes
//   - Glossary terms
//   - Document chunks
//   - Vector embeddings
//   - Full-text search indexes
//
// # Database Schema
//
// Tables:
//   - sources: Knowledge repository metadata (root path, display name)
//   - documents: Document paths, categories, and SHA-256 hashes
//   - terms: Glossary entries (term, definition)
//   - chunks: Retrieval chunks sized for embedding input
//   - embeddings: Vector embeddings for chunks
//   - chunks_fts, terms_fts: FTS5 full-text search indexes
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.kbcontext/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Store a document
//	doc := &storage.Document{
//	    SourceID:    source.ID,
//	    DocPath:     "docs/glossary.md",
//	    Category:    "glossary",
//	    ContentHash: hash,
//	}
//	err = db.UpsertDocument(ctx, doc)
//
// # Transactions
//
// Use transactions for atomic per-document updates:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	// Multiple operations in transaction
//	_ = tx.UpsertDocument(ctx, doc)
//	_ = tx.DeleteChunksByDocument(ctx, doc.ID)
//	for _, chunk := range chunks {
//	    _ = tx.UpsertChunk(ctx, chunk)
//	}
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// All transaction methods run on the transaction's own connection, so reads
// inside a transaction observe its uncommitted writes.
//
// # Incremental Updates
//
// Check document hashes to detect changes:
//
//	stored, err := db.GetDocument(ctx, sourceID, docPath)
//	currentHash := sha256.Sum256(content)
//
//	if err == nil && stored.ContentHash == currentHash {
//	    // Document unchanged, skip re-indexing
//	    return nil
//	}
//
// # Vector Operations
//
// Store and query vector embeddings:
//
//	// Store embedding
//	err := db.UpsertEmbedding(ctx, &storage.Embedding{
//	    ChunkID:   chunkID,
//	    Vector:    storage.SerializeVector(vec),
//	    Dimension: len(vec),
//	    Provider:  "openai",
//	    Model:     "text-embedding-3-small",
//	})
//
//	// Vector similarity search
//	results, err := db.SearchVector(ctx, sourceID, queryVector, 10, nil)
//	for _, result := range results {
//	    fmt.Printf("Chunk %d: similarity %.3f\n",
//	        result.ChunkID, result.SimilarityScore)
//	}
//
// Vectors are stored as little-endian float32 blobs. Search uses cosine
// similarity via the sqlite-vec extension (CGO build) or a pure Go
// implementation (purego build).
//
// # Full-Text Search
//
// Query using BM25 ranking:
//
//	results, err := db.SearchText(ctx, sourceID, "deployment checklist", 10, nil)
//	for _, result := range results {
//	    fmt.Printf("Chunk %d: score %.3f\n",
//	        result.ChunkID, result.BM25Score)
//	}
//
// FTS5 indexes are kept in sync by triggers whenever chunks or terms change.
// Queries are rewritten as quoted phrase tokens before matching, so raw user
// input cannot inject MATCH operators.
//
// # Glossary Terms
//
// Terms extracted from glossary documents support definition lookup:
//
//	// Exact, case-insensitive lookup
//	terms, err := db.LookupTerm(ctx, sourceID, "chunk")
//
//	// Ranked full-text fallback
//	terms, err = db.SearchTerms(ctx, sourceID, "token estimation", 5)
//
// # Search Filters
//
// Both search paths accept optional filters:
//
//	results, err := db.SearchVector(ctx, sourceID, queryVector, 10,
//	    &storage.SearchFilters{
//	        Categories:   []string{"doc", "knowledge"},
//	        PathPattern:  "docs/*",
//	        MinRelevance: 0.5,
//	    })
//
// # Build Tags
//
// Two build configurations select the SQLite driver.
//
// With the sqlite_vec tag the package links github.com/mattn/go-sqlite3 and
// loads the sqlite-vec extension, pushing similarity scoring into SQLite.
// This needs a C compiler:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// The default build uses the CGO-free modernc.org/sqlite driver and scans
// embeddings in Go, which is slower but needs no toolchain beyond Go itself:
//
//	CGO_ENABLED=0 go build
package storage
