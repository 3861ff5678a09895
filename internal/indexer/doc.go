// Package indexer coordinates the end-to-end indexing pipeline for
// knowledge repositories.
//
// The indexer walks a repository, classifies each file into a content
// category, chunks it with the category's strategy, stores documents,
// chunks, and glossary terms in SQLite, and optionally generates vector
// embeddings for the stored chunks.
//
// # Basic Usage
//
//	idx := indexer.NewWithEmbedder(store, emb)
//
//	stats, err := idx.IndexRepository(ctx, "/path/to/repo", &indexer.Config{
//	    GenerateEmbeddings: true,
//	})
//
//	fmt.Printf("Indexed %d documents in %v\n", stats.DocumentsIndexed, stats.Duration)
//
// # Repository Configuration
//
// A repository may carry a kbcontext.yaml at its root to control
// classification and chunking:
//
//	name: team-kb
//	sources:
//	  - pattern: "glossary/**/*.md"
//	    category: glossary
//	  - pattern: "contracts/**/*.sol"
//	    category: contract
//	exclude:
//	  - "archive/**"
//	max_file_size: 1048576
//	max_tokens: 500
//	overlap_tokens: 50
//
// Without the file, extension defaults apply: markdown is doc, source code
// is code, shell is script, plain text is knowledge; a prose file named
// glossary/definitions/terms is a glossary. Files with unknown extensions
// are kept when their content sniffs as text and skipped when it is binary.
//
// # Incremental Indexing
//
// Document change detection uses SHA-256 content hashing. Unchanged
// documents are skipped; changed ones have their chunks and terms deleted
// before re-indexing so no stale rows survive. Config.Force re-indexes
// everything.
//
//	// First index: processes all documents
//	stats1, _ := idx.IndexRepository(ctx, root, nil)
//	// Documents: 247 indexed, 0 skipped
//
//	// Subsequent index: only changed documents
//	stats2, _ := idx.IndexRepository(ctx, root, nil)
//	// Documents: 3 indexed, 244 skipped
//
// # Concurrent Processing
//
// Documents are processed in batches, one transaction per batch, with a
// semaphore bounding document-level concurrency at Config.Workers (default
// runtime.NumCPU()). A non-blocking lock rejects overlapping runs on the
// same Indexer with ErrIndexingInProgress.
//
// # Embeddings
//
// When Config.GenerateEmbeddings is set, chunks are embedded in
// Config.EmbeddingBatch groups after their transaction commits, so provider
// calls never hold the database connection. Embedding failures are counted
// in Statistics.EmbeddingsFailed and recorded in ErrorMessages but do not
// fail the run.
//
// # Error Handling
//
// Per-document failures (unreadable files, storage errors) are recorded in
// Statistics.ErrorMessages and counted in DocumentsFailed; the run
// continues. IndexRepository itself errors only on fatal conditions: an
// invalid kbcontext.yaml, a failed transaction, or a cancelled context.
package indexer
