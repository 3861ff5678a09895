package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/kbcontext-mcp/internal/chunker"
	"github.com/dshills/kbcontext-mcp/internal/embedder"
	"github.com/dshills/kbcontext-mcp/internal/parser"
	"github.com/dshills/kbcontext-mcp/internal/storage"
	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// Indexer coordinates the indexing pipeline: classify -> chunk -> store -> embed
type Indexer struct {
	chunker  *chunker.Chunker
	storage  storage.Storage
	embedder embedder.Embedder

	// Worker pool configuration
	workers int

	lock IndexLock
}

// Config contains runtime knobs for an indexing run. Content policy
// (category rules, excludes, chunk budgets) lives in the repository's own
// kbcontext.yaml instead.
type Config struct {
	Workers            int  // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize          int  // Number of documents to commit per transaction (default: 20)
	EmbeddingBatch     int  // Number of chunks per embedding request (default: 20)
	GenerateEmbeddings bool // Whether to generate embeddings after storing chunks
	Force              bool // Re-index documents even when their content hash is unchanged
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	DocumentsIndexed    int
	DocumentsSkipped    int
	DocumentsFailed     int
	TermsExtracted      int
	ChunksCreated       int
	EmbeddingsGenerated int
	EmbeddingsFailed    int
	Duration            time.Duration
	ErrorMessages       []string
}

// counters tracks per-run progress; updated atomically by the workers.
type counters struct {
	indexed    atomic.Int32
	skipped    atomic.Int32
	failed     atomic.Int32
	terms      atomic.Int32
	chunks     atomic.Int32
	embeddings atomic.Int32
	embedFails atomic.Int32
}

// indexRun bundles the per-run state shared by the batch workers.
type indexRun struct {
	source     *storage.Source
	rootPath   string
	classifier *classifier
	chunker    *chunker.Chunker
	config     *Config
	semaphore  chan struct{}
	counters   counters
	mu         sync.Mutex // Protects stats.ErrorMessages
	stats      *Statistics
}

// embedTask is a committed chunk awaiting an embedding.
type embedTask struct {
	chunkID int64
	content string
}

// New creates an Indexer without embedding support.
func New(store storage.Storage) *Indexer {
	return &Indexer{
		chunker: chunker.New(),
		storage: store,
		workers: runtime.NumCPU(),
	}
}

// NewWithEmbedder creates an Indexer that can generate embeddings for
// stored chunks.
func NewWithEmbedder(store storage.Storage, emb embedder.Embedder) *Indexer {
	idx := New(store)
	idx.embedder = emb
	return idx
}

// IndexRepository indexes a knowledge repository rooted at rootPath.
// Only one run per Indexer executes at a time; concurrent calls fail fast
// with ErrIndexingInProgress.
func (idx *Indexer) IndexRepository(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()
	if config.GenerateEmbeddings && idx.embedder == nil {
		return nil, errors.New("embedding generation requested but no embedder configured")
	}
	idx.workers = config.Workers

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	repoCfg, err := LoadRepoConfig(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load repository config: %w", err)
	}

	// Get or create the source record
	source, err := idx.getOrCreateSource(ctx, rootPath, repoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create source: %w", err)
	}

	run := &indexRun{
		source:     source,
		rootPath:   rootPath,
		classifier: newClassifier(repoCfg),
		chunker:    idx.chunkerFor(repoCfg),
		config:     config,
		semaphore:  make(chan struct{}, idx.workers),
		stats:      stats,
	}

	// Discover candidate documents
	docs, err := idx.discoverDocuments(rootPath, repoCfg, run.classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}

	// Index documents concurrently
	if err := idx.indexDocuments(ctx, run, docs); err != nil {
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}

	// Update source statistics
	if err := idx.updateSourceStats(ctx, source, repoCfg.resolveName(rootPath)); err != nil {
		return nil, fmt.Errorf("failed to update source stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.EmbeddingBatch <= 0 {
		c.EmbeddingBatch = 20
	}
}

// chunkerFor returns the chunker honoring the repository's budget overrides.
func (idx *Indexer) chunkerFor(repoCfg *RepoConfig) *chunker.Chunker {
	if repoCfg.MaxTokens > 0 || repoCfg.OverlapTokens > 0 {
		return chunker.NewWithBudgets(repoCfg.MaxTokens, repoCfg.OverlapTokens)
	}
	return idx.chunker
}

// getOrCreateSource retrieves an existing source or creates a new one
func (idx *Indexer) getOrCreateSource(ctx context.Context, rootPath string, repoCfg *RepoConfig) (*storage.Source, error) {
	source, err := idx.storage.GetSource(ctx, rootPath)
	if err == nil {
		return source, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	source = &storage.Source{
		RootPath:     rootPath,
		Name:         repoCfg.resolveName(rootPath),
		IndexVersion: storage.CurrentSchemaVersion,
	}

	if err := idx.storage.CreateSource(ctx, source); err != nil {
		return nil, err
	}

	return source, nil
}

// discoverDocuments finds candidate files under the repository root
func (idx *Indexer) discoverDocuments(rootPath string, repoCfg *RepoConfig, cls *classifier) ([]string, error) {
	var docs []string

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			// Skip hidden directories, dependency trees
			if path != rootPath && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			switch info.Name() {
			case "vendor", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}

		// Skip hidden files and the repo config itself
		if strings.HasPrefix(info.Name(), ".") || info.Name() == RepoConfigFile {
			return nil
		}

		// Skip oversized files
		if info.Size() > repoCfg.MaxFileSize {
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if cls.Excluded(filepath.ToSlash(relPath)) {
			return nil
		}

		docs = append(docs, path)
		return nil
	})

	return docs, err
}

// indexDocuments indexes the discovered documents concurrently in batches
func (idx *Indexer) indexDocuments(ctx context.Context, run *indexRun, docs []string) error {
	batchSize := run.config.BatchSize

	// Use errgroup for concurrent processing with error propagation
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(docs); i += batchSize {
		end := i + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[i:end]

		g.Go(func() error {
			return idx.indexBatch(gctx, run, batch)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Publish statistics
	run.stats.DocumentsIndexed = int(run.counters.indexed.Load())
	run.stats.DocumentsSkipped = int(run.counters.skipped.Load())
	run.stats.DocumentsFailed = int(run.counters.failed.Load())
	run.stats.TermsExtracted = int(run.counters.terms.Load())
	run.stats.ChunksCreated = int(run.counters.chunks.Load())
	run.stats.EmbeddingsGenerated = int(run.counters.embeddings.Load())
	run.stats.EmbeddingsFailed = int(run.counters.embedFails.Load())

	return nil
}

// indexBatch indexes a batch of documents within one transaction, then
// generates embeddings for the committed chunks.
func (idx *Indexer) indexBatch(ctx context.Context, run *indexRun, docs []string) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tasks []embedTask

	for _, docPath := range docs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case run.semaphore <- struct{}{}:
			// Acquire semaphore
		}

		docTasks, err := idx.indexDocument(ctx, tx, run, docPath)
		<-run.semaphore // Release semaphore

		if err != nil {
			run.counters.failed.Add(1)
			run.mu.Lock()
			run.stats.ErrorMessages = append(run.stats.ErrorMessages, fmt.Sprintf("%s: %v", docPath, err))
			run.mu.Unlock()
			// Continue with other documents
			continue
		}
		tasks = append(tasks, docTasks...)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Embeddings are generated outside the transaction: provider calls are
	// slow and must not hold the database connection.
	if len(tasks) > 0 {
		idx.generateEmbeddings(ctx, run, tasks)
	}

	return nil
}

// indexDocument indexes a single document inside the batch transaction and
// returns embedding work for its chunks.
func (idx *Indexer) indexDocument(ctx context.Context, store storage.Storage, run *indexRun, docPath string) ([]embedTask, error) {
	relPath, err := filepath.Rel(run.rootPath, docPath)
	if err != nil {
		return nil, err
	}
	relPath = filepath.ToSlash(relPath)

	content, hash, modTime, sizeBytes, err := readDocument(docPath)
	if err != nil {
		return nil, err
	}

	// Binary files are silently left out
	category, ok := run.classifier.Classify(relPath, content)
	if !ok {
		run.counters.skipped.Add(1)
		return nil, nil
	}

	srcDoc := &types.SourceDocument{
		Path:     relPath,
		Category: category,
		Content:  string(content),
	}
	if srcDoc.Blank() {
		run.counters.skipped.Add(1)
		return nil, nil
	}

	// Incremental update: unchanged documents are skipped, changed ones get
	// their derived rows cleared before re-indexing
	shouldSkip, err := idx.checkDocumentChanged(ctx, store, run, relPath, hash)
	if err != nil {
		return nil, err
	}
	if shouldSkip {
		return nil, nil
	}

	chunks, strategy := run.chunker.ChunkDocument(srcDoc)

	doc := &storage.Document{
		SourceID:    run.source.ID,
		DocPath:     relPath,
		Category:    string(category),
		Dialect:     dialectFor(relPath),
		ContentHash: hash,
		Strategy:    string(strategy),
		ModTime:     modTime,
		SizeBytes:   sizeBytes,
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	// Glossary documents also feed the term lookup table
	termCount := 0
	if category == types.CategoryGlossary {
		for _, term := range chunker.ExtractTerms(srcDoc.Content) {
			if err := store.UpsertTerm(ctx, storage.FromTypesTerm(doc.ID, term)); err != nil {
				return nil, fmt.Errorf("failed to store term: %w", err)
			}
			termCount++
		}
	}

	tasks := make([]embedTask, 0, len(chunks))
	chunkCount := 0
	for _, chunk := range chunks {
		storageChunk := storage.FromTypesChunk(doc.ID, string(strategy), chunk)
		if err := store.UpsertChunk(ctx, storageChunk); err != nil {
			return nil, fmt.Errorf("failed to store chunk: %w", err)
		}
		chunkCount++

		if run.config.GenerateEmbeddings {
			tasks = append(tasks, embedTask{chunkID: storageChunk.ID, content: storageChunk.Content})
		}
	}

	run.counters.indexed.Add(1)
	run.counters.terms.Add(int32(termCount))
	run.counters.chunks.Add(int32(chunkCount))

	return tasks, nil
}

// checkDocumentChanged checks if a document has changed and needs re-indexing
func (idx *Indexer) checkDocumentChanged(ctx context.Context, store storage.Storage, run *indexRun,
	relPath string, hash [32]byte) (bool, error) {

	existing, err := store.GetDocument(ctx, run.source.ID, relPath)
	if errors.Is(err, storage.ErrNotFound) {
		// New document, needs indexing
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if existing.ContentHash == hash && !run.config.Force {
		run.counters.skipped.Add(1)
		return true, nil
	}

	// Document changed - clear derived rows so stale chunks and terms do not
	// survive a re-index that produces fewer of them
	if err := store.DeleteChunksByDocument(ctx, existing.ID); err != nil {
		return false, fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if err := store.DeleteTermsByDocument(ctx, existing.ID); err != nil {
		return false, fmt.Errorf("failed to delete old terms: %w", err)
	}

	return false, nil
}

// generateEmbeddings embeds committed chunks in provider-sized batches.
// Failures are recorded and counted but never fail the indexing run.
func (idx *Indexer) generateEmbeddings(ctx context.Context, run *indexRun, tasks []embedTask) {
	batchSize := run.config.EmbeddingBatch

	for i := 0; i < len(tasks); i += batchSize {
		end := i + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		group := tasks[i:end]

		texts := make([]string, len(group))
		for j, task := range group {
			texts[j] = task.content
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			run.counters.embedFails.Add(int32(len(group)))
			run.mu.Lock()
			run.stats.ErrorMessages = append(run.stats.ErrorMessages, fmt.Sprintf("embedding batch: %v", err))
			run.mu.Unlock()
			continue
		}

		for j, emb := range resp.Embeddings {
			if j >= len(group) {
				break
			}
			record := &storage.Embedding{
				ChunkID:   group[j].chunkID,
				Vector:    storage.SerializeVector(emb.Vector),
				Dimension: emb.Dimension,
				Provider:  emb.Provider,
				Model:     emb.Model,
			}
			if err := idx.storage.UpsertEmbedding(ctx, record); err != nil {
				run.counters.embedFails.Add(1)
				run.mu.Lock()
				run.stats.ErrorMessages = append(run.stats.ErrorMessages, fmt.Sprintf("store embedding for chunk %d: %v", group[j].chunkID, err))
				run.mu.Unlock()
				continue
			}
			run.counters.embeddings.Add(1)
		}
	}
}

// updateSourceStats refreshes the source's document and chunk counts
func (idx *Indexer) updateSourceStats(ctx context.Context, source *storage.Source, name string) error {
	docs, err := idx.storage.ListDocuments(ctx, source.ID)
	if err != nil {
		return err
	}

	totalChunks := 0
	for _, doc := range docs {
		chunks, err := idx.storage.ListChunksByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		totalChunks += len(chunks)
	}

	source.Name = name
	source.TotalDocuments = len(docs)
	source.TotalChunks = totalChunks
	source.LastIndexedAt = time.Now()

	return idx.storage.UpdateSource(ctx, source)
}

// readDocument loads a document and returns its content, SHA-256 hash, and
// file metadata.
func readDocument(docPath string) ([]byte, [32]byte, time.Time, int64, error) {
	content, err := os.ReadFile(docPath)
	if err != nil {
		return nil, [32]byte{}, time.Time{}, 0, err
	}

	info, err := os.Stat(docPath)
	if err != nil {
		return nil, [32]byte{}, time.Time{}, 0, err
	}

	return content, sha256.Sum256(content), info.ModTime(), info.Size(), nil
}

// dialectFor records the code dialect for a path, empty for non-code files.
func dialectFor(relPath string) string {
	if d := parser.DialectFromPath(relPath); d != parser.DialectUnknown {
		return string(d)
	}
	return ""
}
