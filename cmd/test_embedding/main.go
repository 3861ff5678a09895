// Command test_embedding indexes a throwaway knowledge repository with a
// stub embedder and reports whether vectors landed in storage. It exists for
// manual smoke-testing the indexer/embedder wiring without an API key.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dshills/kbcontext-mcp/internal/embedder"
	"github.com/dshills/kbcontext-mcp/internal/indexer"
	"github.com/dshills/kbcontext-mcp/internal/storage"
)

// stubEmbedder returns the same flat vector for every text. Values are
// irrelevant here; only storage round-tripping is under test.
type stubEmbedder struct {
	dim int
}

func (s *stubEmbedder) embedding() *embedder.Embedding {
	vector := make([]float32, s.dim)
	for i := range vector {
		vector[i] = 0.5
	}
	return &embedder.Embedding{
		Vector:    vector,
		Dimension: s.dim,
		Provider:  "stub",
		Model:     "stub-v1",
	}
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return s.embedding(), nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i := range req.Texts {
		embeddings[i] = s.embedding()
	}
	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   "stub",
		Model:      "stub-v1",
	}, nil
}

func (s *stubEmbedder) Dimension() int   { return s.dim }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub-v1" }
func (s *stubEmbedder) Close() error     { return nil }

func main() {
	fmt.Println("Smoke-testing embedding generation through the indexer...")

	tmpDir, err := os.MkdirTemp("", "kbcontext-test-*")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := writeFixtures(tmpDir); err != nil {
		log.Fatalf("Failed to write fixtures: %v", err)
	}

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	idx := indexer.NewWithEmbedder(store, &stubEmbedder{dim: 384})

	ctx := context.Background()
	stats, err := idx.IndexRepository(ctx, tmpDir, &indexer.Config{
		Workers:            2,
		BatchSize:          10,
		EmbeddingBatch:     30,
		GenerateEmbeddings: true,
	})
	if err != nil {
		log.Fatalf("Failed to index repository: %v", err)
	}

	fmt.Printf("\nIndexing Statistics:\n")
	fmt.Printf("  Documents Indexed: %d\n", stats.DocumentsIndexed)
	fmt.Printf("  Documents Skipped: %d\n", stats.DocumentsSkipped)
	fmt.Printf("  Documents Failed: %d\n", stats.DocumentsFailed)
	fmt.Printf("  Terms Extracted: %d\n", stats.TermsExtracted)
	fmt.Printf("  Chunks Created: %d\n", stats.ChunksCreated)
	fmt.Printf("  Embeddings Generated: %d\n", stats.EmbeddingsGenerated)
	fmt.Printf("  Embeddings Failed: %d\n", stats.EmbeddingsFailed)
	fmt.Printf("  Duration: %v\n", stats.Duration)
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  error: %s\n", msg)
	}

	stored, err := countStoredEmbeddings(ctx, store, tmpDir)
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}

	fmt.Printf("\nEmbeddings in DB: %d\n", stored)
	if stored == 0 {
		fmt.Println("FAILURE: no embeddings were stored")
		os.Exit(1)
	}
	fmt.Println("SUCCESS: embeddings generated and stored")
}

func writeFixtures(dir string) error {
	files := map[string]string{
		"glossary.md": "# Glossary\n\n**SLA**: Service Level Agreement, the uptime promise made to customers.\n\n**RCA**: Root Cause Analysis, written after every incident.\n",
		"runbook.md":  "# Runbook\n\n## Restarts\n\nRestart the worker pool before the dispatcher.\n\n## Escalation\n\nPage the on-call lead after two failed restarts.\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// countStoredEmbeddings walks every chunk under the source and counts the
// ones that have a vector on record.
func countStoredEmbeddings(ctx context.Context, store storage.Storage, rootPath string) (int, error) {
	source, err := store.GetSource(ctx, rootPath)
	if err != nil {
		return 0, fmt.Errorf("get source: %w", err)
	}

	docs, err := store.ListDocuments(ctx, source.ID)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	count := 0
	for _, doc := range docs {
		chunks, err := store.ListChunksByDocument(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("list chunks for document %d: %w", doc.ID, err)
		}
		for _, chunk := range chunks {
			if _, err := store.GetEmbedding(ctx, chunk.ID); err == nil {
				count++
			}
		}
	}
	return count, nil
}
