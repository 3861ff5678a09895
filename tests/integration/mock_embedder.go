package integration

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/kbcontext-mcp/internal/embedder"
)

const (
	mockProvider = "mock"
	mockModel    = "mock-v1"
)

// MockEmbedder derives unit-length vectors from a chained SHA-256 over the
// input text. Equal texts always embed identically, distinct texts almost
// never collide, and no network is involved.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock embedder producing vectors of the given size.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if req.Text == "" {
		return nil, embedder.ErrEmptyText
	}

	return &embedder.Embedding{
		Vector:    deriveVector(req.Text, m.dimension),
		Dimension: m.dimension,
		Provider:  mockProvider,
		Model:     mockModel,
		Hash:      embedder.ComputeHash(req.Text),
	}, nil
}

// GenerateBatch embeds each text in order, failing the whole batch on the
// first empty entry.
func (m *MockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	out := make([]*embedder.Embedding, 0, len(req.Texts))
	for _, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: mockProvider, Model: mockModel}, nil
}

func (m *MockEmbedder) Dimension() int   { return m.dimension }
func (m *MockEmbedder) Provider() string { return mockProvider }
func (m *MockEmbedder) Model() string    { return mockModel }
func (m *MockEmbedder) Close() error     { return nil }

// deriveVector expands the text's digest into dim pseudo-random floats in
// [-1, 1], re-hashing the block whenever its 8 words are consumed, then
// scales the result to unit length so cosine scores stay in range.
func deriveVector(text string, dim int) []float32 {
	block := sha256.Sum256([]byte(text))
	vector := make([]float32, dim)

	word := 0
	for i := range vector {
		if word == 8 {
			block = sha256.Sum256(block[:])
			word = 0
		}
		raw := binary.BigEndian.Uint32(block[word*4 : word*4+4])
		vector[i] = (float32(raw)/float32(1<<32))*2 - 1
		word++
	}

	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		scale := float32(1.0 / math.Sqrt(sum))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector
}
