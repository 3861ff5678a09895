package types

import (
	"crypto/sha256"
	"errors"
	"strings"
)

// Chunk is one ordered fragment of a single document, sized for an embedding
// model's input budget. Chunks are immutable once produced and carry no
// cross-document identity; persistence keys them by (document, Index).
type Chunk struct {
	Index      int // 0-based, monotonic within the document
	Content    string
	TokenCount int // estimate, see chunker.EstimateTokens
}

// Hash returns the SHA-256 hash of the chunk content for deduplication.
func (c *Chunk) Hash() [32]byte {
	return sha256.Sum256([]byte(c.Content))
}

// Validate checks structural integrity of the chunk.
func (c *Chunk) Validate() error {
	if c.Index < 0 {
		return errors.New("chunk index must be >= 0")
	}
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.TokenCount < 0 {
		return errors.New("token count must be >= 0")
	}
	return nil
}

// SourceDocument is the unit of input to the chunking core: raw text plus the
// category tag assigned by source configuration. Path is an identity reference
// used only as a dialect hint for code parsing, never for I/O.
type SourceDocument struct {
	Path     string
	Category Category
	Content  string
}

// Blank reports whether the document has no chunkable text.
func (d *SourceDocument) Blank() bool {
	return strings.TrimSpace(d.Content) == ""
}
