package types

// SearchResult is one ranked hit returned by a search.
type SearchResult struct {
	ChunkID int64
	Rank    int // 1-based position in the result set

	// RelevanceScore is the fused vector and keyword score after rank
	// fusion, normalized into [0, 1].
	RelevanceScore float64

	Document   *DocumentInfo
	Content    string
	ChunkIndex int // ordinal of the chunk within its document
}

// DocumentInfo carries the document-level metadata attached to a result.
type DocumentInfo struct {
	Path     string // relative to the repository root
	Category Category
	Strategy string // chunking strategy that produced the document's chunks
}

// Validate reports the first structural problem with the result.
func (sr *SearchResult) Validate() error {
	switch {
	case sr.ChunkID == 0:
		return ErrInvalidChunkID
	case sr.Rank < 1:
		return ErrInvalidRank
	case sr.RelevanceScore < 0 || sr.RelevanceScore > 1:
		return ErrInvalidRelevanceScore
	case sr.Document == nil:
		return ErrMissingDocumentInfo
	case sr.Content == "":
		return ErrEmptyContent
	}
	return nil
}

// TermResult is a glossary lookup hit.
type TermResult struct {
	Term     Term
	Document *DocumentInfo
	Exact    bool // term matched case-insensitively in full
}
