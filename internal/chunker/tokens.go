package chunker

import "math"

const (
	// CharsPerToken is the character-to-token ratio behind every size
	// comparison in this package. Precision is irrelevant; the invariant is
	// that all strategies budget with the same function.
	CharsPerToken = 3.5

	// DefaultMaxTokens is the per-chunk budget used when the caller supplies
	// a non-positive one.
	DefaultMaxTokens = 500

	// DefaultOverlapTokens is the cross-chunk overlap budget used when the
	// caller supplies a negative one.
	DefaultOverlapTokens = 50
)

// EstimateTokens estimates the token count of text: ceil(len/3.5).
// Deterministic and pure; a cheap proxy for an embedding model's tokenizer.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / CharsPerToken))
}

// maxCharsFor converts a token budget into the character budget used by the
// construct strategy and the raw line slicer.
func maxCharsFor(maxTokens int) int {
	return int(math.Floor(float64(maxTokens) * CharsPerToken))
}
