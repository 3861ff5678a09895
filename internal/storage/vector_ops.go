package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// searchVector finds the chunks whose embeddings are most similar to the
// query vector, scoring in SQL when sqlite-vec is loaded and in Go otherwise.
func searchVector(ctx context.Context, db *sql.DB, sourceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	// SQLite treats a negative LIMIT as unbounded, so guard here
	if limit <= 0 {
		return []VectorResult{}, nil
	}

	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, sourceID, queryVector, limit, filters)
	}
	return searchVectorFallback(ctx, db, sourceID, queryVector, limit, filters)
}

// searchVectorOptimized scores, filters, orders, and limits entirely in SQL
// via sqlite-vec. vec_distance_cosine reports distance (lower is better), so
// 1 - distance recovers the similarity the callers expect.
func searchVectorOptimized(ctx context.Context, db *sql.DB, sourceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	blob := serializeVector(queryVector)

	query := `
		SELECT
			c.id as chunk_id,
			1.0 - vec_distance_cosine(e.vector, ?) as similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE d.source_id = ?
	`
	args := []interface{}{blob, sourceID}
	query, args = applySearchFilters(query, args, filters)

	if filters != nil && filters.MinRelevance > 0 {
		query += " AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?"
		args = append(args, blob, filters.MinRelevance)
	}

	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var res VectorResult
		if err := rows.Scan(&res.ChunkID, &res.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// searchVectorFallback loads every candidate embedding for the source and
// scores it in Go. Used by purego builds, where sqlite-vec is unavailable.
func searchVectorFallback(ctx context.Context, db *sql.DB, sourceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT
			c.id as chunk_id,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE d.source_id = ?
	`
	args := []interface{}{sourceID}
	query, args = applySearchFilters(query, args, filters)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, filters)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText runs a BM25-ranked FTS5 query over chunk content.
func searchText(ctx context.Context, db *sql.DB, sourceID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	// chunks_fts is an external-content table, so its rowid is the chunk id
	sqlQuery := `
		SELECT
			c.id as chunk_id,
			bm25(chunks_fts) as score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE chunks_fts MATCH ?
		AND d.source_id = ?
	`
	args := []interface{}{sanitized, sourceID}
	sqlQuery, args = applySearchFilters(sqlQuery, args, filters)

	// Raw bm25() is ascending-better, hence the plain ORDER BY.
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows, filters)
}

// Helper functions

// applySearchFilters adds WHERE clause filters shared by vector and text search.
// Assumes the query joins chunks as c and documents as d.
func applySearchFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if len(filters.Categories) > 0 {
		query += " AND d.category IN ("
		for i, cat := range filters.Categories {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, cat)
		}
		query += ")"
	}

	if len(filters.Strategies) > 0 && filters.Strategies[0] != "" {
		query += " AND c.strategy IN ("
		for i, strat := range filters.Strategies {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, strat)
		}
		query += ")"
	}

	if filters.PathPattern != "" {
		query += " AND d.doc_path GLOB ?"
		args = append(args, filters.PathPattern)
	}

	return query, args
}

// computeSimilarityScores scans candidate rows and scores each stored vector
// against the query vector, dropping vectors below MinRelevance.
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filters *SearchFilters) ([]candidate, error) {
	candidates := make([]candidate, 0, 1000)

	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}

		vec := deserializeVector(blob)
		// Vectors from a different embedding model can't be compared.
		if len(vec) != len(queryVector) {
			continue
		}

		score := cosineSimilarity(queryVector, vec)
		if filters != nil && filters.MinRelevance > 0 && score < filters.MinRelevance {
			continue
		}

		candidates = append(candidates, candidate{chunkID: chunkID, score: score})
	}

	return candidates, rows.Err()
}

// buildVectorResults keeps the top limit candidates in scored order. A zero
// or negative limit returns everything.
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	n := len(candidates)
	if limit > 0 && limit < n {
		n = limit
	}

	results := make([]VectorResult, n)
	for i := range results {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults scans FTS hits and maps raw BM25 scores onto (0, 1].
func collectTextResults(rows *sql.Rows, filters *SearchFilters) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var res TextResult
		if err := rows.Scan(&res.ChunkID, &res.BM25Score); err != nil {
			return nil, err
		}

		// SQLite's bm25() reports negative scores where lower is better,
		// usually within [-50, 0]. Fold that into a positive scale so the
		// MinRelevance filter and RRF see comparable numbers.
		res.BM25Score = 1.0 / (1.0 + math.Abs(res.BM25Score)/50.0)

		if filters != nil && filters.MinRelevance > 0 && res.BM25Score < filters.MinRelevance {
			continue
		}

		results = append(results, res)
	}

	return results, rows.Err()
}

// serializeVector packs a vector into a little-endian blob for BLOB storage.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeVector unpacks a blob written by serializeVector.
func deserializeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 on
// length mismatch or zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		magA += float64(a[i] * a[i])
		magB += float64(b[i] * b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// candidate pairs a chunk with its similarity score during ranking.
type candidate struct {
	chunkID int64
	score   float64
}

func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// sanitizeFTSQuery rewrites a raw query as quoted FTS5 phrase tokens.
// Quoting neutralizes MATCH syntax (AND, OR, NOT, NEAR, *, parentheses,
// column prefixes) so user input cannot alter the query structure.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(strings.ReplaceAll(query, `"`, " "))
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, len(fields))
	for i, field := range fields {
		quoted[i] = `"` + field + `"`
	}
	return strings.Join(quoted, " ")
}

// SerializeVector converts an embedding vector into the little-endian blob
// form stored in the embeddings table.
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector converts a stored blob back into an embedding vector.
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero-magnitude input.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
