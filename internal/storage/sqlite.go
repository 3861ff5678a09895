package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on unique-constraint conflicts.
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements Storage on a single SQLite database file.
type SQLiteStorage struct {
	db *sql.DB
}

func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// One long-lived connection. SQLite permits a single writer at a time,
	// and per-connection pragmas only survive as long as the connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL lets readers proceed during writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Makes the schema's ON DELETE CASCADE rules effective.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the database at dbPath, creating it if needed, and
// brings its schema up to date.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a transaction that exposes the same operations as the store.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier abstracts over *sql.DB and *sql.Tx so every statement helper can
// serve both direct and transactional calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) querier() querier      { return t.tx }
func (s *SQLiteStorage) querier() querier { return s.db }

// Source operations

func (s *SQLiteStorage) createSourceWithQuerier(ctx context.Context, q querier, source *Source) error {
	query := `
		INSERT INTO sources (root_path, name, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		source.RootPath, source.Name, source.IndexVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	source.ID = id
	source.CreatedAt = now
	source.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateSource(ctx context.Context, source *Source) error {
	return s.createSourceWithQuerier(ctx, s.querier(), source)
}

func (s *SQLiteStorage) getSourceWithQuerier(ctx context.Context, q querier, rootPath string) (*Source, error) {
	query := `
		SELECT id, root_path, name, total_documents, total_chunks,
		       index_version, last_indexed_at, created_at, updated_at
		FROM sources
		WHERE root_path = ?
	`
	var source Source
	var lastIndexedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, rootPath).Scan(
		&source.ID, &source.RootPath, &source.Name,
		&source.TotalDocuments, &source.TotalChunks, &source.IndexVersion,
		&lastIndexedAt, &source.CreatedAt, &source.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		source.LastIndexedAt = lastIndexedAt.Time
	}
	return &source, nil
}

func (s *SQLiteStorage) GetSource(ctx context.Context, rootPath string) (*Source, error) {
	return s.getSourceWithQuerier(ctx, s.querier(), rootPath)
}

func (s *SQLiteStorage) getSourceByIDWithQuerier(ctx context.Context, q querier, sourceID int64) (*Source, error) {
	query := `
		SELECT id, root_path, name, total_documents, total_chunks,
		       index_version, last_indexed_at, created_at, updated_at
		FROM sources
		WHERE id = ?
	`
	var source Source
	var lastIndexedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, sourceID).Scan(
		&source.ID, &source.RootPath, &source.Name,
		&source.TotalDocuments, &source.TotalChunks, &source.IndexVersion,
		&lastIndexedAt, &source.CreatedAt, &source.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		source.LastIndexedAt = lastIndexedAt.Time
	}
	return &source, nil
}

func (s *SQLiteStorage) updateSourceWithQuerier(ctx context.Context, q querier, source *Source) error {
	query := `
		UPDATE sources
		SET name = ?, total_documents = ?, total_chunks = ?,
		    index_version = ?, last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		source.Name, source.TotalDocuments, source.TotalChunks,
		source.IndexVersion, source.LastIndexedAt, now, source.ID)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	source.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateSource(ctx context.Context, source *Source) error {
	return s.updateSourceWithQuerier(ctx, s.querier(), source)
}

// Document operations

func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	query := `
		INSERT INTO documents (source_id, doc_path, category, dialect, content_hash, strategy, index_error, mod_time, size_bytes, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, doc_path) DO UPDATE SET
			category = excluded.category,
			dialect = excluded.dialect,
			content_hash = excluded.content_hash,
			strategy = excluded.strategy,
			index_error = excluded.index_error,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		doc.SourceID, doc.DocPath, doc.Category, doc.Dialect, doc.ContentHash[:],
		doc.Strategy, doc.IndexError, doc.ModTime, doc.SizeBytes, now, now, now).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	doc.LastIndexedAt = now
	doc.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, sourceID int64, docPath string) (*Document, error) {
	query := `
		SELECT id, source_id, doc_path, category, dialect, content_hash, strategy,
		       index_error, mod_time, size_bytes, last_indexed_at, created_at, updated_at
		FROM documents
		WHERE source_id = ? AND doc_path = ?
	`
	var doc Document
	var hash []byte
	var indexError sql.NullString
	err := q.QueryRowContext(ctx, query, sourceID, docPath).Scan(
		&doc.ID, &doc.SourceID, &doc.DocPath, &doc.Category, &doc.Dialect,
		&hash, &doc.Strategy, &indexError, &doc.ModTime, &doc.SizeBytes,
		&doc.LastIndexedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(doc.ContentHash[:], hash)
	if indexError.Valid {
		doc.IndexError = &indexError.String
	}
	return &doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, sourceID int64, docPath string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), sourceID, docPath)
}

func (s *SQLiteStorage) getDocumentByIDWithQuerier(ctx context.Context, q querier, docID int64) (*Document, error) {
	query := `
		SELECT id, source_id, doc_path, category, dialect, content_hash, strategy,
		       index_error, mod_time, size_bytes, last_indexed_at, created_at, updated_at
		FROM documents
		WHERE id = ?
	`
	var doc Document
	var hash []byte
	var indexError sql.NullString
	err := q.QueryRowContext(ctx, query, docID).Scan(
		&doc.ID, &doc.SourceID, &doc.DocPath, &doc.Category, &doc.Dialect,
		&hash, &doc.Strategy, &indexError, &doc.ModTime, &doc.SizeBytes,
		&doc.LastIndexedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(doc.ContentHash[:], hash)
	if indexError.Valid {
		doc.IndexError = &indexError.String
	}
	return &doc, nil
}

func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, docID int64) (*Document, error) {
	return s.getDocumentByIDWithQuerier(ctx, s.querier(), docID)
}

func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, docID int64) error {
	query := `DELETE FROM documents WHERE id = ?`
	_, err := q.ExecContext(ctx, query, docID)
	return err
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, docID int64) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), docID)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier, sourceID int64) ([]*Document, error) {
	query := `
		SELECT id, source_id, doc_path, category, dialect, content_hash, strategy,
		       index_error, mod_time, size_bytes, last_indexed_at, created_at, updated_at
		FROM documents
		WHERE source_id = ?
		ORDER BY doc_path
	`
	rows, err := q.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		var doc Document
		var hash []byte
		var indexError sql.NullString

		err := rows.Scan(
			&doc.ID, &doc.SourceID, &doc.DocPath, &doc.Category, &doc.Dialect,
			&hash, &doc.Strategy, &indexError, &doc.ModTime, &doc.SizeBytes,
			&doc.LastIndexedAt, &doc.CreatedAt, &doc.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		copy(doc.ContentHash[:], hash)
		if indexError.Valid {
			doc.IndexError = &indexError.String
		}

		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context, sourceID int64) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier(), sourceID)
}

// Term operations

func (s *SQLiteStorage) upsertTermWithQuerier(ctx context.Context, q querier, term *Term) error {
	// Use atomic INSERT ... ON CONFLICT so re-indexing a glossary keeps one
	// row per term
	query := `
		INSERT INTO terms (document_id, term, definition, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, term)
		DO UPDATE SET
			definition = excluded.definition
		RETURNING id, created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		term.DocumentID, term.Term, term.Definition, now,
	).Scan(&term.ID, &term.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert term: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) UpsertTerm(ctx context.Context, term *Term) error {
	return s.upsertTermWithQuerier(ctx, s.querier(), term)
}

func (s *SQLiteStorage) listTermsByDocumentWithQuerier(ctx context.Context, q querier, docID int64) ([]*Term, error) {
	query := `
		SELECT id, document_id, term, definition, created_at
		FROM terms
		WHERE document_id = ?
		ORDER BY term
	`
	rows, err := q.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	terms := make([]*Term, 0)
	for rows.Next() {
		var term Term
		err := rows.Scan(&term.ID, &term.DocumentID, &term.Term, &term.Definition, &term.CreatedAt)
		if err != nil {
			return nil, err
		}
		terms = append(terms, &term)
	}
	return terms, rows.Err()
}

func (s *SQLiteStorage) ListTermsByDocument(ctx context.Context, docID int64) ([]*Term, error) {
	return s.listTermsByDocumentWithQuerier(ctx, s.querier(), docID)
}

func (s *SQLiteStorage) deleteTermsByDocumentWithQuerier(ctx context.Context, q querier, docID int64) error {
	query := `DELETE FROM terms WHERE document_id = ?`
	_, err := q.ExecContext(ctx, query, docID)
	return err
}

func (s *SQLiteStorage) DeleteTermsByDocument(ctx context.Context, docID int64) error {
	return s.deleteTermsByDocumentWithQuerier(ctx, s.querier(), docID)
}

func (s *SQLiteStorage) lookupTermWithQuerier(ctx context.Context, q querier, sourceID int64, term string) ([]*Term, error) {
	// Exact, case-insensitive match across all glossary documents of the
	// source. A term defined in several glossaries returns several rows.
	query := `
		SELECT t.id, t.document_id, t.term, t.definition, t.created_at
		FROM terms t
		JOIN documents d ON t.document_id = d.id
		WHERE d.source_id = ? AND t.term = ? COLLATE NOCASE
		ORDER BY d.doc_path
	`
	rows, err := q.QueryContext(ctx, query, sourceID, term)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	terms := make([]*Term, 0)
	for rows.Next() {
		var t Term
		err := rows.Scan(&t.ID, &t.DocumentID, &t.Term, &t.Definition, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		terms = append(terms, &t)
	}
	return terms, rows.Err()
}

func (s *SQLiteStorage) LookupTerm(ctx context.Context, sourceID int64, term string) ([]*Term, error) {
	return s.lookupTermWithQuerier(ctx, s.querier(), sourceID, term)
}

func (s *SQLiteStorage) searchTermsWithQuerier(ctx context.Context, q querier, sourceID int64, query string, limit int) ([]*Term, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return []*Term{}, nil
	}

	// Note: In FTS5, 'rank' is a built-in virtual column representing BM25
	// relevance score. It should be accessed without table qualification
	// when used in ORDER BY. Lower rank values indicate better matches.
	sqlQuery := `
		SELECT t.id, t.document_id, t.term, t.definition, t.created_at
		FROM terms t
		JOIN terms_fts fts ON t.id = fts.rowid
		JOIN documents d ON t.document_id = d.id
		WHERE fts.terms_fts MATCH ? AND d.source_id = ?
		ORDER BY rank
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, sanitized, sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	terms := make([]*Term, 0)
	for rows.Next() {
		var t Term
		err := rows.Scan(&t.ID, &t.DocumentID, &t.Term, &t.Definition, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		terms = append(terms, &t)
	}
	return terms, rows.Err()
}

func (s *SQLiteStorage) SearchTerms(ctx context.Context, sourceID int64, query string, limit int) ([]*Term, error) {
	return s.searchTermsWithQuerier(ctx, s.querier(), sourceID, query, limit)
}

// Chunk operations

func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	// Use atomic INSERT ... ON CONFLICT to avoid race conditions
	query := `
		INSERT INTO chunks (
			document_id, chunk_index, content, content_hash, token_count,
			strategy, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, chunk_index)
		DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			strategy = excluded.strategy,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	if err := q.QueryRowContext(ctx, query,
		chunk.DocumentID, chunk.ChunkIndex, chunk.Content, chunk.ContentHash[:],
		chunk.TokenCount, chunk.Strategy, now, now,
	).Scan(&chunk.ID, &chunk.CreatedAt, &chunk.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.upsertChunkWithQuerier(ctx, s.querier(), chunk)
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content, content_hash, token_count,
		       strategy, created_at, updated_at
		FROM chunks
		WHERE id = ?
	`
	var chunk Chunk
	var hash []byte

	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &hash,
		&chunk.TokenCount, &chunk.Strategy, &chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	copy(chunk.ContentHash[:], hash)
	return &chunk, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) listChunksByDocumentWithQuerier(ctx context.Context, q querier, docID int64) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content, content_hash, token_count,
		       strategy, created_at, updated_at
		FROM chunks
		WHERE document_id = ?
		ORDER BY chunk_index
	`
	rows, err := q.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		var chunk Chunk
		var hash []byte

		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &hash,
			&chunk.TokenCount, &chunk.Strategy, &chunk.CreatedAt, &chunk.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		copy(chunk.ContentHash[:], hash)
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, docID int64) ([]*Chunk, error) {
	return s.listChunksByDocumentWithQuerier(ctx, s.querier(), docID)
}

// DeleteChunk deletes a single chunk by ID.
func (s *SQLiteStorage) DeleteChunk(ctx context.Context, chunkID int64) error {
	return s.deleteChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) deleteChunkWithQuerier(ctx context.Context, q querier, chunkID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, chunkID)
	return err
}

// DeleteChunksBatch deletes the given chunks in one statement and reports how
// many rows were actually removed.
func (s *SQLiteStorage) DeleteChunksBatch(ctx context.Context, chunkIDs []int64) (int, error) {
	return s.deleteChunksBatchWithQuerier(ctx, s.querier(), chunkIDs)
}

func (s *SQLiteStorage) deleteChunksBatchWithQuerier(ctx context.Context, q querier, chunkIDs []int64) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStorage) deleteChunksByDocumentWithQuerier(ctx context.Context, q querier, docID int64) error {
	query := `DELETE FROM chunks WHERE document_id = ?`
	_, err := q.ExecContext(ctx, query, docID)
	return err
}

func (s *SQLiteStorage) DeleteChunksByDocument(ctx context.Context, docID int64) error {
	return s.deleteChunksByDocumentWithQuerier(ctx, s.querier(), docID)
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, emb *Embedding) error {
	// Re-embedding a chunk replaces its vector in place; chunk_id is unique.
	query := `
		INSERT INTO embeddings (chunk_id, provider, model, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			dimension = excluded.dimension,
			vector = excluded.vector
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		emb.ChunkID, emb.Provider, emb.Model, emb.Dimension, emb.Vector, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if emb.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			emb.ID = id
		}
	}

	emb.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), emb)
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64) (*Embedding, error) {
	query := `
		SELECT id, chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var embedding Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&embedding.ID, &embedding.ChunkID, &embedding.Vector,
		&embedding.Dimension, &embedding.Provider, &embedding.Model,
		&embedding.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &embedding, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) deleteEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id = ?`, chunkID)
	return err
}

func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, chunkID int64) error {
	return s.deleteEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Search operations. Both implementations live in vector_ops.go; the
// build-tag pair in build_cgo.go and build_purego.go decides whether vector
// scoring runs inside SQLite or in Go.

func (s *SQLiteStorage) SearchVector(ctx context.Context, sourceID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.db, sourceID, queryVector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, sourceID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.db, sourceID, query, limit, filters)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context, sourceID int64) (*SourceStatus, error) {
	// Get source info
	source, err := s.getSourceByIDWithQuerier(ctx, s.querier(), sourceID)
	if err != nil {
		return nil, err
	}

	status := &SourceStatus{
		Source:        source,
		LastIndexedAt: source.LastIndexedAt,
	}

	// Every count is scoped to the source through the document table.
	counts := []struct {
		dst   *int
		query string
	}{
		{&status.DocumentsCount, "SELECT COUNT(*) FROM documents WHERE source_id = ?"},
		{&status.FailedDocuments, "SELECT COUNT(*) FROM documents WHERE source_id = ? AND index_error IS NOT NULL"},
		{&status.TermsCount, `
			SELECT COUNT(*) FROM terms t
			JOIN documents d ON t.document_id = d.id
			WHERE d.source_id = ?`},
		{&status.ChunksCount, `
			SELECT COUNT(*) FROM chunks c
			JOIN documents d ON c.document_id = d.id
			WHERE d.source_id = ?`},
		{&status.EmbeddingsCount, `
			SELECT COUNT(*) FROM embeddings e
			JOIN chunks c ON e.chunk_id = c.id
			JOIN documents d ON c.document_id = d.id
			WHERE d.source_id = ?`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, sourceID).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	// On-disk size from the page pragmas; best effort only.
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	// Check health status
	var ftsCount int
	_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('chunks_fts', 'terms_fts')").Scan(&ftsCount)
	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     ftsCount == 2,
	}

	return status, nil
}

// Transaction implementations

// Every operation goes through the internal helper with the transaction's
// querier so reads inside a transaction observe its own writes. With
// MaxOpenConns(1) a read routed to the pool would block behind the open
// transaction.

func (t *sqliteTx) CreateSource(ctx context.Context, source *Source) error {
	return t.storage.createSourceWithQuerier(ctx, t.querier(), source)
}

func (t *sqliteTx) GetSource(ctx context.Context, rootPath string) (*Source, error) {
	return t.storage.getSourceWithQuerier(ctx, t.querier(), rootPath)
}

func (t *sqliteTx) UpdateSource(ctx context.Context, source *Source) error {
	return t.storage.updateSourceWithQuerier(ctx, t.querier(), source)
}

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, sourceID int64, docPath string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), sourceID, docPath)
}

func (t *sqliteTx) GetDocumentByID(ctx context.Context, docID int64) (*Document, error) {
	return t.storage.getDocumentByIDWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, docID int64) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) ListDocuments(ctx context.Context, sourceID int64) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier(), sourceID)
}

func (t *sqliteTx) UpsertTerm(ctx context.Context, term *Term) error {
	return t.storage.upsertTermWithQuerier(ctx, t.querier(), term)
}

func (t *sqliteTx) ListTermsByDocument(ctx context.Context, docID int64) ([]*Term, error) {
	return t.storage.listTermsByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) DeleteTermsByDocument(ctx context.Context, docID int64) error {
	return t.storage.deleteTermsByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) LookupTerm(ctx context.Context, sourceID int64, term string) ([]*Term, error) {
	return t.storage.lookupTermWithQuerier(ctx, t.querier(), sourceID, term)
}

func (t *sqliteTx) SearchTerms(ctx context.Context, sourceID int64, query string, limit int) ([]*Term, error) {
	return t.storage.searchTermsWithQuerier(ctx, t.querier(), sourceID, query, limit)
}

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.upsertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksByDocument(ctx context.Context, docID int64) ([]*Chunk, error) {
	return t.storage.listChunksByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) DeleteChunk(ctx context.Context, chunkID int64) error {
	return t.storage.deleteChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) DeleteChunksBatch(ctx context.Context, chunkIDs []int64) (int, error) {
	return t.storage.deleteChunksBatchWithQuerier(ctx, t.querier(), chunkIDs)
}

func (t *sqliteTx) DeleteChunksByDocument(ctx context.Context, docID int64) error {
	return t.storage.deleteChunksByDocumentWithQuerier(ctx, t.querier(), docID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), emb)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) DeleteEmbedding(ctx context.Context, chunkID int64) error {
	return t.storage.deleteEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, sourceID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return t.storage.SearchVector(ctx, sourceID, vector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, sourceID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return t.storage.SearchText(ctx, sourceID, query, limit, filters)
}

func (t *sqliteTx) GetStatus(ctx context.Context, sourceID int64) (*SourceStatus, error) {
	return t.storage.GetStatus(ctx, sourceID)
}

func (t *sqliteTx) Close() error {
	// The connection belongs to the parent storage, not the transaction.
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// No nesting. Switch the helpers to SAVEPOINT if a caller ever needs it.
	return nil, errors.New("nested transactions not supported")
}
