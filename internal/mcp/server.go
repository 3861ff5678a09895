package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/kbcontext-mcp/internal/embedder"
	"github.com/dshills/kbcontext-mcp/internal/indexer"
	"github.com/dshills/kbcontext-mcp/internal/searcher"
	"github.com/dshills/kbcontext-mcp/internal/storage"
)

const (
	// ServerName and ServerVersion identify this server during the MCP
	// handshake.
	ServerName    = "kbcontext-mcp"
	ServerVersion = "1.0.0"

	// DefaultDBPath is where the index lands when KBCONTEXT_DB_PATH is
	// not set.
	DefaultDBPath = "~/.kbcontext/index.db"
)

// Server owns the protocol endpoint and the storage, indexer, and
// searcher instances its tool handlers dispatch to.
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// NewServer builds the full tool stack on top of the SQLite file at
// dbPath. An empty path resolves to DefaultDBPath under the home
// directory.
func NewServer(dbPath string) (*Server, error) {
	dbFile, err := resolveDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// One embedder serves both halves so vectors cached while indexing
	// are reusable at query time.
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		indexer:  indexer.NewWithEmbedder(store, emb),
		searcher: searcher.NewSearcher(store, emb),
	}
	s.registerTools()

	return s, nil
}

// resolveDBPath expands the default ~-relative location; any other path
// is used as given.
func resolveDBPath(dbPath string) (string, error) {
	if dbPath != "" && dbPath != DefaultDBPath {
		return dbPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kbcontext", "index.db"), nil
}

// Serve runs the MCP protocol over stdio until the client disconnects,
// closing the storage handle on the way out.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools wires the four tool definitions to their handlers.
func (s *Server) registerTools() {
	s.mcp.AddTool(indexKnowledgeTool(), s.handleIndexKnowledge)
	s.mcp.AddTool(searchKnowledgeTool(), s.handleSearchKnowledge)
	s.mcp.AddTool(lookupTermTool(), s.handleLookupTerm)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
