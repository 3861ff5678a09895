// Package mcp implements the Model Context Protocol (MCP) server for KBContext.
//
// The MCP server exposes four tools to AI coding assistants:
//   - index_knowledge: Index a knowledge repository for search
//   - search_knowledge: Search indexed documents with natural language queries
//   - lookup_term: Look up glossary term definitions
//   - get_status: Check indexing status and statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	kbcontext serve
//
// It then listens on stdin for MCP protocol messages and writes responses to stdout.
//
// # Tool: index_knowledge
//
// Index a knowledge repository to make it searchable:
//
//	Request:
//	{
//	  "name": "index_knowledge",
//	  "arguments": {
//	    "path": "/path/to/repo",
//	    "force_reindex": false,
//	    "generate_embeddings": true
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "documents_indexed": 87,
//	  "documents_skipped": 140,
//	  "documents_failed": 0,
//	  "terms_extracted": 212,
//	  "chunks_created": 1431,
//	  "embeddings_generated": 1431,
//	  "embeddings_failed": 0,
//	  "duration_ms": 5210
//	}
//
// Incremental by default: documents whose content hash is unchanged are
// skipped. Set force_reindex to rebuild everything.
//
// # Tool: search_knowledge
//
// Search indexed documents semantically or by keywords:
//
//	Request:
//	{
//	  "name": "search_knowledge",
//	  "arguments": {
//	    "path": "/path/to/repo",
//	    "query": "how are signing keys rotated",
//	    "limit": 10,
//	    "search_mode": "hybrid",
//	    "filters": {
//	      "categories": ["knowledge", "doc"],
//	      "path_pattern": "kb/**"
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "query": "how are signing keys rotated",
//	  "search_mode": "hybrid",
//	  "total_results": 3,
//	  "cache_hit": false,
//	  "duration_ms": 42,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "relevance_score": 0.92,
//	      "path": "kb/security.md",
//	      "category": "knowledge",
//	      "strategy": "sections",
//	      "chunk_index": 4,
//	      "content": "## Key Rotation\n\nSigning keys rotate every 90 days..."
//	    }
//	  ]
//	}
//
// When no embedding provider is reachable, hybrid requests fall back to
// keyword search and the response reports the mode actually used.
//
// # Tool: lookup_term
//
// Look up a glossary term definition:
//
//	Request:
//	{
//	  "name": "lookup_term",
//	  "arguments": {
//	    "path": "/path/to/repo",
//	    "term": "WCF"
//	  }
//	}
//
//	Response:
//	{
//	  "term": "WCF",
//	  "found": true,
//	  "matches": [
//	    {
//	      "term": "WCF",
//	      "definition": "Work Completion Form, filed when a job closes.",
//	      "exact": true,
//	      "path": "glossary.md"
//	    }
//	  ]
//	}
//
// Exact case-insensitive matches are tried first; when none exist, a
// full-text search over terms and definitions runs instead and matches
// carry "exact": false.
//
// # Tool: get_status
//
// Check indexing status:
//
//	Request:
//	{
//	  "name": "get_status",
//	  "arguments": {
//	    "path": "/path/to/repo"
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "source": {
//	    "path": "/path/to/repo",
//	    "name": "ops-handbook",
//	    "index_version": "1.0.0",
//	    "last_indexed_at": "2026-08-20T14:05:11Z"
//	  },
//	  "statistics": {
//	    "documents_count": 227,
//	    "failed_documents": 0,
//	    "terms_count": 212,
//	    "chunks_count": 1431,
//	    "embeddings_count": 1431,
//	    "index_size_mb": "12.40"
//	  },
//	  "health": {
//	    "database_accessible": true,
//	    "embeddings_available": true,
//	    "fts_indexes_built": true
//	  }
//	}
//
// # MCP Client Configuration
//
// Configure in an MCP client's settings:
//
//	{
//	  "mcpServers": {
//	    "kbcontext": {
//	      "command": "/usr/local/bin/kbcontext",
//	      "args": ["serve"],
//	      "env": {
//	        "KBCONTEXT_EMBED_PROVIDER": "ollama"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// The MCP server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid path",
//	    "data": {
//	      "param": "path",
//	      "reason": "path does not exist"
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32002: Indexing in progress
//   - -32003: Repository not indexed
//   - -32004: Query or term is empty
//
// # Logging
//
// The MCP server logs to stderr; stdout is reserved for protocol messages.
package mcp
