package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/kbcontext-mcp/internal/mcp"
	"github.com/dshills/kbcontext-mcp/internal/storage"
)

// Set through -ldflags at release time.
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			// the default below
		case "--version", "version":
			printVersion()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (expected \"serve\" or \"--version\")\n", os.Args[1])
			os.Exit(2)
		}
	}

	if err := run(); err != nil {
		log.Fatalf("kbcontext: %v", err)
	}
}

func run() error {
	// stdout carries the MCP protocol, so all logging goes to stderr.
	log.SetOutput(os.Stderr)
	log.Printf("KBContext MCP Server v%s starting...", version)
	log.Printf("build mode %s, driver %s, vector extension %v",
		storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)

	dbPath := os.Getenv("KBCONTEXT_DB_PATH")
	if dbPath == "" {
		dbPath = mcp.DefaultDBPath
	}

	server, err := mcp.NewServer(dbPath)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// SIGINT and SIGTERM cancel the context, which winds the server down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errCh <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, stopping...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.Println("server stopped")
	return nil
}

func printVersion() {
	fmt.Printf("KBContext MCP Server %s (built %s)\n", version, buildTime)
	fmt.Printf("  build mode:       %s\n", storage.BuildMode)
	fmt.Printf("  sqlite driver:    %s\n", storage.DriverName)
	fmt.Printf("  vector extension: %v\n", storage.VectorExtensionAvailable)
}
