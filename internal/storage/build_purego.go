//go:build purego || !sqlite_vec

package storage

// Default build, no C toolchain needed:
//
//	CGO_ENABLED=0 go build -tags "purego" ./...
//
// The modernc driver is a pure Go translation of SQLite. Vector
// similarity falls back to a Go-side scan over stored embeddings, which
// is fine for development and modest repositories.

import _ "modernc.org/sqlite"

const (
	// DriverName is handed to sql.Open.
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether similarity queries can be
	// pushed down into SQLite.
	VectorExtensionAvailable = false

	// BuildMode appears in version output.
	BuildMode = "purego"
)
