//go:build sqlite_vec

package storage

// Selected by the sqlite_vec build tag, which requires CGO:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// The mattn driver loads the sqlite-vec extension, so similarity search
// runs inside SQLite instead of the Go fallback scan. Preferred for
// large knowledge bases.

import _ "github.com/mattn/go-sqlite3"

const (
	// DriverName is handed to sql.Open.
	DriverName = "sqlite3"

	// VectorExtensionAvailable reports whether similarity queries can be
	// pushed down into SQLite.
	VectorExtensionAvailable = true

	// BuildMode appears in version output.
	BuildMode = "cgo"
)
