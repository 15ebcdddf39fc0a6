//go:build !cgo_sqlite

package storage

// This file is compiled by default. It uses the pure Go SQLite port from
// modernc.org/sqlite, so no C compiler is needed.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
