//go:build cgo_sqlite

package storage

// This file is compiled with the cgo_sqlite tag and links the C SQLite
// library through github.com/mattn/go-sqlite3.
//
// Build command:
//   CGO_ENABLED=1 go build -tags cgo_sqlite ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
