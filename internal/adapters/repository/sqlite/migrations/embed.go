// Package migrations applies the embedded SQLite schema files in order.
package migrations

import "embed"

// FS holds the *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
