package migrations

import "embed"

// FS contains embedded SQLite migrations for saga storage.
//
//go:embed *.sql
var FS embed.FS
