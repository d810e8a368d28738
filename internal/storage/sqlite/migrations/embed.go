package migrations

import "embed"

// FS contains embedded SQLite migrations for game document storage.
//
//go:embed *.sql
var FS embed.FS
