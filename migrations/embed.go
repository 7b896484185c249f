// Package migrations embeds the journal schema into the binary.
//
// Files follow the YYYYMMDD_HHMMSS_description.up.sql naming scheme and are
// applied by database.DB.Migrate.
package migrations

import "embed"

// FS holds every migration file in this directory.
//
//go:embed *.sql
var FS embed.FS
