// Package migrations embeds the goose migrations of the SQL storage backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
