// Package migrations embeds the sqlite schema applied by database.ApplyMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
