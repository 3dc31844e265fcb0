// Package migrations embeds the record store schema. Statements are written
// in the dialect subset shared by Postgres and SQLite so the same files back
// production and tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
