// Package migrations embeds the wavault schema migration files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
