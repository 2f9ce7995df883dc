// Package migrations embeds the SQL schema of the stub segment repository.
package migrations

import "embed"

// FS holds every *.sql file, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
