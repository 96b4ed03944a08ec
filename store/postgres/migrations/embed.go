// Package migrations embeds the authkit Postgres schema.
package migrations

import "embed"

// FS holds the *_up.sql and *_down.sql files, applied in name order.
//
//go:embed *.sql
var FS embed.FS
