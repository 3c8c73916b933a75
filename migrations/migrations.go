// Package migrations embeds the SQL schema for the session core.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
