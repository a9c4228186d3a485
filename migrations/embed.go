// Package migrations embeds the SQL schema for the registry snapshot store.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
