// Package migrations embeds the goose SQL migrations for the waypoint schema.
package migrations

import "embed"

// FS holds the versioned migrations at its root.
//
//go:embed *.sql
var FS embed.FS
