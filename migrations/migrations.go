// Package migrations embeds the PostgreSQL schema for golang-migrate.
package migrations

import "embed"

// FS holds the versioned up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
