// Package migrations embeds the schema migrations for each supported driver.
package migrations

import "embed"

// Embedded so the binary carries its own schema.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
