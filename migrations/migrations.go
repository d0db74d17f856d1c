package migrations

import "embed"

// Embedded migration files bundled at compile time so host applications
// deploy a single binary without external schema files.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
