// Package migrations embeds the PostgreSQL schema migrations applied with goose.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS
