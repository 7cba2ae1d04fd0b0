// Package migrations embeds the PostgreSQL schema migrations and demo seeds.
package migrations

import "embed"

const (
	Dir      = "sql"
	SeedsDir = "seeds"
)

//go:embed sql/*.sql seeds/*.sql
var Files embed.FS
