// Package migrations embeds the goose migrations of the member store.
package migrations

import "embed"

//go:embed members/*.sql
var FS embed.FS

const Dir = "members"
