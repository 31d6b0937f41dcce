// Package migrations embeds the SQL migrations for each document store backend.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the migrations for the SQLite backend.
func SQLite() fs.FS {
	sub, _ := fs.Sub(files, "sqlite")
	return sub
}

// Postgres returns the migrations for the Postgres backend.
func Postgres() fs.FS {
	sub, _ := fs.Sub(files, "postgres")
	return sub
}
