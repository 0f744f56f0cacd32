// Package migrations embeds the SQL schema for the connection history store.
//
// Importing it for side effects registers the files with the database
// package, so the binary carries its own schema.
package migrations

import (
	"embed"

	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files, ".")
}
