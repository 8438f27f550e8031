// Package migrations embeds SQL migration files into the binary.
//
// Gray Macro runs its schema migrations from the executable itself, so
// the SQL files do not need to be installed alongside it.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
