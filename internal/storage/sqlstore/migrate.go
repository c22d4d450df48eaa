package sqlstore

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// runMigrations is a test seam.
var runMigrations = migrate

// migrate applies every pending migration of d and returns the resulting
// schema version. A provider is used rather than goose's package-level
// state because SQLite and Postgres stores may coexist in one process.
func migrate(ctx context.Context, d Dialect, db *sql.DB) (int64, error) {
	fsys, err := d.Migrations()
	if err != nil {
		return 0, err
	}

	provider, err := goose.NewProvider(d.Goose(), db, fsys)
	if err != nil {
		return 0, err
	}

	if _, err := provider.Up(ctx); err != nil {
		return 0, err
	}

	return provider.GetDBVersion(ctx)
}
