package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration for the dialect and returns the
// number applied.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) (int, error) {
	sub, err := fs.Sub(migrationsFS, "migrations/"+d.dir())
	if err != nil {
		return 0, fmt.Errorf("migrations for %s: %w", d, err)
	}
	provider, err := goose.NewProvider(d.goose(), db, sub)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}
